package email

import (
	"time"

	"github.com/emersion/go-imap/v2"
)

// FetchedMessage holds one message as returned by the IMAP server.
type FetchedMessage struct {
	UID          imap.UID
	Flags        []imap.Flag // \Seen, \Flagged, \Answered, $Junk
	InternalDate time.Time
	Literal      []byte // full RFC 822 message
}
