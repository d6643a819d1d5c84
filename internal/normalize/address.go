package normalize

import (
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
)

var (
	// angleAddrPattern matches the address inside "Name <addr>".
	angleAddrPattern = regexp.MustCompile(`<([^<>]+)>`)

	// bareAddrPattern matches a plain address anywhere in a token.
	bareAddrPattern = regexp.MustCompile(`[\w.+%-]+@[\w.-]+\.[\w-]+`)
)

// ParseAddresses extracts the addresses from an address-list header value
// ("Name" <a@x>, b@y, ...). The header is first parsed as a whole; if that
// fails, each comma-separated token is scanned on its own and tokens that
// yield no address are dropped. Only values containing '@' are returned.
func ParseAddresses(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	if list, err := mail.ParseAddressList(value); err == nil {
		addrs := make([]string, 0, len(list))
		for _, a := range list {
			if strings.Contains(a.Address, "@") {
				addrs = append(addrs, a.Address)
			}
		}
		return addrs
	}

	var addrs []string
	for _, token := range strings.Split(value, ",") {
		if addr := tokenAddress(token); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// tokenAddress pulls a single address out of a loosely formatted token.
func tokenAddress(token string) string {
	token = strings.TrimSpace(token)
	if m := angleAddrPattern.FindStringSubmatch(token); m != nil {
		if addr := strings.TrimSpace(m[1]); strings.Contains(addr, "@") {
			return addr
		}
	}
	if m := bareAddrPattern.FindString(token); m != "" {
		return m
	}
	return ""
}
