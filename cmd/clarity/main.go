// Command clarity classifies email into IMPORTANT, FOLLOW_UP, NOISE and FYI
// buckets, either over HTTP or in batches over a configured mailbox.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

const usage = `Usage: clarity <command> [flags]

Commands:
  serve        run the HTTP API (and the poller when batch.poll_interval_sec > 0)
  refresh      classify one batch from the configured mailbox and print the summary
  poll         refresh the mailbox periodically until interrupted
  classify     classify a JSON request read from --file or stdin
  init         write a default configuration file
  gmail-auth   authorize Gmail access and save the OAuth token
  secret       store a credential in the system keyring (secret set <key>)

Run "clarity <command> --help" for command flags.
`

type command func(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error

var commands = map[string]command{
	"serve":      runServe,
	"refresh":    runRefresh,
	"poll":       runPoll,
	"classify":   runClassify,
	"init":       runInit,
	"gmail-auth": runGmailAuth,
	"secret":     runSecret,
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "clarity: loading .env: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, ok := commands[os.Args[1]]
	if !ok {
		if os.Args[1] == "help" || os.Args[1] == "--help" || os.Args[1] == "-h" {
			fmt.Fprint(os.Stdout, usage)
			return
		}
		fmt.Fprintf(os.Stderr, "clarity: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, os.Args[2:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "clarity %s: %v\n", os.Args[1], err)
		stop()
		os.Exit(1)
	}
}
