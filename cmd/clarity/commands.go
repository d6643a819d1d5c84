package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nhle/inbox-clarity/internal/app"
	"github.com/nhle/inbox-clarity/internal/credential"
	"github.com/nhle/inbox-clarity/internal/inbound"
	"github.com/nhle/inbox-clarity/internal/logging"
	"github.com/nhle/inbox-clarity/internal/model"
	"github.com/nhle/inbox-clarity/internal/source/gmail"
	appsync "github.com/nhle/inbox-clarity/internal/sync"
)

// globalFlags are accepted by every command that loads configuration.
type globalFlags struct {
	configPath string
	rulesOnly  bool
}

func newFlagSet(name string) (*pflag.FlagSet, *globalFlags) {
	g := &globalFlags{}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVarP(&g.configPath, "config", "c", model.DefaultConfigPath(), "configuration file")
	fs.BoolVar(&g.rulesOnly, "rules-only", false, "run without a reasoning credential")
	fs.String("store", "", "SQLite database path")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-format", "", "log format (json, console)")
	return fs, g
}

// parse parses args and reports whether the command should continue.
func parse(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// setup loads configuration, builds the logger and wires the application.
func setup(
	ctx context.Context,
	fs *pflag.FlagSet,
	g *globalFlags,
) (*app.App, error) {
	cfg, err := model.LoadConfigWithFlags(g.configPath, fs)
	if err != nil {
		return nil, err
	}

	logger, _, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, logger, app.WithRulesOnly(g.rulesOnly))
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func shutdown(a *app.App) {
	if err := a.Close(); err != nil {
		a.Logger.Warn("closing store", zap.Error(err))
	}
	_ = a.Logger.Sync()
}

func runServe(ctx context.Context, args []string, _ io.Reader, _ io.Writer) error {
	fs, g := newFlagSet("serve")
	fs.String("addr", "", "listen address")
	fs.Int("interval", 0, "poll interval in seconds (0 disables polling)")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	a, err := setup(ctx, fs, g)
	if err != nil {
		return err
	}
	defer shutdown(a)

	if interval := a.Config.Batch.PollIntervalSec; interval > 0 && a.Refresher != nil {
		p := appsync.NewPoller(a.Refresher, time.Duration(interval)*time.Second, a.Logger)
		p.Start(ctx)
		defer p.Stop()
		go drainResults(p, a.Logger)
	}

	return a.Server().Run(ctx, a.Config.Server.Addr)
}

func runRefresh(ctx context.Context, args []string, _ io.Reader, stdout io.Writer) error {
	fs, g := newFlagSet("refresh")
	fs.Int("batch-size", 0, "maximum messages to classify")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	a, err := setup(ctx, fs, g)
	if err != nil {
		return err
	}
	defer shutdown(a)

	if a.Refresher == nil {
		return errors.New("no mailbox configured (set mailbox.type)")
	}

	summary, err := a.Refresher.Refresh(ctx)
	if err != nil {
		return err
	}
	if err := writeJSON(stdout, summary); err != nil {
		return err
	}
	if !summary.Success {
		return fmt.Errorf("no message could be classified (%d errors)", len(summary.Errors))
	}
	return nil
}

func runPoll(ctx context.Context, args []string, _ io.Reader, _ io.Writer) error {
	fs, g := newFlagSet("poll")
	fs.Int("interval", 0, "poll interval in seconds")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	a, err := setup(ctx, fs, g)
	if err != nil {
		return err
	}
	defer shutdown(a)

	if a.Refresher == nil {
		return errors.New("no mailbox configured (set mailbox.type)")
	}

	p := appsync.NewPoller(a.Refresher, time.Duration(a.Config.Batch.PollIntervalSec)*time.Second, a.Logger)
	p.Start(ctx)
	go drainResults(p, a.Logger)

	<-ctx.Done()
	p.Stop()
	return nil
}

// drainResults logs poller results until the poller stops.
func drainResults(p *appsync.Poller, logger *zap.Logger) {
	for r := range p.Results() {
		if r.Error != nil {
			continue
		}
		logger.Info("mailbox refreshed",
			zap.Int("classified", r.Summary.Classified),
			zap.Any("counts", r.Summary.Counts),
		)
	}
}

func runClassify(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs, g := newFlagSet("classify")
	file := fs.StringP("file", "f", "", "request JSON file (default stdin)")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	in := stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("opening request: %w", err)
		}
		defer f.Close()
		in = f
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading request: %w", err)
	}
	req, err := inbound.Decode(data)
	if err != nil {
		return err
	}

	a, err := setup(ctx, fs, g)
	if err != nil {
		return err
	}
	defer shutdown(a)

	return writeJSON(stdout, a.Classifier.Classify(ctx, req))
}

func runInit(_ context.Context, args []string, _ io.Reader, stdout io.Writer) error {
	fs := pflag.NewFlagSet("init", pflag.ContinueOnError)
	path := fs.StringP("config", "c", model.DefaultConfigPath(), "configuration file to create")
	force := fs.Bool("force", false, "overwrite an existing file")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	if _, err := os.Stat(*path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", *path)
	}
	if err := model.SaveConfig(*path, model.DefaultAppConfig()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", *path)
	return nil
}

func runGmailAuth(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := pflag.NewFlagSet("gmail-auth", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", model.DefaultConfigPath(), "configuration file")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	credentialsFile, tokenFile := app.GmailFiles(cfg.Mailbox)
	if err := gmail.Authorize(ctx, credentialsFile, tokenFile, stdin, stdout); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "token saved to %s\n", tokenFile)
	return nil
}

func runSecret(_ context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) != 2 || args[0] != "set" {
		return errors.New("usage: clarity secret set <key> (value read from stdin)")
	}
	key := args[1]

	value, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading value: %w", err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("empty value")
	}

	ring, err := credential.OpenKeyring()
	if err != nil {
		return err
	}
	if err := ring.Set(key, value); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "stored %s\n", key)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
