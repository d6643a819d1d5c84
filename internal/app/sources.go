package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/nhle/inbox-clarity/internal/credential"
	"github.com/nhle/inbox-clarity/internal/model"
	"github.com/nhle/inbox-clarity/internal/source"
	"github.com/nhle/inbox-clarity/internal/source/email"
	"github.com/nhle/inbox-clarity/internal/source/gmail"
)

const (
	// IMAPPasswordKey is the credential key holding the IMAP password.
	IMAPPasswordKey = "imap_password"

	// IMAPPasswordEnv overrides the keyring entry for IMAPPasswordKey.
	IMAPPasswordEnv = "CLARITY_IMAP_PASSWORD"
)

// newProvider builds the mail provider named by cfg.Type. Provider
// settings come from cfg.Config; secrets come from creds.
func newProvider(
	ctx context.Context,
	cfg model.MailboxConfig,
	creds credential.Store,
) (source.MailProvider, error) {
	switch source.ProviderType(cfg.Type) {
	case source.ProviderGmail:
		credentialsFile, tokenFile := GmailFiles(cfg)
		httpClient, err := gmail.NewHTTPClient(ctx, credentialsFile, tokenFile)
		if err != nil {
			return nil, err
		}
		return gmail.NewProvider(ctx, httpClient)

	case source.ProviderIMAP:
		return newIMAPProvider(cfg, creds)

	default:
		return nil, fmt.Errorf("unsupported mailbox type %q", cfg.Type)
	}
}

// newIMAPProvider builds an IMAP provider, loading the password from the
// credential store.
func newIMAPProvider(
	cfg model.MailboxConfig,
	creds credential.Store,
) (*email.Provider, error) {
	host := setting(cfg, "host", "")
	if host == "" {
		return nil, fmt.Errorf("mailbox.config.host is required for IMAP")
	}
	port := setting(cfg, "port", "993")
	username := setting(cfg, "username", cfg.UserEmail)

	useTLS, err := strconv.ParseBool(setting(cfg, "tls", "true"))
	if err != nil {
		return nil, fmt.Errorf("parsing mailbox.config.tls: %w", err)
	}

	password, err := creds.Get(IMAPPasswordKey)
	if err != nil {
		return nil, &source.AuthError{
			Provider: source.ProviderIMAP,
			Message:  fmt.Sprintf("no IMAP password for %s: %v", username, err),
		}
	}

	client := email.NewIMAPClient(host, port, username, password, useTLS)
	return email.NewProvider(client, cfg.LookbackDays), nil
}

// GmailFiles returns the OAuth client and token file paths, defaulting to
// files next to the configuration.
func GmailFiles(cfg model.MailboxConfig) (credentialsFile, tokenFile string) {
	dir := filepath.Dir(model.DefaultConfigPath())
	credentialsFile = setting(cfg, "credentials_file", filepath.Join(dir, "gmail_credentials.json"))
	tokenFile = setting(cfg, "token_file", filepath.Join(dir, "gmail_token.json"))
	return credentialsFile, tokenFile
}

func setting(cfg model.MailboxConfig, key, fallback string) string {
	if v := cfg.Config[key]; v != "" {
		return v
	}
	return fallback
}
