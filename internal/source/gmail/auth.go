package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/nhle/inbox-clarity/internal/source"
)

// OAuthConfig reads the OAuth client definition downloaded from the Google
// Cloud console.
func OAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading client secret file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, gmailapi.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret file: %w", err)
	}
	return cfg, nil
}

// NewHTTPClient returns an authorized client using the token saved in
// tokenFile. A missing token is an AuthError: run Authorize first.
func NewHTTPClient(
	ctx context.Context,
	credentialsFile, tokenFile string,
) (*http.Client, error) {
	cfg, err := OAuthConfig(credentialsFile)
	if err != nil {
		return nil, err
	}

	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, &source.AuthError{
			Provider: source.ProviderGmail,
			Message:  fmt.Sprintf("no usable token in %s: %v", tokenFile, err),
		}
	}
	return cfg.Client(ctx, tok), nil
}

// Authorize runs the interactive consent flow: it prints the consent URL
// to out, reads the authorization code from in, and saves the token.
func Authorize(
	ctx context.Context,
	credentialsFile, tokenFile string,
	in io.Reader,
	out io.Writer,
) error {
	cfg, err := OAuthConfig(credentialsFile)
	if err != nil {
		return err
	}

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Go to the following link in your browser then type the "+
		"authorization code:\n%v\n", authURL)

	var code string
	if _, err := fmt.Fscan(in, &code); err != nil {
		return fmt.Errorf("reading authorization code: %w", err)
	}

	tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}
	return saveToken(tokenFile, tok)
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	if file == "" {
		return nil, errors.New("token file not configured")
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("saving oauth token: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("encoding oauth token: %w", err)
	}
	return nil
}
