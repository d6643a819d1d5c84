// Package credential looks up secrets such as the reasoning service API key.
package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotFound is returned when no store holds a value for a key.
var ErrNotFound = errors.New("credential not found")

// Store retrieves credential values by key.
type Store interface {
	Get(key string) (string, error)
}

// DefaultEnvVars are consulted, in order, for the reasoning API key.
var DefaultEnvVars = []string{"CLARITY_REASONING_API_KEY", "ANTHROPIC_API_KEY"}

// Env resolves every key from a fixed list of environment variables. The
// first non-empty variable wins. Wrap it in Scoped to restrict it to one key.
type Env struct {
	Vars []string

	// lookup defaults to os.LookupEnv.
	lookup func(string) (string, bool)
}

// NewEnv returns an Env store reading vars, or DefaultEnvVars when none are
// given.
func NewEnv(vars ...string) *Env {
	if len(vars) == 0 {
		vars = DefaultEnvVars
	}
	return &Env{Vars: vars, lookup: os.LookupEnv}
}

// Get returns the first non-empty configured variable. The key is only
// used in the error message.
func (e *Env) Get(key string) (string, error) {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, name := range e.Vars {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", fmt.Errorf("getting credential %q from environment: %w", key, ErrNotFound)
}

// Chain asks each store in turn and returns the first value found.
type Chain []Store

// Get returns the first successful lookup. If every store fails, the error
// wraps ErrNotFound unless a store failed for another reason, in which case
// that failure is returned.
func (c Chain) Get(key string) (string, error) {
	var errs []error
	for _, s := range c {
		if s == nil {
			continue
		}
		v, err := s.Get(key)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
}

// Scoped routes each key to its own store. Keys without a store are not
// found. It keeps single-purpose stores such as Env from answering for
// other keys.
type Scoped map[string]Store

// Get asks the store registered for key.
func (s Scoped) Get(key string) (string, error) {
	if store, ok := s[key]; ok && store != nil {
		return store.Get(key)
	}
	return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
}

// Static is a fixed map of credentials.
type Static map[string]string

// Get returns the mapped value for key.
func (s Static) Get(key string) (string, error) {
	if v, ok := s[key]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
}
