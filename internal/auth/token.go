// Package auth is the seam to the external credential collaborator.
// The platform's auth service owns login, refresh and storage; this
// package only reads the current access token and observes changes.
package auth

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrNoToken indicates no credential is currently available.
var ErrNoToken = errors.New("no access token available")

// TokenSource yields the current access token. Implementations must be
// safe for concurrent use; the gateway re-queries the source on every
// reconnect attempt so refreshed tokens propagate.
type TokenSource interface {
	Token() (string, error)
}

// Static is a fixed-token source, used for configuration-supplied
// tokens and in tests.
type Static string

func (s Static) Token() (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// FileSource reads the token from a file the auth collaborator keeps
// current. Reads on every call so refreshes are picked up.
type FileSource struct {
	Path string
}

func (f *FileSource) Token() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", ErrNoToken
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// Watchable wraps a TokenSource with change notification, the Go
// rendition of the collaborator's onAuthChange hook.
type Watchable struct {
	mu        sync.Mutex
	source    TokenSource
	listeners []func(token string)
}

// NewWatchable wraps source.
func NewWatchable(source TokenSource) *Watchable {
	return &Watchable{source: source}
}

// Token returns the current token from the wrapped source.
func (w *Watchable) Token() (string, error) {
	w.mu.Lock()
	src := w.source
	w.mu.Unlock()
	return src.Token()
}

// OnChange registers a listener invoked when Rotate is called.
func (w *Watchable) OnChange(fn func(token string)) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Rotate swaps the underlying source and notifies listeners with the
// new token ("" when the new source has none, i.e. logout).
func (w *Watchable) Rotate(source TokenSource) {
	w.mu.Lock()
	w.source = source
	listeners := make([]func(string), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	tok, err := source.Token()
	if err != nil {
		tok = ""
	}
	for _, fn := range listeners {
		fn(tok)
	}
}
