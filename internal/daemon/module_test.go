package daemon

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/zawajapp/zawaj/internal/auth"
	"github.com/zawajapp/zawaj/internal/config"
	"github.com/zawajapp/zawaj/internal/session"
	"go.uber.org/zap"
)

func TestProvideTokensPrecedence(t *testing.T) {
	p := Params{Profile: "test"}

	// Config-supplied token wins over everything.
	t.Setenv("ZAWAJ_TOKEN", "env-token")
	cfg := config.Default()
	cfg.Gateway.Token = "cfg-token"
	if tok, _ := provideTokens(p, cfg).Token(); tok != "cfg-token" {
		t.Errorf("token = %q, want config token", tok)
	}

	// Environment comes next.
	cfg.Gateway.Token = ""
	if tok, _ := provideTokens(p, cfg).Token(); tok != "env-token" {
		t.Errorf("token = %q, want env token", tok)
	}

	// Otherwise the profile token file is read on every use.
	t.Setenv("ZAWAJ_TOKEN", "")
	t.Setenv("HOME", t.TempDir())
	tokenPath := session.TokenPath(p.Profile)
	if err := os.MkdirAll(filepath.Dir(tokenPath), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tokenPath, []byte("file-token\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if tok, _ := provideTokens(p, cfg).Token(); tok != "file-token" {
		t.Errorf("token = %q, want profile file token", tok)
	}
}

// fakeRedialer records the channel operations the rotation hook
// performs.
type fakeRedialer struct {
	calls []string
}

func (f *fakeRedialer) Disconnect() { f.calls = append(f.calls, "disconnect") }

func (f *fakeRedialer) Connect(ctx context.Context) error {
	f.calls = append(f.calls, "connect")
	return nil
}

func TestWatchAuthRedialsOnRotation(t *testing.T) {
	tokens := auth.NewWatchable(auth.Static("tok-1"))
	gw := &fakeRedialer{}
	watchAuth(tokens, gw, zap.NewNop())

	tokens.Rotate(auth.Static("tok-2"))
	want := []string{"disconnect", "connect"}
	if !reflect.DeepEqual(gw.calls, want) {
		t.Fatalf("calls = %v after rotation, want %v", gw.calls, want)
	}

	// Rotation to no token (logout) drops the channel and stays down.
	tokens.Rotate(auth.Static(""))
	want = []string{"disconnect", "connect", "disconnect"}
	if !reflect.DeepEqual(gw.calls, want) {
		t.Errorf("calls = %v after logout, want %v", gw.calls, want)
	}
}
