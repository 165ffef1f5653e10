package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/zawajapp/zawaj/internal/bus"
	"github.com/zawajapp/zawaj/internal/chat"
	"github.com/zawajapp/zawaj/internal/daemon"
	"github.com/zawajapp/zawaj/internal/session"
	"github.com/zawajapp/zawaj/internal/status"
	"github.com/zawajapp/zawaj/internal/tui"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profile := session.Resolve(*profileFlag)
	if err := session.ValidateName(profile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Profile: profile}),
		fx.Provide(func(sess *chat.Session, b *bus.Bus, machine *status.Machine) *tui.App {
			return tui.NewApp(sess, b, machine, profile)
		}),
		fx.Invoke(runTUI),
		// fx startup chatter would corrupt the terminal once tview
		// takes over the screen.
		fx.NopLogger,
	)

	app.Run()
}

// runTUI drives the screen on its own goroutine and shuts the fx app
// down once the user quits.
func runTUI(lc fx.Lifecycle, shutdowner fx.Shutdowner, app *tui.App) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := app.Run(); err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
				}
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
	})
}
