// Package tui is a terminal frontend over the chat session: a
// conversations pane, the open thread with composer, and a status bar
// reflecting the realtime connection.
package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/zawajapp/zawaj/internal/bus"
	"github.com/zawajapp/zawaj/internal/chat"
	"github.com/zawajapp/zawaj/internal/model"
	"github.com/zawajapp/zawaj/internal/status"
	"github.com/zawajapp/zawaj/internal/tui/views"
)

// App is the TUI application shell.
type App struct {
	app       *tview.Application
	sess      *chat.Session
	bus       *bus.Bus
	machine   *status.Machine
	convList  *views.ConversationList
	thread    *views.Thread
	statusBar *views.StatusBar
	root      *tview.Flex
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI over a running session.
func NewApp(sess *chat.Session, b *bus.Bus, machine *status.Machine, profile string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		sess:      sess,
		bus:       b,
		machine:   machine,
		convList:  views.NewConversationList(sess.SelfID(), sess.Presence().IsOnline),
		thread:    views.NewThread(sess.SelfID()),
		statusBar: views.NewStatusBar(profile),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.setupCallbacks()
	a.setupLayout()
	a.setupBindings()

	return a
}

func (a *App) setupLayout() {
	columns := tview.NewFlex().
		AddItem(a.convList, 0, 1, true).
		AddItem(a.thread, 0, 2, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(columns, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		if conv, ok := a.convList.Selected(); ok {
			a.openConversation(conv)
		}
	})

	a.thread.SetOnSend(func(text string) {
		go func() {
			if _, err := a.sess.SendText(a.ctx, text); err != nil {
				a.flash("Send failed: " + err.Error())
			}
			a.refresh()
		}()
	})

	a.thread.SetOnTyping(func(text string) {
		if text == "" {
			a.sess.StopTyping()
			return
		}
		a.sess.StartTyping()
	})
}

func (a *App) setupBindings() {
	a.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if a.app.GetFocus() == a.thread.Composer() {
			if ev.Key() == tcell.KeyEscape {
				a.sess.StopTyping()
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			return ev
		}

		switch ev.Key() {
		case tcell.KeyEscape:
			a.app.SetFocus(a.convList)
			return nil
		case tcell.KeyPgUp:
			go func() {
				if err := a.sess.LoadOlderMessages(a.ctx); err != nil {
					a.flash("Load failed: " + err.Error())
				}
				a.refresh()
			}()
			return nil
		}

		switch ev.Rune() {
		case 'q':
			a.app.Stop()
			return nil
		case 'i':
			if a.sess.Thread().Conversation() != nil {
				a.app.SetFocus(a.thread.Composer())
				return nil
			}
		case 'r':
			go func() {
				if err := a.sess.LoadConversations(a.ctx, 1); err != nil {
					a.flash("Refresh failed: " + err.Error())
				}
				a.refresh()
			}()
			return nil
		}
		return ev
	})
}

func (a *App) openConversation(conv model.Conversation) {
	go func() {
		if err := a.sess.OpenConversation(a.ctx, conv); err != nil {
			a.flash("Open failed: " + err.Error())
		}
		_ = a.sess.MarkRead(a.ctx)
		a.refresh()
	}()
	a.app.SetFocus(a.thread.Composer())
}

// Run starts the event pumps and blocks until the user quits.
func (a *App) Run() error {
	defer a.cancel()

	go a.watchEvents()

	go func() {
		_ = a.sess.LoadConversations(a.ctx, 1)
		a.refresh()
	}()

	return a.app.Run()
}

// watchEvents refreshes the views whenever the session's state moves.
func (a *App) watchEvents() {
	ch, unsub := a.bus.Subscribe("", 256)
	defer unsub()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ch:
			a.refresh()
		case <-ticker.C:
			a.refresh()
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) refresh() {
	a.app.QueueUpdateDraw(func() {
		convs := a.sess.Conversations()
		a.convList.Update(convs.Items(), convs.Err())

		th := a.sess.Thread()
		a.thread.Update(th.Messages(), th.HasMore())
		if peer := th.OtherID(); peer != "" {
			a.thread.SetPeer(peer, a.sess.Presence().IsOnline(peer), a.sess.Typing().OtherTyping())
		}

		a.statusBar.SetState(a.machine.Current())
	})
}

func (a *App) flash(msg string) {
	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetFlash(msg)
	})
}
