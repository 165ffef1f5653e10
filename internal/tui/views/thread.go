package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/zawajapp/zawaj/internal/model"
)

// Thread displays the open conversation's messages and a composer.
type Thread struct {
	*tview.Flex
	messages *tview.TextView
	composer *tview.InputField
	selfID   string
	peer     string
	onSend   func(text string)
	onTyping func(text string)
}

// NewThread creates the message thread view.
func NewThread(selfID string) *Thread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetTitle(" Messages ")

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetTitle(" Compose (i to focus) ")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	t := &Thread{
		Flex:     flex,
		messages: messages,
		composer: composer,
		selfID:   selfID,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && t.onSend != nil {
			text := composer.GetText()
			if text != "" {
				t.onSend(text)
				composer.SetText("")
			}
		}
	})
	composer.SetChangedFunc(func(text string) {
		if t.onTyping != nil {
			t.onTyping(text)
		}
	})

	return t
}

// SetOnSend sets the callback invoked when a message is submitted.
func (t *Thread) SetOnSend(fn func(text string)) {
	t.onSend = fn
}

// SetOnTyping sets the callback invoked as the composer text changes.
func (t *Thread) SetOnTyping(fn func(text string)) {
	t.onTyping = fn
}

// SetPeer updates the header with the peer id and presence/typing
// decorations.
func (t *Thread) SetPeer(peer string, online, typing bool) {
	t.peer = peer
	title := " " + peer
	if online {
		title += " [green]online[-]"
	}
	if typing {
		title += " [yellow]typing…[-]"
	}
	t.messages.SetTitle(title + " ")
}

// Update re-renders the message sequence, oldest first.
func (t *Thread) Update(msgs []model.Message, hasMore bool) {
	t.messages.Clear()

	if hasMore {
		_, _ = fmt.Fprint(t.messages, "[::d]-- older messages available (PgUp) --[-:-:-]\n\n")
	}

	for _, m := range msgs {
		sender := m.SenderID
		if sender == t.selfID {
			sender = "You"
		}
		body := m.Content
		switch m.Type {
		case model.TypeImage:
			body = "[image] " + m.FileURL
		case model.TypeAudio:
			body = fmt.Sprintf("[audio %ds] %s", m.AudioDuration, m.FileURL)
		}
		if m.Deleted {
			body = "[::d]message deleted[-:-:-]"
		}

		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s %s[-:-:-]\n%s\n\n",
			tview.Escape(sanitizeForTerminal(sender)),
			m.CreatedAt.Format("15:04"),
			statusGlyph(m),
			tview.Escape(sanitizeForTerminal(body)))
		_, _ = fmt.Fprint(t.messages, line)
	}

	t.messages.ScrollToEnd()
}

// Messages returns the text view, for focus management.
func (t *Thread) Messages() *tview.TextView { return t.messages }

// Composer returns the input field, for focus management.
func (t *Thread) Composer() *tview.InputField { return t.composer }

func statusGlyph(m model.Message) string {
	if m.Optimistic() {
		return "…"
	}
	switch m.Status {
	case model.StatusRead:
		return "✓✓"
	case model.StatusDelivered:
		return "✓"
	default:
		return ""
	}
}
