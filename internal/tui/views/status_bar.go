package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
	"github.com/zawajapp/zawaj/internal/status"
)

// StatusBar displays the profile, connection state and a flash line.
type StatusBar struct {
	*tview.TextView
	profile string
	state   status.State
	flash   string
}

// NewStatusBar creates a new status bar.
func NewStatusBar(profile string) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, profile: profile, state: status.Disconnected}
}

// SetState updates the connection state display.
func (sb *StatusBar) SetState(s status.State) {
	sb.state = s
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	color := "red"
	if sb.state == status.Connected {
		color = "green"
	} else if sb.state == status.Connecting || sb.state == status.Reconnecting {
		color = "yellow"
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]%s[-] | %s",
		sb.profile, color, sb.state, time.Now().Format("15:04"))
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", sb.flash)
	}

	_, _ = fmt.Fprint(sb, line)
}
