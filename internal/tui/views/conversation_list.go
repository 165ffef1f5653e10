package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/zawajapp/zawaj/internal/model"
)

// PresenceFunc answers whether a user is currently online.
type PresenceFunc func(userID string) bool

// ConversationList is the left-hand conversations table.
type ConversationList struct {
	*tview.Table
	selfID  string
	online  PresenceFunc
	convs   []model.Conversation
	errLine string
}

// NewConversationList creates the conversations table.
func NewConversationList(selfID string, online PresenceFunc) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetTitle(" Conversations ")
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(tcell.ColorBlack).
		Background(tcell.ColorAqua))

	return &ConversationList{
		Table:  table,
		selfID: selfID,
		online: online,
	}
}

// Update refreshes the table with the current list state.
func (cl *ConversationList) Update(convs []model.Conversation, errLine string) {
	cl.convs = convs
	cl.errLine = errLine
	cl.render()
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" WITH", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	for i, conv := range cl.convs {
		peer := conv.Other(cl.selfID)
		name := peer
		if cl.online != nil && cl.online(peer) {
			name = "● " + name
		}
		if conv.UnreadCount > 0 {
			name = fmt.Sprintf("(%d) %s", conv.UnreadCount, name)
		}

		cl.SetCell(i+1, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).SetExpansion(1))
		cl.SetCell(i+1, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(conv.LastMessage))).SetExpansion(2))
		cl.SetCell(i+1, 2, tview.NewTableCell(formatTime(conv.LastMessageAt)).SetAlign(tview.AlignRight))
	}

	title := fmt.Sprintf(" Conversations (%d) ", len(cl.convs))
	if cl.errLine != "" {
		title = fmt.Sprintf(" Conversations (%d) [red]offline data[-] ", len(cl.convs))
	}
	cl.SetTitle(title)
}

// Selected returns the currently selected conversation.
func (cl *ConversationList) Selected() (model.Conversation, bool) {
	row, _ := cl.GetSelection()
	idx := row - 1 // header row
	if idx < 0 || idx >= len(cl.convs) {
		return model.Conversation{}, false
	}
	return cl.convs[idx], true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
