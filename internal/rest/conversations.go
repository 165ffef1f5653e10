package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zawajapp/zawaj/internal/model"
)

// ConversationPage is one page of the user's conversations.
type ConversationPage struct {
	Conversations []model.Conversation `json:"conversations"`
	Total         int                  `json:"total"`
	Page          int                  `json:"page"`
	TotalPages    int                  `json:"totalPages"`
}

// ListConversations fetches one page of conversations.
func (c *Client) ListConversations(ctx context.Context, page, limit int) (*ConversationPage, error) {
	var out ConversationPage
	path := fmt.Sprintf("/conversations?page=%d&limit=%d", page, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConversation fetches a single conversation by id.
func (c *Client) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var out model.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateConversation starts (or returns the existing) conversation
// with recipientID.
func (c *Client) CreateConversation(ctx context.Context, recipientID string) (*model.Conversation, error) {
	var out model.Conversation
	body := map[string]string{"recipientId": recipientID}
	if err := c.do(ctx, http.MethodPost, "/conversations", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkConversationRead resets the server-side unread counter.
func (c *Client) MarkConversationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/conversations/"+id+"/read", nil, nil)
}

// DeleteConversation removes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/conversations/"+id, nil, nil)
}
