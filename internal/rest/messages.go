package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zawajapp/zawaj/internal/model"
)

// MessagePage is one page of a conversation's history. Page 1 holds
// the most recent messages; higher pages move backward in time.
type MessagePage struct {
	Messages   []model.Message `json:"messages"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	TotalPages int             `json:"totalPages"`
}

// ListMessages fetches one history page for a conversation.
func (c *Client) ListMessages(ctx context.Context, conversationID string, page, limit int) (*MessagePage, error) {
	var out MessagePage
	path := fmt.Sprintf("/conversations/%s/messages?page=%d&limit=%d", conversationID, page, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
