package rest

import (
	"context"
	"net/http"
	"time"
)

// Presence is the REST view of one user's online status.
type Presence struct {
	UserID     string     `json:"userId"`
	IsOnline   bool       `json:"isOnline"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
}

// GetPresence looks up the current presence of one user.
func (c *Client) GetPresence(ctx context.Context, userID string) (*Presence, error) {
	var out Presence
	if err := c.do(ctx, http.MethodGet, "/users/"+userID+"/presence", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
