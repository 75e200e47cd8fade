package gmail

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Client wraps the Gmail Users service for the folder setup step.
type Client struct {
	svc *gmail.UsersService
}

// NewClient creates a Gmail client authenticated with the given OAuth token.
func NewClient(ctx context.Context, token *oauth2.Token) (*Client, error) {
	if token == nil {
		return nil, fmt.Errorf("OAuth token is required")
	}

	svc, err := gmail.NewService(ctx,
		option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{svc: svc.Users}, nil
}

// Profile returns the email address of the authenticated account.
func (c *Client) Profile(ctx context.Context) (string, error) {
	profile, err := c.svc.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get Gmail profile: %w", err)
	}
	return profile.EmailAddress, nil
}

// Label describes a user-created Gmail label.
type Label struct {
	ID   string
	Name string
}

// Labels lists the user-created labels of the account. System labels like
// INBOX and SPAM are filtered out since they are not candidates for
// agent-managed folders.
func (c *Client) Labels(ctx context.Context) ([]Label, error) {
	res, err := c.svc.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list Gmail labels: %w", err)
	}

	var labels []Label
	for _, l := range res.Labels {
		if l.Type != "user" {
			continue
		}
		labels = append(labels, Label{ID: l.Id, Name: l.Name})
	}
	return labels, nil
}
