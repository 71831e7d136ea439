package jira

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Tiliavir/toggl-jira-sync/internal/apierror"
)

// User is a Jira user.
type User struct {
	Key          string `json:"key"`
	AccountID    string `json:"accountId"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// IdentityKey returns the value work log authors are matched against: the
// user key on Jira Server/Data Center, the account id on Jira Cloud.
func (u *User) IdentityKey() string {
	if u.Key != "" {
		return u.Key
	}
	return u.AccountID
}

// User looks up a user by username. It returns an error wrapping
// apierror.ErrNotFound when no such user exists.
func (c *Client) User(ctx context.Context, username string) (*User, error) {
	var u User
	if err := c.getJSON(ctx, "/rest/api/2/user?username="+url.QueryEscape(username), &u); err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", username, err)
	}
	if u.IdentityKey() == "" {
		return nil, fmt.Errorf("fetching user %s: %w", username, apierror.ErrNotFound)
	}
	return &u, nil
}
