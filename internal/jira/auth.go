package jira

import (
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Authenticator applies authentication to requests.
type Authenticator interface {
	Apply(req *http.Request) error
}

// BasicAuth authenticates with username and password, or with an Atlassian
// account email and API token.
type BasicAuth struct {
	Username string
	Password string
}

func (b *BasicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// TokenAuth authenticates with a bearer token drawn from an oauth2.TokenSource,
// which covers both personal access tokens and refreshed OAuth access tokens.
type TokenAuth struct {
	Source oauth2.TokenSource
}

// NewTokenAuth returns a TokenAuth for a fixed bearer token such as a Jira
// Data Center personal access token.
func NewTokenAuth(token string) *TokenAuth {
	return &TokenAuth{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
	}
}

func (t *TokenAuth) Apply(req *http.Request) error {
	tok, err := t.Source.Token()
	if err != nil {
		return fmt.Errorf("obtaining token: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("no access token available")
	}
	tok.SetAuthHeader(req)
	return nil
}
