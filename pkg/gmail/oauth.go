// Package gmail provides the mailbox client used for outreach sending
// and reply scanning, authenticated per account via OAuth2.
package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes requested for outreach mailboxes: send plus read-only inbox
// access for reply detection.
var Scopes = []string{
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/gmail.readonly",
}

// OAuthConfig holds the OAuth2 client settings for mailbox linking.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewOAuthConfig returns an oauth2.Config for the Gmail scopes.
func NewOAuthConfig(cfg OAuthConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

// MarshalToken serializes an OAuth token for storage.
func MarshalToken(tok *oauth2.Token) ([]byte, error) {
	data, err := json.Marshal(tok)
	return data, eris.Wrap(err, "gmail: marshal token")
}

// UnmarshalToken deserializes a stored OAuth token.
func UnmarshalToken(data []byte) (*oauth2.Token, error) {
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, eris.Wrap(err, "gmail: unmarshal token")
	}
	return &tok, nil
}

// IsAuthRevoked reports whether the error indicates irrecoverably
// revoked or invalid credentials, as opposed to a transient failure.
// Accounts hitting this must be flipped to error status.
func IsAuthRevoked(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.Response != nil &&
			(re.Response.StatusCode == http.StatusBadRequest ||
				re.Response.StatusCode == http.StatusUnauthorized)
	}
	return false
}

// NotifyingTokenSource wraps a token source and invokes onRefresh
// whenever the underlying source hands back a new access token, so the
// caller can persist it.
func NotifyingTokenSource(ts oauth2.TokenSource, onRefresh func(*oauth2.Token)) oauth2.TokenSource {
	return &notifyingSource{src: ts, onRefresh: onRefresh}
}

type notifyingSource struct {
	mu        sync.Mutex
	src       oauth2.TokenSource
	onRefresh func(*oauth2.Token)
	last      string
}

func (s *notifyingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	changed := tok.AccessToken != s.last
	s.last = tok.AccessToken
	s.mu.Unlock()
	if changed && s.onRefresh != nil {
		s.onRefresh(tok)
	}
	return tok, nil
}

// TokenSource builds a refreshing token source for a stored token.
func TokenSource(ctx context.Context, cfg OAuthConfig, stored []byte, onRefresh func(*oauth2.Token)) (oauth2.TokenSource, error) {
	tok, err := UnmarshalToken(stored)
	if err != nil {
		return nil, err
	}
	base := NewOAuthConfig(cfg).TokenSource(ctx, tok)
	return NotifyingTokenSource(base, onRefresh), nil
}
