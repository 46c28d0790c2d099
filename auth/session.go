// Package auth establishes the OAuth2 session shared by the Drive source and
// the Photos destination. Login happens at most once per process; the token
// is cached on disk and refreshed transparently.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var ErrNoCredentials = errors.New("auth: client id and client secret are required")

// ConsentFunc obtains a fresh token interactively.
type ConsentFunc func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)

type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	TokenFile    string
	User         string
}

// Session lazily logs in and hands out a token source reused by every caller.
type Session struct {
	oauth     *oauth2.Config
	tokenFile string
	user      string
	consent   ConsentFunc

	mu sync.Mutex
	ts oauth2.TokenSource
}

func NewSession(cfg Config, consent ConsentFunc) *Session {
	return &Session{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       cfg.Scopes,
		},
		tokenFile: cfg.TokenFile,
		user:      cfg.User,
		consent:   consent,
	}
}

// TokenSource returns the session token source, logging in on first use.
// Concurrent callers wait for a single login. A failed login is not
// remembered, so the next call tries again.
func (s *Session) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ts != nil {
		return s.ts, nil
	}
	if s.oauth.ClientID == "" || s.oauth.ClientSecret == "" {
		return nil, ErrNoCredentials
	}

	tok, err := loadToken(s.tokenFile)
	if err != nil {
		slog.Warn("ignoring unreadable token cache", "file", s.tokenFile, "error", err)
	}
	if tok == nil {
		if s.consent == nil {
			return nil, errors.New("auth: no cached token and no interactive consent available")
		}
		slog.Info("logging in to Google", "user", s.user)
		tok, err = s.consent(ctx, s.oauth)
		if err != nil {
			return nil, fmt.Errorf("auth: consent: %w", err)
		}
		if err := saveToken(s.tokenFile, tok); err != nil {
			return nil, err
		}
		slog.Info("logged in to Google", "user", s.user)
	}

	// refreshes must outlive the context of the call that triggered login
	base := s.oauth.TokenSource(context.Background(), tok)
	s.ts = &cachingTokenSource{
		base: oauth2.ReuseTokenSource(tok, base),
		file: s.tokenFile,
		last: tok.AccessToken,
	}
	return s.ts, nil
}

// LazyTokenSource returns a token source that logs in on its first Token
// call. It lets clients be built before the user has consented.
func (s *Session) LazyTokenSource(ctx context.Context) oauth2.TokenSource {
	return &lazyTokenSource{ctx: ctx, session: s}
}

type lazyTokenSource struct {
	ctx     context.Context
	session *Session
}

func (l *lazyTokenSource) Token() (*oauth2.Token, error) {
	ts, err := l.session.TokenSource(l.ctx)
	if err != nil {
		return nil, err
	}
	return ts.Token()
}

// cachingTokenSource writes refreshed tokens back to the cache file.
type cachingTokenSource struct {
	base oauth2.TokenSource
	file string

	mu   sync.Mutex
	last string
}

func (c *cachingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := c.base.Token()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tok.AccessToken != c.last {
		if err := saveToken(c.file, tok); err != nil {
			slog.Warn("failed to cache refreshed token", "file", c.file, "error", err)
		}
		c.last = tok.AccessToken
	}
	return tok, nil
}
