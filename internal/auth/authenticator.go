// Package auth executes the multi-step session login protocol against the
// transport profile.
package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kingotools/capture/internal/capture"
	"github.com/kingotools/capture/internal/kingo"
	"github.com/kingotools/capture/internal/transport"
)

// LoginPages parses the login form and verification pages. One implementation
// exists per target site.
type LoginPages interface {
	ParseForm(text string) (fields map[string]string, ready bool)
	CredentialFields(settings capture.Settings) map[string]string
	ParseResult(text string) bool
}

// Authenticator drives the three-step login sequence: form discovery,
// credential submission, result verification.
type Authenticator struct {
	site   kingo.Site
	pages  LoginPages
	logger *zap.Logger
}

// New constructs an Authenticator.
func New(site kingo.Site, pages LoginPages, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{
		site:   site,
		pages:  pages,
		logger: logger,
	}
}

// Login authenticates the profile and returns a session-bearing client.
// The discovered session cookie and hidden form fields are carried into the
// credential POST; on success the same client serves all subsequent phases.
func (a *Authenticator) Login(ctx context.Context, settings capture.Settings, profile transport.Profile) (*transport.Client, error) {
	client, err := transport.NewClient(profile, a.logger)
	if err != nil {
		return nil, err
	}
	loginPage := a.site.LoginPage()

	resp, err := client.Get(ctx, loginPage, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch login form: %w", err)
	}

	fields, ready := a.pages.ParseForm(resp.Text)
	if !ready {
		return nil, capture.ErrLoginFormNotReady
	}
	if session := resp.Cookie(kingo.SessionCookieName); session != "" {
		client.SetCookie(kingo.SessionCookieName, session)
	}
	for k, v := range a.pages.CredentialFields(settings) {
		fields[k] = v
	}

	if err := client.Sleep(ctx); err != nil {
		return nil, err
	}

	result, err := client.PostForm(ctx, loginPage, fields, map[string]string{
		"Referer": loginPage,
	})
	if err != nil {
		return nil, fmt.Errorf("submit credentials: %w", err)
	}

	ok := a.pages.ParseResult(result.Text)
	a.logger.Debug("login attempt finished",
		zap.String("username", settings.Username),
		zap.Bool("success", ok),
	)
	if !ok {
		return nil, capture.ErrLoginRejected
	}
	return client, nil
}
