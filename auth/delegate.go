// Package auth gates post creation by delegating identity to an external
// authentication service. This service never parses or mints session
// cookies; it only forwards them on the request path and relays Set-Cookie
// on the registration path.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kvfeed/kvfeed/identity"
)

var (
	// ErrRejected means the auth service answered with a different identity
	// than the one claimed. No write may happen.
	ErrRejected = errors.New("auth: identity rejected")
	// ErrVerifyUnavailable means the verification call itself failed. It is
	// distinct from ErrRejected so the taxonomy stays testable, even though
	// both surface as 401 on the wire.
	ErrVerifyUnavailable = errors.New("auth: verification unavailable")
	// ErrUnavailable covers the remaining auth service failures
	// (registration call, response body); surfaced as a gateway error.
	ErrUnavailable = errors.New("auth: service unavailable")
)

// Result carries what a successful gate hands back to the response path.
type Result struct {
	// SetCookie is the auth server's Set-Cookie header value, relayed
	// verbatim so the client's next request is already authenticated.
	// Non-empty only when the user was registered by this request.
	SetCookie string
}

// Delegate decides new-vs-existing user and talks to the auth server.
type Delegate struct {
	baseURL  string
	registry *identity.Registry
	client   *http.Client
}

// NewDelegate builds a delegate for the auth server at baseURL. The client
// carries a bounded timeout so a hanging auth server turns into a
// deterministic unavailability error, never a stuck request.
func NewDelegate(baseURL string, registry *identity.Registry) *Delegate {
	return &Delegate{
		baseURL:  baseURL,
		registry: registry,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// GatePost runs the per-request state machine for a post creation.
//
// Known user with a cookie: the cookie is forwarded to /verify and the
// response body must byte-equal the claimed username. Known user without a
// cookie proceeds unverified; that permissive gap is a deliberate
// compatibility choice, kept visible rather than silently tightened.
//
// Unknown user: /auth/{username} is called first and the local registration
// commits only after it succeeds, so a failed external call never leaves a
// username that is known locally but has no session on the auth side.
func (d *Delegate) GatePost(ctx context.Context, username, cookie, now string) (Result, error) {
	known, err := d.registry.IsKnown(ctx, username)
	if err != nil {
		return Result{}, err
	}

	if known {
		if cookie == "" {
			return Result{}, nil
		}
		if err := d.verify(ctx, username, cookie); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	}

	setCookie, err := d.register(ctx, username)
	if err != nil {
		return Result{}, err
	}
	if err := d.registry.Register(ctx, username, now); err != nil {
		return Result{}, err
	}
	return Result{SetCookie: setCookie}, nil
}

func (d *Delegate) verify(ctx context.Context, username, cookie string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/verify", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyUnavailable, err)
	}
	req.Header.Set("Cookie", cookie)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading verify response: %v", ErrUnavailable, err)
	}
	if string(body) != username {
		return ErrRejected
	}
	return nil
}

func (d *Delegate) register(ctx context.Context, username string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/auth/"+url.PathEscape(username), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	setCookie := resp.Header.Get("Set-Cookie")
	if setCookie == "" {
		return "", fmt.Errorf("%w: auth server sent no Set-Cookie", ErrUnavailable)
	}
	return setCookie, nil
}
