package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/integrasaude/hl7-engine/internal/hl7"
	"github.com/integrasaude/hl7-engine/internal/mllp"
)

// restChannel delivers messages to generic vendor REST intakes. The auth
// scheme is pluggable: API-key header, HTTP Basic, static Bearer, or OAuth2
// client credentials with a cached token.
type restChannel struct {
	endpoint string
	client   *http.Client
	auth     authProvider
}

func newRESTChannel(cfg Config) *restChannel {
	client := &http.Client{Timeout: cfg.SendTimeout + cfg.AckTimeout}
	return &restChannel{
		endpoint: cfg.Endpoint,
		client:   client,
		auth:     newAuthProvider(cfg.Auth, client),
	}
}

type restPayload struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

func (r *restChannel) Send(ctx context.Context, msg *hl7.Message) error {
	body, err := json.Marshal(restPayload{
		ID:        msg.ControlID,
		Type:      msg.Type,
		Timestamp: time.Now(),
		Message:   string(msg.Encode()),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := r.auth.apply(ctx, req); err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post %s: %v", mllp.ErrConnectionFailed, r.endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: http %d", ErrAuthError, resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: http %d", ErrVendorRejected, resp.StatusCode)
	default:
		return fmt.Errorf("%w: http %d", mllp.ErrConnectionFailed, resp.StatusCode)
	}
}

func (r *restChannel) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.endpoint, nil)
	if err != nil {
		return err
	}
	if err := r.auth.apply(ctx, req); err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", mllp.ErrConnectionFailed, err)
	}
	resp.Body.Close()
	return nil
}

// authProvider attaches credentials to an outgoing request.
type authProvider interface {
	apply(ctx context.Context, req *http.Request) error
}

func newAuthProvider(cfg AuthConfig, client *http.Client) authProvider {
	switch cfg.Kind {
	case AuthAPIKey:
		header := cfg.APIKeyHeader
		if header == "" {
			header = "X-API-Key"
		}
		return apiKeyAuth{header: header, key: cfg.APIKey}
	case AuthBasic:
		return basicAuth{username: cfg.Username, password: cfg.Password}
	case AuthBearer:
		return bearerAuth{token: cfg.Token}
	case AuthOAuth2:
		return &oauth2Auth{cfg: cfg, client: client}
	default:
		return noAuth{}
	}
}

type noAuth struct{}

func (noAuth) apply(context.Context, *http.Request) error { return nil }

type apiKeyAuth struct {
	header string
	key    string
}

func (a apiKeyAuth) apply(_ context.Context, req *http.Request) error {
	req.Header.Set(a.header, a.key)
	return nil
}

type basicAuth struct {
	username string
	password string
}

func (a basicAuth) apply(_ context.Context, req *http.Request) error {
	req.SetBasicAuth(a.username, a.password)
	return nil
}

type bearerAuth struct {
	token string
}

func (a bearerAuth) apply(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+a.token)
	return nil
}

// oauth2Auth implements the client-credentials grant with a cached token.
// Concurrent requests finding the token expired share one in-flight refresh
// instead of each hitting the token endpoint.
type oauth2Auth struct {
	cfg    AuthConfig
	client *http.Client

	mu      sync.Mutex
	token   string
	expiry  time.Time
	refresh *refreshCall
}

type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

func (a *oauth2Auth) apply(ctx context.Context, req *http.Request) error {
	token, err := a.tokenFor(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (a *oauth2Auth) tokenFor(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.token != "" && time.Until(a.expiry) > 30*time.Second {
		token := a.token
		a.mu.Unlock()
		return token, nil
	}
	call := a.refresh
	if call == nil {
		call = &refreshCall{done: make(chan struct{})}
		a.refresh = call
		go a.doRefresh(call)
	}
	a.mu.Unlock()

	select {
	case <-call.done:
		return call.token, call.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrAuthError, ctx.Err())
	}
}

func (a *oauth2Auth) doRefresh(call *refreshCall) {
	defer func() {
		a.mu.Lock()
		a.refresh = nil
		a.mu.Unlock()
		close(call.done)
	}()

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {a.cfg.ClientID},
		"client_secret": {a.cfg.ClientSecret},
	}
	if a.cfg.Scope != "" {
		form.Set("scope", a.cfg.Scope)
	}

	req, err := http.NewRequest(http.MethodPost, a.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		call.err = fmt.Errorf("%w: %v", ErrAuthError, err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		call.err = fmt.Errorf("%w: token endpoint: %v", ErrAuthError, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		call.err = fmt.Errorf("%w: token endpoint returned http %d", ErrAuthError, resp.StatusCode)
		return
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		call.err = fmt.Errorf("%w: decode token: %v", ErrAuthError, err)
		return
	}
	if payload.AccessToken == "" {
		call.err = fmt.Errorf("%w: empty access token", ErrAuthError)
		return
	}

	a.mu.Lock()
	a.token = payload.AccessToken
	a.expiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	a.mu.Unlock()

	call.token = payload.AccessToken
}
