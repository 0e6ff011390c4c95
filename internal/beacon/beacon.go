// Package beacon pushes the user's status to a Particle "Remote Notify"
// device through the Particle cloud API.
package beacon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	appLog "remindhd/internal/log"
	"remindhd/internal/status"
)

// Notifier receives status changes.
type Notifier interface {
	SetStatus(ctx context.Context, s status.Status) error
}

// Options configures a Particle client.
type Options struct {
	APIURL      string // https://api.particle.io
	DeviceID    string
	Function    string // cloud function name, "setStatus" by default
	AccessToken string
}

// Particle calls a cloud function on a single device.
type Particle struct {
	endpoint string
	client   *http.Client
}

// callResponse is the Particle cloud reply to a function call.
type callResponse struct {
	ID          string `json:"id"`
	Connected   bool   `json:"connected"`
	ReturnValue int    `json:"return_value"`
}

// NewParticle builds a client authenticating with the access token as a
// bearer token.
func NewParticle(ctx context.Context, opts Options) (*Particle, error) {
	if opts.AccessToken == "" || opts.DeviceID == "" {
		return nil, fmt.Errorf("beacon: access token and device id are required")
	}
	if opts.APIURL == "" {
		opts.APIURL = "https://api.particle.io"
	}
	if opts.Function == "" {
		opts.Function = "setStatus"
	}

	base := &http.Client{Timeout: 10 * time.Second}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.AccessToken, TokenType: "Bearer"})

	return &Particle{
		endpoint: strings.TrimRight(opts.APIURL, "/") + "/v1/devices/" +
			url.PathEscape(opts.DeviceID) + "/" + url.PathEscape(opts.Function),
		client: oauth2.NewClient(ctx, ts),
	}, nil
}

// SetStatus sends the status' wire code as the function argument. Non-2xx
// replies and a negative return value are errors.
func (p *Particle) SetStatus(ctx context.Context, s status.Status) error {
	form := url.Values{"arg": {strconv.Itoa(s.Code())}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("beacon: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("beacon: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("beacon: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out callResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("beacon: decode response: %w", err)
	}
	if out.ReturnValue < 0 {
		return fmt.Errorf("beacon: device %s rejected status %s (return value %d)", out.ID, s, out.ReturnValue)
	}

	appLog.Debug("beacon status sent", "status", s, "code", s.Code(), "device", out.ID)
	return nil
}

// Suppressor forwards a status only when it differs from the last one the
// wrapped Notifier accepted. A failed send is retried on the next call.
type Suppressor struct {
	next Notifier

	mu   sync.Mutex
	last status.Status
	sent bool
}

// NewSuppressor wraps next.
func NewSuppressor(next Notifier) *Suppressor {
	return &Suppressor{next: next}
}

func (s *Suppressor) SetStatus(ctx context.Context, st status.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sent && s.last == st {
		return nil
	}
	if err := s.next.SetStatus(ctx, st); err != nil {
		return err
	}
	appLog.Info("beacon status changed", "from", s.last, "to", st)
	s.last = st
	s.sent = true
	return nil
}

// Last returns the last status delivered, if any.
func (s *Suppressor) Last() (status.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.sent
}
