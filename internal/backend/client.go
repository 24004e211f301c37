// Package backend is the JSON-over-HTTP client for the assistant backend's
// WhatsApp pairing endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultAdminPhoneKey is the configuration key the backend stores the
// admin phone under.
const DefaultAdminPhoneKey = "whatsapp.adminPhone"

const defaultTimeout = 15 * time.Second

// maxResponseBytes bounds how much of a response body is read (1MB).
const maxResponseBytes = 1 << 20

// Paths holds the endpoint paths relative to the base URL.
type Paths struct {
	Status       string
	PairingCode  string
	ApplyConfig  string
	FlushSession string
	FactoryReset string
}

// DefaultPaths returns the stock backend routes.
func DefaultPaths() Paths {
	return Paths{
		Status:       "/api/whatsapp/status",
		PairingCode:  "/api/whatsapp/pairing-code",
		ApplyConfig:  "/api/config/apply",
		FlushSession: "/api/whatsapp/flush-session",
		FactoryReset: "/api/whatsapp/factory-reset",
	}
}

// Options configures a Client.
type Options struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	Paths         Paths
	AdminPhoneKey string
	HTTPClient    *http.Client
}

// Client talks to the backend pairing/status service.
type Client struct {
	baseURL       *url.URL
	token         string
	paths         Paths
	adminPhoneKey string
	http          *http.Client
}

// New creates a backend client. Zero-valued paths fall back to DefaultPaths.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend URL must be http or https, got %q", opts.BaseURL)
	}

	def := DefaultPaths()
	p := opts.Paths
	if p.Status == "" {
		p.Status = def.Status
	}
	if p.PairingCode == "" {
		p.PairingCode = def.PairingCode
	}
	if p.ApplyConfig == "" {
		p.ApplyConfig = def.ApplyConfig
	}
	if p.FlushSession == "" {
		p.FlushSession = def.FlushSession
	}
	if p.FactoryReset == "" {
		p.FactoryReset = def.FactoryReset
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	key := opts.AdminPhoneKey
	if key == "" {
		key = DefaultAdminPhoneKey
	}

	return &Client{
		baseURL:       u,
		token:         opts.Token,
		paths:         p,
		adminPhoneKey: key,
		http:          hc,
	}, nil
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// Status fetches the current pairing/connection snapshot.
func (c *Client) Status(ctx context.Context) (*Snapshot, error) {
	const op = "status"
	resp, err := c.do(ctx, op, http.MethodGet, c.paths.Status, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(op, resp.StatusCode, data)
	}

	var sr statusResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, transportError(op, fmt.Errorf("decode status: %w", err))
	}
	return sr.snapshot(), nil
}

// RequestPairingCode asks the backend for a pairing code for phone, which
// must already be normalized to digits.
func (c *Client) RequestPairingCode(ctx context.Context, phone string) (*PairingCode, error) {
	res, err := c.action(ctx, "request pairing code", c.paths.PairingCode, pairingCodeRequest{PhoneNumber: phone})
	if err != nil {
		return nil, err
	}
	pc := &PairingCode{Code: res.Code, FormattedCode: res.FormattedCode}
	if pc.Display() == "" {
		return nil, &RejectedError{Op: "request pairing code", StatusCode: http.StatusOK, Message: "backend returned no pairing code"}
	}
	slog.Info("pairing code issued", "phone_len", len(phone))
	return pc, nil
}

// ConfirmPhone persists phone as the admin phone through the generic
// apply-configuration endpoint.
func (c *Client) ConfirmPhone(ctx context.Context, phone string) (*ApplyResult, error) {
	res, err := c.action(ctx, "confirm phone", c.paths.ApplyConfig, applyConfigRequest{Key: c.adminPhoneKey, Value: phone})
	if err != nil {
		return nil, err
	}
	return &ApplyResult{NeedsRestart: res.NeedsRestart}, nil
}

// FlushSession drops the backend's messaging session so the account must pair again.
func (c *Client) FlushSession(ctx context.Context) error {
	_, err := c.action(ctx, "flush session", c.paths.FlushSession, nil)
	return err
}

// FactoryReset wipes all backend messaging state.
func (c *Client) FactoryReset(ctx context.Context) error {
	_, err := c.action(ctx, "factory reset", c.paths.FactoryReset, nil)
	return err
}

func (c *Client) action(ctx context.Context, op, path string, body any) (*actionResponse, error) {
	resp, err := c.do(ctx, op, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(op, err)
	}

	var ar actionResponse
	if jerr := json.Unmarshal(data, &ar); jerr != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, statusError(op, resp.StatusCode, data)
		}
		return nil, transportError(op, fmt.Errorf("decode response: %w", jerr))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !ar.Success {
		if resp.StatusCode >= 500 && ar.Error == "" && ar.Message == "" {
			return nil, statusError(op, resp.StatusCode, data)
		}
		slog.Warn("backend rejected request", "op", op, "status", resp.StatusCode, "error", ar.errorMessage())
		return nil, &RejectedError{Op: op, StatusCode: resp.StatusCode, Message: ar.errorMessage()}
	}
	return &ar, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, rd)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	return resp, nil
}

// statusError classifies a non-2xx response: a JSON body with an error
// message means the backend rejected the request, anything else is transport.
func statusError(op string, status int, body []byte) error {
	var ar actionResponse
	if json.Unmarshal(body, &ar) == nil && (ar.Error != "" || ar.Message != "") {
		return &RejectedError{Op: op, StatusCode: status, Message: ar.errorMessage()}
	}
	return transportError(op, fmt.Errorf("unexpected status %d", status))
}
