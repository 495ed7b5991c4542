// Package api is the single outbound channel to the ARI backend. Every
// request passes through one pipeline that attaches the stored session
// credential as a bearer header, tags the request with an X-Request-ID and
// logs the outcome. Operations are typed; authorization is enforced
// authoritatively by the backend on every call.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aridetect/aridetect/internal/domain/analysis"
	"github.com/aridetect/aridetect/internal/domain/patient"
)

// TokenSource yields the current session credential, if any. Reads are
// synchronous and must not block.
type TokenSource interface {
	Get() (string, bool)
}

// Identity is the authenticated clinician as reported by /api/auth/me.
type Identity struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// SessionGrant is the response to a successful one-time session exchange.
type SessionGrant struct {
	SessionToken string   `json:"session_token"`
	User         Identity `json:"user"`
}

// Client is the API gateway client.
type Client struct {
	base      *url.URL
	httpc     *http.Client
	tokens    TokenSource
	logger    zerolog.Logger
	maxUpload int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client (tests, custom
// timeouts).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpc = hc }
}

// WithLogger attaches a structured logger; by default the client is silent.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMaxUploadBytes caps the analysis image payload checked before dispatch.
func WithMaxUploadBytes(n int64) Option {
	return func(c *Client) { c.maxUpload = n }
}

const defaultMaxUploadBytes = 10 << 20

// NewClient builds a client for the backend at baseURL. The tokens source is
// consulted on every request; a missing credential sends the request
// unauthenticated and lets the backend decide rejection.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{
		base:      u,
		httpc:     &http.Client{Timeout: 15 * time.Second},
		tokens:    tokens,
		logger:    zerolog.Nop(),
		maxUpload: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CurrentUser fetches the identity bound to the live credential.
func (c *Client) CurrentUser(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, "", &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// ExchangeSession trades a one-time session identifier for a durable
// credential. The exchange is single-use; any failure aborts the handshake.
func (c *Client) ExchangeSession(ctx context.Context, sessionID string) (*SessionGrant, error) {
	body, err := json.Marshal(map[string]string{"session_id": sessionID})
	if err != nil {
		return nil, err
	}
	var grant SessionGrant
	if err := c.do(ctx, http.MethodPost, "/api/auth/session", bytes.NewReader(body), "application/json", &grant); err != nil {
		return nil, err
	}
	if grant.SessionToken == "" {
		return nil, &AuthError{Status: http.StatusOK, Detail: "exchange returned no session token"}
	}
	return &grant, nil
}

// Logout invalidates the server-side session. Idempotent; callers clear the
// local credential regardless of the outcome.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, "", nil)
}

// ListPatients returns the clinician's patient records in backend order.
func (c *Client) ListPatients(ctx context.Context) ([]patient.Patient, error) {
	var out []patient.Patient
	if err := c.do(ctx, http.MethodGet, "/api/patients", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePatient submits a validated draft and returns the created record
// with its backend-assigned identifier.
func (c *Client) CreatePatient(ctx context.Context, draft patient.Draft) (*patient.Patient, error) {
	if err := draft.Validate(); err != nil {
		return nil, &ValidationError{Detail: err.Error()}
	}
	body, err := json.Marshal(draft)
	if err != nil {
		return nil, err
	}
	var p patient.Patient
	if err := c.do(ctx, http.MethodPost, "/api/patients", bytes.NewReader(body), "application/json", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListAnalyses returns the analysis history, most relevant first as delivered
// by the backend. Image payloads are omitted from listings.
func (c *Client) ListAnalyses(ctx context.Context) ([]analysis.Result, error) {
	var out []analysis.Result
	if err := c.do(ctx, http.MethodGet, "/api/analyses", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAnalysis fetches a single analysis including its encoded image payload.
func (c *Client) GetAnalysis(ctx context.Context, id string) (*analysis.Result, error) {
	if id == "" {
		return nil, &ValidationError{Detail: "analysis id is required"}
	}
	var res analysis.Result
	if err := c.do(ctx, http.MethodGet, "/api/analyses/"+url.PathEscape(id), nil, "", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SubmitAnalysis uploads an X-ray image for the given patient and returns
// the completed analysis. There is no partial result: an error means nothing
// was stored for this attempt.
func (c *Client) SubmitAnalysis(ctx context.Context, req analysis.Request) (*analysis.Result, error) {
	if req.PatientID == "" || len(req.Image) == 0 {
		return nil, &ValidationError{Detail: "patient id and image are required"}
	}
	if int64(len(req.Image)) > c.maxUpload {
		return nil, &ValidationError{Err: ErrImageTooLarge}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	name := req.Filename
	if name == "" {
		name = "xray.jpg"
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(req.Image); err != nil {
		return nil, err
	}
	if err := mw.WriteField("patient_id", req.PatientID); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var res analysis.Result
	if err := c.do(ctx, http.MethodPost, "/api/analyze", &buf, mw.FormDataContentType(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// do runs one request through the shared pipeline: credential injection,
// request id, dispatch, logging, error classification and JSON decoding.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	rid := uuid.NewString()
	req.Header.Set("X-Request-ID", rid)
	if token, ok := c.tokens.Get(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.logger.Error().
			Str("request_id", rid).
			Str("method", method).
			Str("path", path).
			Dur("latency", time.Since(start)).
			Err(err).
			Msg("request")
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	c.logger.Info().
		Str("request_id", rid).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, readDetail(resp.Body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransientError{Status: resp.StatusCode, Detail: "malformed response body", Err: err}
	}
	return nil
}

// readDetail extracts the backend's {"detail": "..."} message when present,
// falling back to the raw body.
func readDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(raw))
}
