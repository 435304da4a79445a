// Package transport moves snapshots between this device and the remote
// key-value endpoint.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fuusan091240-hub/flow-schedule/internal/accesskey"
	"github.com/fuusan091240-hub/flow-schedule/internal/snapshot"
)

var (
	ErrSendFailure  = errors.New("transport: send failed")
	ErrFetchError   = errors.New("transport: fetch failed")
	ErrFetchTimeout = errors.New("transport: fetch timed out")
)

const (
	ActionSave = "save"
	ActionLoad = "load"

	// CallbackHeader echoes the caller's correlation token on load responses.
	CallbackHeader = "X-Flow-Callback"

	DefaultFetchTimeout = 10 * time.Second
	DefaultSendTimeout  = 5 * time.Second

	maxResponseSize = 4 << 20
)

// Transport is the remote store seen by the reconciler.
type Transport interface {
	// Send is best effort: acceptance by the endpoint counts as success.
	Send(ctx context.Context, key accesskey.Key, env snapshot.Envelope) error
	// Fetch returns nil when the remote holds no snapshot for key.
	Fetch(ctx context.Context, key accesskey.Key) (*snapshot.Envelope, error)
}

// SaveRequest is the body of a save call.
type SaveRequest struct {
	snapshot.Envelope
	AccessKey string `json:"accessKey"`
}

type HTTPTransport struct {
	endpoint     *url.URL
	client       *http.Client
	fetchTimeout time.Duration
	sendTimeout  time.Duration
	newToken     func() string
	now          func() time.Time
}

type Option func(*HTTPTransport)

func WithHTTPClient(c *http.Client) Option {
	return func(t *HTTPTransport) {
		if c != nil {
			t.client = c
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.fetchTimeout = d
		}
	}
}

func WithSendTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.sendTimeout = d
		}
	}
}

func WithTokenSource(fn func() string) Option {
	return func(t *HTTPTransport) {
		if fn != nil {
			t.newToken = fn
		}
	}
}

func NewHTTPTransport(endpoint string, opts ...Option) (*HTTPTransport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("transport: parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("transport: unsupported endpoint scheme %q", u.Scheme)
	}
	t := &HTTPTransport{
		endpoint:     u,
		client:       &http.Client{},
		fetchTimeout: DefaultFetchTimeout,
		sendTimeout:  DefaultSendTimeout,
		newToken:     func() string { return "flow_cb_" + uuid.NewString() },
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *HTTPTransport) Send(ctx context.Context, key accesskey.Key, env snapshot.Envelope) error {
	body, err := json.Marshal(SaveRequest{Envelope: env, AccessKey: key.String()})
	if err != nil {
		return fmt.Errorf("%w: encode body: %v", ErrSendFailure, err)
	}
	ctx, cancel := context.WithTimeout(ctx, t.sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.actionURL(ActionSave, nil), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailure, err)
	}
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailure, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrSendFailure, resp.StatusCode)
	}
	return nil
}

func (t *HTTPTransport) Fetch(ctx context.Context, key accesskey.Key) (*snapshot.Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, t.fetchTimeout)
	defer cancel()

	token := t.newToken()
	target := t.actionURL(ActionLoad, url.Values{
		"accessKey": {key.String()},
		"callback":  {token},
		"t":         {strconv.FormatInt(t.now().UnixMilli(), 10)},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchError, err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrFetchTimeout, t.fetchTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrFetchError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchError, resp.StatusCode)
	}
	if got := resp.Header.Get(CallbackHeader); got != token {
		return nil, fmt.Errorf("%w: callback mismatch", ErrFetchError)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrFetchTimeout, t.fetchTimeout)
		}
		return nil, fmt.Errorf("%w: read body: %v", ErrFetchError, err)
	}
	env, err := snapshot.ParseEnvelope(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchError, err)
	}
	return env, nil
}

func (t *HTTPTransport) actionURL(action string, extra url.Values) string {
	u := *t.endpoint
	q := u.Query()
	q.Set("action", action)
	for k, vs := range extra {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
