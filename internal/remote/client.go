// Package remote implements the HTTP client for the cloud sync
// service: book summary listing, metadata sync, payload upload and
// download, and reading session batches.
package remote

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	domainerrors "github.com/inkwellapp/inkwell-client/internal/errors"
	"github.com/inkwellapp/inkwell-client/internal/ratelimit"
)

const (
	defaultRPS     = 4.0
	defaultBurst   = 8
	defaultTimeout = 60 * time.Second

	// Rate limiter keys, one bucket per endpoint category.
	keyBooks    = "books"
	keyPayloads = "payloads"
	keySessions = "sessions"
)

// TokenSource supplies the auth token attached to every request.
// A failure to obtain a token is a connection-level condition: the
// sync pass is skipped, not surfaced as a remote rejection.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

func (t StaticToken) Token(_ context.Context) (string, error) {
	if t == "" {
		return "", domainerrors.Connection("no auth token available")
	}
	return string(t), nil
}

// Client is a rate-limited sync service client.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	tokens  TokenSource
	logger  *slog.Logger
}

// New creates a new sync client for the given base URL.
func New(baseURL string, tokens TokenSource, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter: ratelimit.New(defaultRPS, defaultBurst),
		tokens:  tokens,
		logger:  logger,
	}
}

// SetRate overrides the default request pacing.
func (c *Client) SetRate(rps float64, burst int) {
	c.limiter = ratelimit.New(rps, burst)
}

// doRequest executes an authenticated, rate-limited request and
// returns the response body for 2xx answers.
func (c *Client) doRequest(ctx context.Context, limiterKey, method, path string, body io.Reader, contentType string) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx, limiterKey); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", "Inkwell/1.0")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("remote request",
		slog.String("method", method),
		slog.String("path", path))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domainerrors.Connectionf("request %s %s failed", method, path).WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domainerrors.Connection("read response").WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domainerrors.Remotef("remote rejected %s %s: status %d", method, path, resp.StatusCode).
			WithDetails(map[string]string{"body": string(respBody), "status": strconv.Itoa(resp.StatusCode)})
	}
	return respBody, nil
}

// ListBooks returns the remote's book summary list.
func (c *Client) ListBooks(ctx context.Context) ([]BookSummary, error) {
	body, err := c.doRequest(ctx, keyBooks, http.MethodGet, "/books", nil, "")
	if err != nil {
		return nil, err
	}

	var summaries []BookSummary
	if err := json.Unmarshal(body, &summaries); err != nil {
		return nil, domainerrors.Remote("decode book list").WithCause(err)
	}
	return summaries, nil
}

// SyncBookMeta pushes cheap metadata fields for one book. The remote
// answers with its own newer copy, or null when the local copy won.
func (c *Client) SyncBookMeta(ctx context.Context, meta BookMeta) (*BookMeta, error) {
	reqBody, err := json.Marshal(syncBookRequest{Book: meta})
	if err != nil {
		return nil, err
	}

	body, err := c.doRequest(ctx, keyBooks, http.MethodPut, "/books/sync", bytes.NewReader(reqBody), "application/json")
	if err != nil {
		return nil, err
	}

	var resp syncBookResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domainerrors.Remote("decode sync response").WithCause(err)
	}
	return resp.Book, nil
}

// UploadPayload sends a compressed book payload as a multipart upload
// and returns the URL the payload is retrievable from. Progress is
// reported through the optional callback as bytes leave the client.
func (c *Client) UploadPayload(ctx context.Context, uniqueID string, payload []byte, progress ProgressFunc) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("payload", uniqueID+".bin.gz")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(payload); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	reader := newProgressReader(&buf, int64(buf.Len()), progress)
	body, err := c.doRequest(ctx, keyPayloads, http.MethodPost,
		"/books/upload/"+url.PathEscape(uniqueID), reader, mw.FormDataContentType())
	if err != nil {
		return "", err
	}

	var resp uploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", domainerrors.Remote("decode upload response").WithCause(err)
	}
	return resp.URL, nil
}

// FetchPayload downloads a compressed book payload from the URL
// returned by the upload or list endpoints. Relative URLs are resolved
// against the client's base URL.
func (c *Client) FetchPayload(ctx context.Context, payloadURL string) ([]byte, error) {
	path := payloadURL
	if u, err := url.Parse(payloadURL); err == nil && u.IsAbs() {
		// Absolute URL from the remote: strip the base so doRequest
		// can prepend it again.
		path = u.Path
		if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
	}
	return c.doRequest(ctx, keyPayloads, http.MethodGet, path, nil, "")
}

// FetchBookPayload downloads the current payload for one book by its
// conventional path.
func (c *Client) FetchBookPayload(ctx context.Context, uniqueID string) ([]byte, error) {
	return c.FetchPayload(ctx, "/books/payload/"+url.PathEscape(uniqueID))
}

// CreateSessions uploads a batch of finished reading sessions. The
// remote answers per session; callers must treat the batch as
// partially applied and only mark acknowledged sessions synced.
func (c *Client) CreateSessions(ctx context.Context, sessions []SessionRecord) ([]SessionAck, error) {
	reqBody, err := json.Marshal(createSessionsRequest{Sessions: sessions})
	if err != nil {
		return nil, err
	}

	body, err := c.doRequest(ctx, keySessions, http.MethodPost, "/reading_sessions", bytes.NewReader(reqBody), "application/json")
	if err != nil {
		return nil, err
	}

	var resp createSessionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domainerrors.Remote("decode session acks").WithCause(err)
	}
	return resp.Results, nil
}

// DeleteSession propagates a local session tombstone to the remote.
func (c *Client) DeleteSession(ctx context.Context, snowflake int64) error {
	_, err := c.doRequest(ctx, keySessions, http.MethodDelete,
		"/reading_sessions/"+strconv.FormatInt(snowflake, 10), nil, "")
	return err
}

// PullSessions fetches remote session deltas since the given cursor.
func (c *Client) PullSessions(ctx context.Context, cursor string) (*PullSessionsResponse, error) {
	path := "/reading_sessions/sync"
	if cursor != "" {
		path += "?cursor=" + url.QueryEscape(cursor)
	}
	body, err := c.doRequest(ctx, keySessions, http.MethodPut, path, nil, "")
	if err != nil {
		return nil, err
	}

	var resp PullSessionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domainerrors.Remote("decode session deltas").WithCause(err)
	}
	return &resp, nil
}
