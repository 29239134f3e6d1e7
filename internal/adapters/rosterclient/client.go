// Package rosterclient talks to a remote Roster Store over its HTTP surface.
// Client satisfies the same store contract as the local SQLite repository, so
// a session can run against either.
package rosterclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/courtside/internal/adapters/repository"
	"github.com/okian/courtside/internal/domain/roster"
	"github.com/okian/courtside/pkg/logger"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 1 << 20

type meResponse struct {
	Username string `json:"username"`
	Level    int    `json:"level"`
	XP       int    `json:"xp"`
	XPToNext int    `json:"xpToNext"`
	Money    string `json:"money"`
}

type swapRequest struct {
	From roster.SlotRef `json:"from"`
	To   roster.SlotRef `json:"to"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     logger.Logger
}

// New creates a client for the server at baseURL, e.g. "http://host:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(20), 20),
		logger:     logger.Get().Named("rosterclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug(ctx, "roster request",
		logger.String("method", method),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Duration("took", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return statusError(method, path, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func statusError(method, path string, status int, data []byte) error {
	var eb errorBody
	_ = json.Unmarshal(data, &eb)
	msg := eb.Error
	if msg == "" {
		msg = eb.Message
	}

	switch status {
	case http.StatusNotFound:
		if strings.Contains(strings.ToLower(msg), "roster") {
			return repository.ErrNoRoster
		}
		return fmt.Errorf("%s %s: %s: %w", method, path, msg, repository.ErrNotFound)
	case http.StatusBadRequest:
		return fmt.Errorf("%s %s: %s: %w", method, path, msg, roster.ErrInvalidSlot)
	default:
		return fmt.Errorf("%s %s: %w %d: %s", method, path, ErrUnexpectedStatus, status, msg)
	}
}

// FetchMe reads GET /api/me.
func (c *Client) FetchMe(ctx context.Context) (repository.User, error) {
	var me meResponse
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &me); err != nil {
		return repository.User{}, fmt.Errorf("fetch me: %w", err)
	}
	u := repository.User{Username: me.Username, Level: me.Level, XP: me.XP}
	if me.Money != "" {
		money, err := strconv.ParseInt(me.Money, 10, 64)
		if err != nil {
			return repository.User{}, fmt.Errorf("fetch me: money %q: %w", me.Money, err)
		}
		u.Money = money
	}
	return u, nil
}

// FetchRoster reads GET /api/roster.
func (c *Client) FetchRoster(ctx context.Context) (roster.View, error) {
	var v roster.View
	if err := c.do(ctx, http.MethodGet, "/api/roster", nil, &v); err != nil {
		return roster.View{}, fmt.Errorf("fetch roster: %w", err)
	}
	return v.Sorted(), nil
}

// SwapSlots posts to /api/roster/swap.
func (c *Client) SwapSlots(ctx context.Context, from, to roster.SlotRef) error {
	var ok struct {
		OK bool `json:"ok"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/roster/swap", swapRequest{From: from, To: to}, &ok); err != nil {
		return fmt.Errorf("swap slots: %w", err)
	}
	if !ok.OK {
		return fmt.Errorf("swap slots: %w: ok=false", ErrUnexpectedStatus)
	}
	return nil
}
