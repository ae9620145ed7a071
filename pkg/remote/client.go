package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-offline-sync/internal/models"
	"github.com/noah-isme/attendance-offline-sync/pkg/config"
	appErrors "github.com/noah-isme/attendance-offline-sync/pkg/errors"
	"github.com/noah-isme/attendance-offline-sync/pkg/middleware/requestid"
)

const (
	// CSRFCookieName is the session cookie carrying the anti-forgery token.
	CSRFCookieName = "csrftoken"
	// CSRFHeader echoes the cookie value on unsafe requests.
	CSRFHeader = "X-CSRFToken"

	maxErrorBody = 2048
)

// Client uploads attendance batches to the remote sync endpoint.
type Client struct {
	endpoint *url.URL
	http     *http.Client
	logger   *zap.Logger
}

// NewClient builds a client with its own cookie jar. A non-empty cfg.CSRFToken seeds the jar.
func NewClient(cfg config.SyncConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint, err := url.Parse(cfg.EndpointURL)
	if err != nil {
		return nil, fmt.Errorf("parse sync endpoint: %w", err)
	}
	if endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("sync endpoint %q must be an absolute URL", cfg.EndpointURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout, Jar: jar},
		logger:   logger,
	}
	if cfg.CSRFToken != "" {
		c.SetCSRFToken(cfg.CSRFToken)
	}
	return c, nil
}

// Endpoint returns the configured sync URL.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// SetCSRFToken stores the token as the csrftoken cookie for the endpoint's host.
func (c *Client) SetCSRFToken(token string) {
	c.http.Jar.SetCookies(c.endpoint, []*http.Cookie{{Name: CSRFCookieName, Value: token, Path: "/"}})
}

// CSRFToken reads the current csrftoken cookie, or "" when none is held.
func (c *Client) CSRFToken() string {
	for _, cookie := range c.http.Jar.Cookies(c.endpoint) {
		if cookie.Name == CSRFCookieName {
			return cookie.Value
		}
	}
	return ""
}

// SubmitBatch posts one course/date sheet. Network errors, timeouts and non-2xx
// responses are ErrTransport; a reachable endpoint answering success=false is ErrProtocol.
func (c *Client) SubmitBatch(ctx context.Context, batch models.AttendanceBatch) (models.BatchAck, error) {
	var ack models.BatchAck

	body, err := json.Marshal(batch)
	if err != nil {
		return ack, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return ack, appErrors.WrapAs(appErrors.ErrTransport, err, "")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(CSRFHeader, c.CSRFToken())
	reqID := requestid.FromContext(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	req.Header.Set(requestid.HeaderKey, reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return ack, appErrors.WrapAs(appErrors.ErrTransport, err, "")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ack, appErrors.WrapAs(appErrors.ErrTransport, fmt.Errorf("read response: %w", err), "")
	}

	c.logger.Debug("sync batch posted",
		zap.String("request_id", reqID),
		zap.Int64("course", batch.Course),
		zap.String("date", batch.Date),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ack, appErrors.WrapAs(appErrors.ErrTransport,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(raw)), "")
	}

	if err := json.Unmarshal(raw, &ack); err != nil {
		return ack, appErrors.WrapAs(appErrors.ErrProtocol, fmt.Errorf("decode acknowledgment: %w", err), "")
	}
	if !ack.Success {
		reason := ack.Error
		if reason == "" {
			reason = ack.Message
		}
		if reason == "" {
			reason = "success=false"
		}
		return ack, appErrors.WrapAs(appErrors.ErrProtocol, errors.New(reason), "")
	}
	return ack, nil
}

func truncate(raw []byte) string {
	if len(raw) > maxErrorBody {
		return string(raw[:maxErrorBody]) + "..."
	}
	return string(raw)
}
