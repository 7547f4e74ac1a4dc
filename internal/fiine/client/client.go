package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/harvardinformatics/ifxbilling-sub000/internal/config"
	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/fiine/domain"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 30 * time.Second
	retryWaitMin   = 100 * time.Millisecond
	retryWaitMax   = 2 * time.Second
)

// Client reads account authorizations from the fiine HTTP API.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	token   string
	log     *zap.Logger
}

var _ domain.AccountSource = (*Client)(nil)

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	log = log.Named("fiine.client")

	timeout := cfg.Fiine.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: timeout}
	rc.RetryMax = max(cfg.Fiine.MaxRetries, 0)
	rc.RetryWaitMin = retryWaitMin
	rc.RetryWaitMax = retryWaitMax
	rc.Logger = leveledLogger{log: log.Sugar()}

	return &Client{
		http:    rc,
		baseURL: cfg.Fiine.BaseURL,
		token:   cfg.Fiine.Token,
		log:     log,
	}
}

// UserAccounts fetches every authorization fiine reports for username.
func (c *Client) UserAccounts(ctx context.Context, username string) ([]domain.RemoteAuthorization, error) {
	if c.baseURL == "" {
		return nil, ierr.NewError("fiine base URL is not configured").
			WithHint("set FIINE_URL").
			Mark(ierr.ErrConfiguration)
	}
	if username == "" {
		return nil, ierr.NewError("username is required").Mark(ierr.ErrValidation)
	}

	endpoint := fmt.Sprintf("%s/users/%s/accounts", c.baseURL, url.PathEscape(username))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to create fiine request").Mark(ierr.ErrExternal)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ierr.WithError(err).WithMessagef("fiine request for %s failed", username).Mark(ierr.ErrExternal)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ierr.NewErrorf("fiine has no user %s", username).Mark(ierr.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, ierr.NewErrorf("fiine returned %d for %s: %s", resp.StatusCode, username, string(body)).
			Mark(ierr.ErrExternal)
	}

	var payload domain.UserAccountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to decode fiine response").Mark(ierr.ErrExternal)
	}

	c.log.Debug("fetched fiine accounts",
		zap.String("username", username),
		zap.Int("accounts", len(payload.Accounts)),
	)
	return payload.Accounts, nil
}

// leveledLogger routes retryablehttp logging through zap.
type leveledLogger struct {
	log *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Warnw(msg, kv...) }
