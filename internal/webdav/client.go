// Package webdav provides the PROPFIND client and multistatus property
// parser used to read a remote WebDAV hierarchy.
package webdav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/davmount/davmount/internal/logging"
	"github.com/davmount/davmount/internal/metrics"
)

// Depth selects how many hierarchy levels a PROPFIND returns: the element
// only, the element with its children, or the full subtree.
type Depth int

const (
	DepthElementOnly Depth = iota
	DepthWithChildren
	DepthRecursive
)

// Header returns the wire value for the Depth request header.
func (d Depth) Header() string {
	switch d {
	case DepthWithChildren:
		return "1"
	case DepthRecursive:
		return "infinity"
	default:
		return "0"
	}
}

func (d Depth) String() string {
	return d.Header()
}

// propfindBody requests all live properties. The parser keeps only the tags
// it recognizes.
const propfindBody = `<?xml version="1.0" encoding="utf-8"?><D:propfind xmlns:D="DAV:"><D:allprop/></D:propfind>`

// Config holds client configuration.
type Config struct {
	// BaseURL is the server prefix every relative path is resolved against,
	// e.g. https://cloud.example/remote.php/dav/files/alice.
	BaseURL string
	// Username/Password enable HTTP basic auth when Username is non-empty.
	Username string
	Password string
	// Token enables bearer auth when basic auth is not configured.
	Token   string
	Timeout time.Duration

	// Retry policy for transient transport failures. PROPFIND is idempotent,
	// so retrying is always safe.
	RetryAttempts uint
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
}

// Client issues PROPFIND requests against a WebDAV server.
type Client struct {
	baseURL    string
	httpClient *http.Client

	retryAttempts uint
	retryDelay    time.Duration
	retryMaxDelay time.Duration

	mu       sync.RWMutex
	online   bool
	lastPing time.Time
	username string
	password string
	token    string
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.RetryMaxDelay == 0 {
		cfg.RetryMaxDelay = 2 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: logging.Transport(&http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			}),
		},
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		retryMaxDelay: cfg.RetryMaxDelay,
		online:        true,
		username:      cfg.Username,
		password:      cfg.Password,
		token:         cfg.Token,
	}
}

// SetBasicAuth sets basic auth credentials for requests.
func (c *Client) SetBasicAuth(username, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.password = password
}

// SetAuthToken sets the bearer token for requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// applyAuth adds the auth header to a request. Basic auth wins when both are
// configured.
func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// IsOnline returns true if the server is reachable.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			logging.Info("server is back online", logging.String("base_url", c.baseURL))
		} else {
			logging.Error("server is offline", logging.String("base_url", c.baseURL))
		}
	}
	c.online = online
	c.lastPing = time.Now()
}

// Ping checks if the server is reachable via an OPTIONS request.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "OPTIONS", c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	c.setOnline(true)
	return nil
}

// retryableError marks an error worth retrying (transport failure or 5xx).
type retryableError struct {
	err error
}

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var r retryableError
	return errors.As(err, &r)
}

// List issues a PROPFIND for relPath and returns one Prop per remote entry,
// in document order. Transient failures are retried with bounded backoff.
func (c *Client) List(ctx context.Context, relPath string, depth Depth) ([]Prop, error) {
	return retry.DoWithData(
		func() ([]Prop, error) {
			return c.propfind(ctx, relPath, depth)
		},
		retry.Attempts(c.retryAttempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(c.retryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}

func (c *Client) propfind(ctx context.Context, relPath string, depth Depth) ([]Prop, error) {
	target, err := c.buildURL(relPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, "PROPFIND", target, strings.NewReader(propfindBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Depth", depth.Header())
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	c.applyAuth(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		metrics.RecordPropfind(depth.Header(), 0, time.Since(start))
		return nil, retryableError{fmt.Errorf("%w: %v", ErrRequestFailed, err)}
	}
	defer resp.Body.Close()
	c.setOnline(true)
	metrics.RecordPropfind(depth.Header(), resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return nil, retryableError{fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}

	props, err := ParseMultistatus(resp.Body)
	if err != nil {
		metrics.RecordParseError()
		return nil, err
	}

	logging.Debug("propfind complete",
		logging.String("path", relPath),
		logging.String("depth", depth.Header()),
		logging.Int("entries", len(props)),
	)
	return props, nil
}

// buildURL resolves a relative resource path against the base URL, escaping
// each segment.
func (c *Client) buildURL(relPath string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	u.Path = path.Join(u.Path, relPath)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// BasePath returns the path component of the base URL. The handler uses it to
// translate absolute hrefs back into paths relative to the mount root.
func (c *Client) BasePath() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(u.Path, "/")
}
