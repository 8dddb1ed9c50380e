package arcgis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"storm-truck-count/internal/platform/obs"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client implements FeatureService against the ArcGIS REST API
// (ArcGIS Online or Portal).
//
// It coordinates:
//   - Token sign-in with named-user credentials
//   - Catalog item lookup and search
//   - Layer/table discovery, feature query and feature update
//
// A Client holds one session and is meant for a single run.
type Client struct {
	session      *http.Client
	rootURL      string
	username     string
	password     string
	token        string
	readAttempts int
	backoff      time.Duration
}

type Options struct {
	RootURL  string
	Username string
	Password string
	Timeout  time.Duration
	// Attempts for read-only calls; updates are always sent once.
	ReadAttempts int
	// Logs each request at debug level when set.
	Logger *zap.Logger
	// Overrides the transport, mainly for tests.
	Transport http.RoundTripper
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.RootURL) == "" {
		return nil, errors.New("arcgis root url is empty")
	}
	if opts.Username == "" || opts.Password == "" {
		return nil, errors.New("arcgis credentials are empty")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.Logger != nil {
		transport = &loggingTransport{next: transport, logger: opts.Logger}
	}

	client := &Client{
		session:      &http.Client{Timeout: timeout, Transport: transport},
		rootURL:      strings.TrimRight(opts.RootURL, "/"),
		username:     opts.Username,
		password:     opts.Password,
		readAttempts: opts.ReadAttempts,
		backoff:      200 * time.Millisecond,
	}

	return client, nil
}

type tokenResponse struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}

// SignIn exchanges the named-user credentials for a token used by every later call.
func (c *Client) SignIn(ctx context.Context) (err error) {
	defer obs.Time(ctx, "arcgis.SignIn")(&err)

	endpoint := c.rootURL + "/sharing/rest/generateToken"

	c.token = ""
	params := url.Values{
		"username":   {c.username},
		"password":   {c.password},
		"client":     {"referer"},
		"referer":    {c.rootURL},
		"expiration": {"60"},
	}

	req, err := c.newRequest(ctx, http.MethodPost, endpoint, params)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	var tr tokenResponse
	if err := decode(resp, &tr); err != nil {
		return fmt.Errorf("sign in as %q: %w", c.username, err)
	}
	if tr.Token == "" {
		return fmt.Errorf("sign in as %q: empty token in response", c.username)
	}

	c.token = tr.Token
	return nil
}

// get issues a read-only GET, retried per readAttempts, and decodes the response.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		p := url.Values{}
		for k, v := range params {
			p[k] = append([]string(nil), v...)
		}
		return c.newRequest(ctx, http.MethodGet, endpoint, p)
	})
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}

	return decode(resp, out)
}
