package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// Response is the decoded result of one request. Text holds the body
// transformed to UTF-8 according to the profile charset.
type Response struct {
	StatusCode int
	Header     http.Header
	Cookies    []*http.Cookie
	Body       []byte
	Text       string
}

// Cookie returns the value of a named response cookie, or "".
func (r *Response) Cookie(name string) string {
	for _, c := range r.Cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// Client issues requests under a fixed profile: bounded retries, fixed
// inter-retry delay, fixed timeout, charset-aware form encoding. Session
// cookies added during login are carried on every subsequent request.
type Client struct {
	rc      *resty.Client
	profile Profile
	enc     encoding.Encoding
	logger  *zap.Logger
}

// NewClient builds a Client from a profile.
func NewClient(profile Profile, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, err := lookupEncoding(profile.Charset)
	if err != nil {
		return nil, err
	}

	rc := resty.New().
		SetTimeout(profile.Timeout).
		SetRetryCount(profile.Retries).
		SetRetryWaitTime(profile.RetrySleep).
		SetRetryMaxWaitTime(profile.RetrySleep).
		SetHeader("User-Agent", profile.UserAgent)
	for k, v := range profile.Headers {
		rc.SetHeader(k, v)
	}
	for name, value := range profile.Cookies {
		rc.SetCookie(&http.Cookie{Name: name, Value: value})
	}

	return &Client{
		rc:      rc,
		profile: profile,
		enc:     enc,
		logger:  logger,
	}, nil
}

// Profile returns the profile the client was built from.
func (c *Client) Profile() Profile {
	return c.profile
}

// SetCookie pins a session cookie onto every subsequent request.
func (c *Client) SetCookie(name, value string) {
	c.rc.SetCookie(&http.Cookie{Name: name, Value: value})
}

// Get fetches a URL with optional extra headers.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	req := c.rc.R().SetContext(ctx)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	resp, err := req.Get(url)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	return c.toResponse(resp)
}

// PostForm submits a form-encoded POST, transforming values into the
// profile charset first.
func (c *Client) PostForm(ctx context.Context, url string, form map[string]string, headers map[string]string) (*Response, error) {
	body, err := encodeForm(form, c.enc)
	if err != nil {
		return nil, err
	}
	req := c.rc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(body)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	resp, err := req.Post(url)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	return c.toResponse(resp)
}

// Sleep blocks for the profile's inter-request interval. Listing-phase
// callers use it to serialize consecutive requests; the concurrent fetch
// pool does not.
func (c *Client) Sleep(ctx context.Context) error {
	if c.profile.Sleep <= 0 {
		return nil
	}
	select {
	case <-time.After(c.profile.Sleep):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) toResponse(resp *resty.Response) (*Response, error) {
	body := resp.Body()
	text, err := decodeBody(body, c.enc)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Cookies:    resp.Cookies(),
		Body:       body,
		Text:       text,
	}, nil
}
