package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/collegeos/portal/internal/auth"
)

// Client represents an HTTP client for the College OS API
type Client struct {
	baseURL    string
	base       *url.URL
	httpClient *http.Client
	jar        http.CookieJar
}

// New creates a new API client. The client keeps its own cookie jar so the
// httpOnly session cookie set by /auth/login is sent on every later request.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		base:    base,
		jar:     jar,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}, nil
}

// SetHTTPClient sets a custom HTTP client. The client's cookie jar is kept.
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	httpClient.Jar = c.jar
	c.httpClient = httpClient
}

// BaseURL returns the API base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SeedToken installs the session cookie for the API origin, restoring
// cookie transport for a token persisted from an earlier login.
func (c *Client) SeedToken(token string) {
	c.jar.SetCookies(c.base, []*http.Cookie{{
		Name:     auth.TokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	}})
}

// ClearToken expires the session cookie locally
func (c *Client) ClearToken() {
	c.jar.SetCookies(c.base, []*http.Cookie{{
		Name:   auth.TokenCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}})
}

// Token returns the session cookie currently held for the API origin
func (c *Client) Token() string {
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == auth.TokenCookieName {
			return ck.Value
		}
	}
	return ""
}

// Multipart is a form payload with optional file parts. Its content type
// (with boundary) is set by the encoder.
type Multipart struct {
	Fields map[string]string
	Files  []File
}

// File is one file part of a Multipart payload
type File struct {
	Field    string
	Filename string
	Content  io.Reader
}

type requestOptions struct {
	token string
}

// RequestOption customizes a single request
type RequestOption func(*requestOptions)

// WithToken attaches an explicit bearer token to the request
func WithToken(token string) RequestOption {
	return func(o *requestOptions) {
		o.token = token
	}
}

// Request performs an API call. body is encoded as JSON unless it is a
// *Multipart; out (if non-nil) receives the decoded JSON response. Every
// failure is returned as *APIError.
func (c *Client) Request(ctx context.Context, method, endpoint string, body, out any, opts ...RequestOption) error {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	reader, contentType, err := encodeBody(body)
	if err != nil {
		return &APIError{Message: fmt.Sprintf("failed to encode request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(endpoint, "/"), reader)
	if err != nil {
		return &APIError{Message: fmt.Sprintf("failed to create request: %v", err)}
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if o.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", o.token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("request failed: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromBody(resp.StatusCode, data)
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 || out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case *Multipart:
		return encodeMultipart(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func encodeMultipart(m *Multipart) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range m.Fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	for _, f := range m.Files {
		part, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return &buf, w.FormDataContentType(), nil
}
