package nodemanager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultUserAgent is sent with every request made by HTTPTransport.
const DefaultUserAgent = "ledger-nodemanager"

// upper bound on how much of a node response we read.
const maxResponseSize = 32 << 20

const (
	mimeJSON  = "application/json"
	mimeBytes = "application/vnd.iota.serializer-v1"
)

// HTTPTransport is a Transport talking to node REST APIs over HTTP.
type HTTPTransport struct {
	client    *http.Client
	userAgent string
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport returns a transport using client, or a new client when nil.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{client: client, userAgent: DefaultUserAgent}
}

func (t *HTTPTransport) Get(ctx context.Context, node Node, timeout time.Duration) (Response, error) {
	return t.do(ctx, http.MethodGet, node, timeout, nil, "", mimeJSON)
}

func (t *HTTPTransport) GetBytes(ctx context.Context, node Node, timeout time.Duration) (Response, error) {
	return t.do(ctx, http.MethodGet, node, timeout, nil, "", mimeBytes)
}

func (t *HTTPTransport) PostBytes(ctx context.Context, node Node, timeout time.Duration, body []byte) (Response, error) {
	return t.do(ctx, http.MethodPost, node, timeout, body, mimeBytes, mimeJSON)
}

func (t *HTTPTransport) PostJSON(ctx context.Context, node Node, timeout time.Duration, body any) (Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return t.do(ctx, http.MethodPost, node, timeout, b, mimeJSON, mimeJSON)
}

// CloseIdleConnections releases pooled connections of the underlying client.
func (t *HTTPTransport) CloseIdleConnections() {
	t.client.CloseIdleConnections()
}

func (t *HTTPTransport) do(ctx context.Context, method string, node Node, timeout time.Duration, body []byte, contentType, accept string) (resp Response, err error) {
	requestId := uuid.NewString()
	reqUrl := node.URL.String()
	start := time.Now()
	code := 0

	defer func() {
		goLogger.Debugw("node request", "method", method, "url", reqUrl, "status", code,
			"duration", time.Since(start).Seconds(), "requestId", requestId, "err", err)
		nodeResponseCodeMetric.WithLabelValues(method, fmt.Sprintf("%d", code)).Add(1)
	}()

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, reqUrl, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", t.userAgent)
	setAuth(req, node.Auth)

	res, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			nodeConnectionFailureTotalMetric.WithLabelValues(method, "timeout").Add(1)
		} else {
			nodeConnectionFailureTotalMetric.WithLabelValues(method, "non-timeout").Add(1)
		}
		return nil, fmt.Errorf("http request to %s failed: %w", reqUrl, err)
	}
	defer res.Body.Close()
	code = res.StatusCode

	rb, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("unable to read response from %s: %w", reqUrl, err)
	}
	if len(rb) > maxResponseSize {
		return nil, &NodeError{Message: fmt.Sprintf("response from %s too large", reqUrl)}
	}

	if res.StatusCode == http.StatusNotFound {
		return nil, &ResponseError{Code: res.StatusCode, URL: reqUrl, Text: string(rb)}
	}
	return &httpResponse{status: res.StatusCode, body: rb, url: reqUrl}, nil
}

func setAuth(req *http.Request, auth *NodeAuth) {
	if auth == nil {
		return
	}
	if auth.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+auth.JWT)
		return
	}
	if auth.BasicAuthName != "" {
		req.SetBasicAuth(auth.BasicAuthName, auth.BasicAuthPassword)
	}
}

type httpResponse struct {
	status int
	body   []byte
	url    string
}

func (r *httpResponse) Status() int {
	return r.status
}

func (r *httpResponse) JSON(v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return &DecodeError{URL: r.url, Err: err}
	}
	return nil
}

func (r *httpResponse) Text() (string, error) {
	if !utf8.Valid(r.body) {
		return "", &DecodeError{URL: r.url, Err: errors.New("non UTF8 response body")}
	}
	return string(r.body), nil
}

func (r *httpResponse) Bytes() ([]byte, error) {
	return r.body, nil
}
