package nodemanager

import (
	"context"
	"time"
)

// Transport sends requests to a single node. Every call must give up after timeout.
//
// Implementations return a *ResponseError with Code 404 when the node reports the
// requested object as missing, and a Response for any other status they received.
type Transport interface {
	Get(ctx context.Context, node Node, timeout time.Duration) (Response, error)
	GetBytes(ctx context.Context, node Node, timeout time.Duration) (Response, error)
	PostBytes(ctx context.Context, node Node, timeout time.Duration, body []byte) (Response, error)
	PostJSON(ctx context.Context, node Node, timeout time.Duration, body any) (Response, error)
}

// Response is a node answer that has been fully received.
type Response interface {
	Status() int
	// JSON decodes the body into v.
	JSON(v any) error
	// Text returns the body as UTF-8 text.
	Text() (string, error)
	Bytes() ([]byte, error)
}
