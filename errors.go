package nodemanager

import (
	"errors"
	"fmt"

	"github.com/ledgerclient/nodemanager/internal/state"
)

// ErrSyncedNodePoolEmpty is returned when no enabled node is left to send a request to.
var ErrSyncedNodePoolEmpty error = errors.New("synced node pool is empty")

// ErrHealthyNodePoolEmpty is returned when neither a primary node nor any other node is configured.
var ErrHealthyNodePoolEmpty error = errors.New("healthy node pool is empty")

// ErrNotFound is used when a node reports that the requested object does not exist.
var ErrNotFound error = errors.New("requested data not found")

// ErrPoison is returned when shared node state was left inconsistent by a panic in a previous writer.
var ErrPoison error = state.ErrPoisoned

// ErrTaskFailed indicates that a concurrent request task could not complete.
var ErrTaskFailed error = errors.New("request task failed")

// ErrInvalidNodeURL is returned for node addresses that are not absolute http(s) URLs.
var ErrInvalidNodeURL error = errors.New("invalid node url")

// ErrClosed is returned when the node manager is used after Close.
var ErrClosed error = errors.New("node manager closed")

// QuorumPoolSizeError means there were not enough candidate nodes to even try reaching a quorum.
type QuorumPoolSizeError struct {
	Available int
	Minimum   int
}

func (e *QuorumPoolSizeError) Error() string {
	return fmt.Sprintf("not enough nodes for quorum: %d available, %d required", e.Available, e.Minimum)
}

// QuorumThresholdError means nodes answered but too few of them agreed.
type QuorumThresholdError struct {
	QuorumSize       int
	MinimumThreshold int
}

func (e *QuorumThresholdError) Error() string {
	return fmt.Sprintf("quorum not reached: %d nodes agreed, minimum quorum size is %d", e.QuorumSize, e.MinimumThreshold)
}

// NodeError carries a failure reported by a node, usually the response body of a non-success status.
type NodeError struct {
	Message string
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node error: %s", e.Message)
}

// DecodeError is returned when a node answered with a body that could not be decoded.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response from %s: %s", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ResponseError is a transport level failure that carries an HTTP status code.
type ResponseError struct {
	Code int
	URL  string
	Text string
}

func (e *ResponseError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("http error from %s: %d, %s", e.URL, e.Code, e.Text)
	}
	return fmt.Sprintf("http error from %s: %d", e.URL, e.Code)
}

const noResultMessage = "couldn't get a result from any node"

// normalizeError maps a transport 404 to ErrNotFound.
func normalizeError(err error) error {
	var re *ResponseError
	if errors.As(err, &re) && re.Code == 404 {
		return ErrNotFound
	}
	return err
}
