package nodemanager

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GetRequest sends a GET for path (and query) to the candidate nodes and decodes the
// answer into out, which must be a non-nil pointer.
//
// When quorum is enabled and needQuorum is set, MinQuorumSize nodes have to be asked and
// enough of them have to agree on the answer. Requests with a query never need a quorum
// since nodes keep different amounts of history. Otherwise the first successful answer wins.
func (m *NodeManager) GetRequest(ctx context.Context, path, query string, timeout time.Duration, needQuorum, preferPermanode bool, out any) (err error) {
	ctx, span := spanTrace(ctx, "GetRequest", trace.WithAttributes(
		attribute.String("path", path),
		attribute.Bool("needQuorum", needQuorum),
		attribute.Bool("preferPermanode", preferPermanode),
	))
	defer span.End()
	defer func() { recordRequest("get", err) }()

	if err := checkOutput(out); err != nil {
		return err
	}

	nodes, err := m.getNodes(ctx, path, query, false, preferPermanode)
	if err != nil {
		return err
	}

	if trimPath(path) == nodeInfoPath {
		return m.firstNodeInfo(ctx, nodes, timeout, out)
	}

	enforce := m.pool.quorum && needQuorum && query == ""
	if enforce && len(nodes) < m.pool.minQuorumSize {
		quorumOutcomeMetric.WithLabelValues("pool_too_small").Add(1)
		return &QuorumPoolSizeError{Available: len(nodes), Minimum: m.pool.minQuorumSize}
	}

	tally := newVoteTally()
	var lastErr error
	if enforce && m.fanOut.Concurrent() {
		if lastErr, err = m.quorumFanOut(ctx, nodes[:m.pool.minQuorumSize], timeout, out, tally); err != nil {
			return err
		}
	} else {
		for _, node := range nodes {
			if err := ctx.Err(); err != nil {
				return err
			}
			resp, err := m.transport.Get(ctx, node, timeout)
			if err != nil {
				lastErr = normalizeError(err)
				nodeFallbackTotalMetric.WithLabelValues("get").Add(1)
				continue
			}
			if resp.Status() != http.StatusOK {
				lastErr = nodeErrorFrom(resp)
				nodeFallbackTotalMetric.WithLabelValues("get").Add(1)
				continue
			}

			body, err := canonicalize(resp, out)
			if err != nil {
				goLogger.Warnw("couldn't decode node result", "node", node.String(), "err", err)
				lastErr = err
				continue
			}
			if votes := tally.add(body); !enforce || votes >= m.pool.minQuorumSize {
				break
			}
		}
	}

	body, err := m.resolveVotes(tally, enforce, lastErr)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// firstNodeInfo returns the info of the first node answering with 200, tagged with that
// node's address. Node info differs from node to node, so it is never voted on.
func (m *NodeManager) firstNodeInfo(ctx context.Context, nodes []Node, timeout time.Duration, out any) error {
	var lastErr error
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := m.transport.Get(ctx, node, timeout)
		if err != nil {
			lastErr = normalizeError(err)
			nodeFallbackTotalMetric.WithLabelValues("get").Add(1)
			continue
		}
		if resp.Status() != http.StatusOK {
			lastErr = nodeErrorFrom(resp)
			nodeFallbackTotalMetric.WithLabelValues("get").Add(1)
			continue
		}
		return decodeNodeInfo(resp, node, out)
	}
	if lastErr != nil {
		return lastErr
	}
	return &NodeError{Message: noResultMessage}
}

// quorumFanOut asks all nodes at once. Answers are tallied in node order once every node
// has answered or failed. lastErr is the last per-node failure; err aborts the request.
func (m *NodeManager) quorumFanOut(ctx context.Context, nodes []Node, timeout time.Duration, out any, tally *voteTally) (lastErr error, err error) {
	type answer struct {
		body []byte
		err  error
	}
	answers := make([]answer, len(nodes))

	err = m.fanOut.Run(ctx, len(nodes), 0, func(ctx context.Context, i int) error {
		resp, err := m.transport.Get(ctx, nodes[i], timeout)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			answers[i].err = normalizeError(err)
			return nil
		}
		if resp.Status() != http.StatusOK {
			answers[i].err = nodeErrorFrom(resp)
			return nil
		}
		body, err := canonicalize(resp, out)
		if err != nil {
			goLogger.Warnw("couldn't decode node result", "node", nodes[i].String(), "err", err)
			answers[i].err = err
			return nil
		}
		answers[i].body = body
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, a := range answers {
		if a.err != nil {
			lastErr = a.err
			nodeFallbackTotalMetric.WithLabelValues("quorum").Add(1)
			continue
		}
		tally.add(a.body)
	}
	return lastErr, nil
}

// Get is GetRequest returning a freshly decoded T.
func Get[T any](ctx context.Context, m *NodeManager, path, query string, timeout time.Duration, needQuorum, preferPermanode bool) (T, error) {
	var v T
	err := m.GetRequest(ctx, path, query, timeout, needQuorum, preferPermanode, &v)
	return v, err
}

// GetRequestBytes returns the raw body of the first node that answers path with 200.
// Quorum is never applied to raw requests.
func (m *NodeManager) GetRequestBytes(ctx context.Context, path, query string, timeout time.Duration) (b []byte, err error) {
	ctx, span := spanTrace(ctx, "GetRequestBytes", trace.WithAttributes(attribute.String("path", path)))
	defer span.End()
	defer func() { recordRequest("get_bytes", err) }()

	nodes, err := m.getNodes(ctx, path, query, false, false)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := m.transport.GetBytes(ctx, node, timeout)
		if err != nil {
			lastErr = normalizeError(err)
			nodeFallbackTotalMetric.WithLabelValues("get_bytes").Add(1)
			continue
		}
		body, err := resp.Bytes()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Status() == http.StatusOK {
			return body, nil
		}
		if !utf8.Valid(body) {
			return nil, &NodeError{Message: "non UTF8 node response"}
		}
		lastErr = &NodeError{Message: string(body)}
		nodeFallbackTotalMetric.WithLabelValues("get_bytes").Add(1)
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &NodeError{Message: noResultMessage}
}

// PostRequestBytes submits body to path and decodes the first 200 or 201 answer into out.
// Without localPoW the PoW node is tried first.
func (m *NodeManager) PostRequestBytes(ctx context.Context, path string, timeout time.Duration, body []byte, localPoW bool, out any) error {
	return m.post(ctx, "PostRequestBytes", path, localPoW, out, func(ctx context.Context, node Node) (Response, error) {
		return m.transport.PostBytes(ctx, node, timeout, body)
	})
}

// PostRequestJSON is PostRequestBytes with a JSON encoded body.
func (m *NodeManager) PostRequestJSON(ctx context.Context, path string, timeout time.Duration, body any, localPoW bool, out any) error {
	return m.post(ctx, "PostRequestJSON", path, localPoW, out, func(ctx context.Context, node Node) (Response, error) {
		return m.transport.PostJSON(ctx, node, timeout, body)
	})
}

func (m *NodeManager) post(ctx context.Context, name, path string, localPoW bool, out any, send func(context.Context, Node) (Response, error)) (err error) {
	ctx, span := spanTrace(ctx, name, trace.WithAttributes(
		attribute.String("path", path),
		attribute.Bool("localPoW", localPoW),
	))
	defer span.End()
	defer func() { recordRequest("post", err) }()

	if err := checkOutput(out); err != nil {
		return err
	}

	nodes, err := m.getNodes(ctx, path, "", !localPoW, false)
	if errors.Is(err, ErrSyncedNodePoolEmpty) && !localPoW {
		return &NodeError{Message: "no available nodes with remote PoW"}
	}
	if err != nil {
		return err
	}

	var lastErr error
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := send(ctx, node)
		if err != nil {
			lastErr = &NodeError{Message: err.Error()}
			nodeFallbackTotalMetric.WithLabelValues("post").Add(1)
			continue
		}
		if s := resp.Status(); s != http.StatusOK && s != http.StatusCreated {
			lastErr = nodeErrorFrom(resp)
			nodeFallbackTotalMetric.WithLabelValues("post").Add(1)
			continue
		}
		if err := decodeInto(resp, out); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	if lastErr != nil {
		return lastErr
	}
	return &NodeError{Message: noResultMessage}
}

// checkOutput rejects anything json could not decode into.
func checkOutput(out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &json.InvalidUnmarshalError{Type: reflect.TypeOf(out)}
	}
	return nil
}

// canonicalize decodes the body as the type out points to and encodes it again, so that
// answers differing only in formatting or key order compare equal.
func canonicalize(resp Response, out any) ([]byte, error) {
	v := reflect.New(reflect.TypeOf(out).Elem())
	if err := resp.JSON(v.Interface()); err != nil {
		return nil, err
	}
	return json.Marshal(v.Interface())
}

// decodeInto decodes into a fresh value first so a failed decode leaves out untouched.
func decodeInto(resp Response, out any) error {
	v := reflect.New(reflect.TypeOf(out).Elem())
	if err := resp.JSON(v.Interface()); err != nil {
		return err
	}
	reflect.ValueOf(out).Elem().Set(v.Elem())
	return nil
}

func decodeNodeInfo(resp Response, node Node, out any) error {
	var info NodeInfo
	if err := resp.JSON(&info); err != nil {
		return err
	}
	w := NodeInfoWrapper{NodeInfo: info, URL: node.BaseURL()}
	if p, ok := out.(*NodeInfoWrapper); ok {
		*p = w
		return nil
	}
	b, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func nodeErrorFrom(resp Response) error {
	text, err := resp.Text()
	if err != nil {
		return &NodeError{Message: "couldn't convert node response into text"}
	}
	return &NodeError{Message: text}
}
