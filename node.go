package nodemanager

import (
	"fmt"
	"net/url"
	"strings"
)

// NodeAuth holds the credentials sent to a node.
type NodeAuth struct {
	// JWT is sent as a bearer token. It takes precedence over basic auth.
	JWT               string `yaml:"jwt,omitempty" json:"jwt,omitempty"`
	BasicAuthName     string `yaml:"basicAuthName,omitempty" json:"basicAuthName,omitempty"`
	BasicAuthPassword string `yaml:"basicAuthPassword,omitempty" json:"basicAuthPassword,omitempty"`
}

// Node is one ledger node endpoint.
//
// Two nodes are the same node when their addresses match, regardless of credentials.
// Nodes are values: per-request paths are applied to copies.
type Node struct {
	URL      *url.URL
	Auth     *NodeAuth
	Disabled bool
}

// NewNode validates rawURL and returns a node for it.
func NewNode(rawURL string, auth *NodeAuth) (Node, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Node{}, fmt.Errorf("%w %q: %s", ErrInvalidNodeURL, rawURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return Node{}, fmt.Errorf("%w %q: not an absolute url", ErrInvalidNodeURL, rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Node{}, fmt.Errorf("%w %q: unsupported scheme %q", ErrInvalidNodeURL, rawURL, u.Scheme)
	}
	return Node{URL: u, Auth: auth}, nil
}

func (n Node) String() string {
	return n.URL.String()
}

// Equals reports whether both nodes point at the same address.
func (n Node) Equals(other Node) bool {
	return n.key() == other.key()
}

// BaseURL returns scheme://host of the node.
func (n Node) BaseURL() string {
	return fmt.Sprintf("%s://%s", n.URL.Scheme, n.URL.Host)
}

func (n Node) key() string {
	return n.URL.Scheme + "://" + strings.ToLower(n.URL.Host) + strings.TrimSuffix(n.URL.Path, "/")
}

// withPathAndQuery returns a copy of the node addressing path below its base path.
func (n Node) withPathAndQuery(path, query string) Node {
	u := *n.URL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	u.RawPath = ""
	u.RawQuery = query
	u.Fragment = ""
	n.URL = &u
	return n
}
