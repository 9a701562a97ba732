package nodemanager

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// NodesOverrideKey replaces the configured general node set with a comma separated list of URLs.
	NodesOverrideKey = "NODEMANAGER_NODES"
	// NodeJwtKey is a JWT used for every configured node that has no credentials of its own.
	NodeJwtKey = "NODEMANAGER_JWT"
)

const DefaultNodeSyncInterval = 60 * time.Second
const DefaultMinQuorumSize = 3
const DefaultQuorumThreshold = 66
const DefaultAPITimeout = 15 * time.Second
const DefaultRemotePoWTimeout = 100 * time.Second
const DefaultTipsInterval = 5
const DefaultSyncConcurrency = 8

// NetworkInfoMaxAge is how old cached network info may get before it is refreshed on demand
// when node syncing is not running.
const NetworkInfoMaxAge = 60 * time.Second

// NodeConfig describes one node in a Config.
type NodeConfig struct {
	URL      string    `yaml:"url" json:"url"`
	Auth     *NodeAuth `yaml:"auth,omitempty" json:"auth,omitempty"`
	Disabled bool      `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

type Config struct {
	// PrimaryNode is tried before every general node.
	PrimaryNode *NodeConfig `yaml:"primaryNode,omitempty" json:"primaryNode,omitempty"`
	// PrimaryPoWNode is tried first for submissions that need remote proof of work.
	PrimaryPoWNode *NodeConfig `yaml:"primaryPowNode,omitempty" json:"primaryPowNode,omitempty"`
	// Nodes is the general node set.
	Nodes []NodeConfig `yaml:"nodes,omitempty" json:"nodes,omitempty"`
	// Permanodes keep the full history and are preferred for historical lookups.
	Permanodes []NodeConfig `yaml:"permanodes,omitempty" json:"permanodes,omitempty"`

	// NodeSyncDisabled turns off the background health sync. All configured nodes are then candidates.
	NodeSyncDisabled bool `yaml:"nodeSyncDisabled,omitempty" json:"nodeSyncDisabled,omitempty"`
	// NodeSyncInterval is the time between two health sync cycles.
	NodeSyncInterval time.Duration `yaml:"nodeSyncInterval,omitempty" json:"nodeSyncInterval,omitempty"`
	// SyncConcurrency bounds how many nodes are probed at once during a sync cycle.
	SyncConcurrency int `yaml:"syncConcurrency,omitempty" json:"syncConcurrency,omitempty"`

	// Quorum enables majority agreement for requests that ask for it.
	Quorum bool `yaml:"quorum,omitempty" json:"quorum,omitempty"`
	// MinQuorumSize is the number of nodes asked when a quorum is required.
	MinQuorumSize int `yaml:"minQuorumSize,omitempty" json:"minQuorumSize,omitempty"`
	// QuorumThreshold is the percentage of MinQuorumSize that has to agree. Clamped to [0,100].
	QuorumThreshold int `yaml:"quorumThreshold" json:"quorumThreshold"`

	// RemotePoW leaves proof of work to the nodes, so only nodes offering the "pow" feature
	// stay healthy. By default PoW is done by this client.
	RemotePoW bool `yaml:"remotePow,omitempty" json:"remotePow,omitempty"`
	// FallbackToLocalPoW allows local PoW when no node offers remote PoW.
	FallbackToLocalPoW bool `yaml:"fallbackToLocalPow" json:"fallbackToLocalPow"`
	// TipsInterval is the tips request interval during PoW, in seconds.
	TipsInterval uint64 `yaml:"tipsInterval,omitempty" json:"tipsInterval,omitempty"`

	// APITimeout bounds every request to a single node, including sync probes.
	APITimeout time.Duration `yaml:"apiTimeout,omitempty" json:"apiTimeout,omitempty"`
	// RemotePoWTimeout bounds submissions that need remote proof of work.
	RemotePoWTimeout time.Duration `yaml:"remotePowTimeout,omitempty" json:"remotePowTimeout,omitempty"`

	// SingleThreaded disables the background sync and parallel quorum requests.
	SingleThreaded bool `yaml:"singleThreaded,omitempty" json:"singleThreaded,omitempty"`

	// Transport is used to talk to nodes. Defaults to an HTTPTransport over HTTPClient.
	Transport Transport `yaml:"-" json:"-"`
	// HTTPClient is the client of the default transport.
	HTTPClient *http.Client `yaml:"-" json:"-"`
}

// DefaultConfig returns a configuration with every default filled in and no nodes.
func DefaultConfig() *Config {
	return &Config{
		NodeSyncInterval:   DefaultNodeSyncInterval,
		SyncConcurrency:    DefaultSyncConcurrency,
		MinQuorumSize:      DefaultMinQuorumSize,
		QuorumThreshold:    DefaultQuorumThreshold,
		FallbackToLocalPoW: true,
		TipsInterval:       DefaultTipsInterval,
		APITimeout:         DefaultAPITimeout,
		RemotePoWTimeout:   DefaultRemotePoWTimeout,
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := DefaultConfig()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return c, nil
}

// Normalize clamps the quorum threshold and fills in defaults for unset values.
func (c *Config) Normalize() {
	if c.QuorumThreshold > 100 {
		c.QuorumThreshold = 100
	}
	if c.QuorumThreshold < 0 {
		c.QuorumThreshold = 0
	}
	if c.MinQuorumSize <= 0 {
		c.MinQuorumSize = DefaultMinQuorumSize
	}
	if c.NodeSyncInterval <= 0 {
		c.NodeSyncInterval = DefaultNodeSyncInterval
	}
	if c.SyncConcurrency <= 0 {
		c.SyncConcurrency = DefaultSyncConcurrency
	}
	if c.APITimeout <= 0 {
		c.APITimeout = DefaultAPITimeout
	}
	if c.RemotePoWTimeout <= 0 {
		c.RemotePoWTimeout = DefaultRemotePoWTimeout
	}
	if c.TipsInterval == 0 {
		c.TipsInterval = DefaultTipsInterval
	}
}

func (c *Config) applyEnv() {
	if override := os.Getenv(NodesOverrideKey); len(override) > 0 {
		nodes := make([]NodeConfig, 0)
		for _, u := range strings.Split(override, ",") {
			if u = strings.TrimSpace(u); u != "" {
				nodes = append(nodes, NodeConfig{URL: u})
			}
		}
		goLogger.Infow("using nodes from environment", "cnt", len(nodes), "key", NodesOverrideKey)
		c.Nodes = nodes
	}

	if jwt := os.Getenv(NodeJwtKey); len(jwt) > 0 {
		withJwt := func(nc *NodeConfig) {
			if nc != nil && nc.Auth == nil {
				nc.Auth = &NodeAuth{JWT: jwt}
			}
		}
		withJwt(c.PrimaryNode)
		withJwt(c.PrimaryPoWNode)
		for i := range c.Nodes {
			withJwt(&c.Nodes[i])
		}
		for i := range c.Permanodes {
			withJwt(&c.Permanodes[i])
		}
	}
}
