package nodemanager

import (
	"strconv"
	"time"
)

const (
	nodeInfoPath = "api/core/v2/info"
	blocksPath   = "api/core/v2/blocks"

	powFeature = "pow"
)

// RentStructure defines the storage deposit parameters of the network.
type RentStructure struct {
	VByteCost       uint32 `json:"vByteCost" yaml:"vByteCost"`
	VByteFactorData uint8  `json:"vByteFactorData" yaml:"vByteFactorData"`
	VByteFactorKey  uint8  `json:"vByteFactorKey" yaml:"vByteFactorKey"`
}

// ProtocolParameters are the network parameters a node reports about itself.
type ProtocolParameters struct {
	Version       uint8         `json:"version" yaml:"version"`
	NetworkName   string        `json:"networkName" yaml:"networkName"`
	Bech32HRP     string        `json:"bech32Hrp" yaml:"bech32Hrp"`
	MinPoWScore   uint32        `json:"minPowScore" yaml:"minPowScore"`
	BelowMaxDepth uint8         `json:"belowMaxDepth" yaml:"belowMaxDepth"`
	RentStructure RentStructure `json:"rentStructure" yaml:"rentStructure"`
	TokenSupply   string        `json:"tokenSupply" yaml:"tokenSupply"`
}

type NodeStatus struct {
	IsHealthy    bool   `json:"isHealthy"`
	PruningIndex uint32 `json:"pruningIndex"`
}

// NodeInfo is the response of the node info endpoint.
type NodeInfo struct {
	Name     string             `json:"name"`
	Version  string             `json:"version"`
	Status   NodeStatus         `json:"status"`
	Protocol ProtocolParameters `json:"protocol"`
	Features []string           `json:"features"`
}

// HasFeature reports whether the node advertises feature f.
func (i NodeInfo) HasFeature(f string) bool {
	for _, feature := range i.Features {
		if feature == f {
			return true
		}
	}
	return false
}

// NodeInfoWrapper is a NodeInfo together with the base URL of the node that answered.
type NodeInfoWrapper struct {
	NodeInfo NodeInfo `json:"nodeInfo"`
	URL      string   `json:"url"`
}

// NetworkInfo is the network related state cached by the node manager.
type NetworkInfo struct {
	ProtocolParameters ProtocolParameters
	// LocalPoW is true when proof of work is done by this client rather than by nodes.
	LocalPoW bool
	// FallbackToLocalPoW allows doing PoW locally when no node offers remote PoW.
	FallbackToLocalPoW bool
	// TipsInterval is the tips request interval during PoW, in seconds.
	TipsInterval uint64
	// LastSync is when ProtocolParameters were last taken from the network. Zero if never.
	LastSync time.Time
}

// TokenSupplyValue parses the token supply reported by the network.
func (p ProtocolParameters) TokenSupplyValue() (uint64, error) {
	return strconv.ParseUint(p.TokenSupply, 10, 64)
}
