package nodemanager

import (
	golog "github.com/ipfs/go-log/v2"
)

var goLogger = golog.Logger("nodemanager")

// SetLogLevel sets the level of the node manager logger ("debug", "info", "warn", "error").
func SetLogLevel(level string) error {
	return golog.SetLogLevel("nodemanager", level)
}
