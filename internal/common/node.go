package common

import "os"

// NodeName returns the identity recorded on claimed job steps so operators
// can tell which node is executing what.
func NodeName() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown-node"
	}
	return name
}
