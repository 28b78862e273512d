package utils

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strings"
)

// ServerID returns a stable identifier for this node: the override when
// set, a sanitized hostname otherwise, and a random id as a last resort.
// Nothing is persisted; the orchestrator keeps no state of its own.
func ServerID(override string) string {
	if override != "" {
		return override
	}

	hostname, err := os.Hostname()
	if err == nil && hostname != "" && hostname != "localhost" {
		cleanHost := strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
				return r
			}
			return -1
		}, hostname)
		if cleanHost != "" {
			return "azhub-" + cleanHost
		}
	}

	randomPart := make([]byte, 4)
	_, _ = rand.Read(randomPart)
	return "azhub-" + hex.EncodeToString(randomPart)
}
