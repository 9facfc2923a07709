// Package agent mints the identities queue instances claim work under.
package agent

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Identity is the parsed form of an agent id: <harness>@<host>:<pid>/<nonce>.
type Identity struct {
	HarnessID string
	Host      string
	PID       int
	Nonce     string
	FullID    string
}

var idPattern = regexp.MustCompile(`^([^@]+)@([^:]+):(\d+)/([0-9a-f]{8})$`)

// NewAgentID returns a fresh id unique to this process and call.
func NewAgentID(harnessID string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return FormatAgentID(harnessID, host, os.Getpid(), uuid.NewString()[:8])
}

// FormatAgentID assembles an agent id from its parts.
func FormatAgentID(harnessID, host string, pid int, nonce string) string {
	if harnessID == "" {
		harnessID = "harness"
	}
	host = strings.NewReplacer("@", "_", ":", "_", "/", "_").Replace(host)
	return fmt.Sprintf("%s@%s:%d/%s", harnessID, host, pid, nonce)
}

// ParseAgentID parses an id produced by NewAgentID.
func ParseAgentID(agentID string) (*Identity, error) {
	m := idPattern.FindStringSubmatch(agentID)
	if m == nil {
		return nil, fmt.Errorf("invalid agent ID format: %s (expected harness@host:pid/nonce)", agentID)
	}
	pid, _ := strconv.Atoi(m[3])
	return &Identity{
		HarnessID: m[1],
		Host:      m[2],
		PID:       pid,
		Nonce:     m[4],
		FullID:    agentID,
	}, nil
}

// SameHost reports whether the id was minted on this machine.
func (i *Identity) SameHost() bool {
	host, err := os.Hostname()
	return err == nil && strings.NewReplacer("@", "_", ":", "_", "/", "_").Replace(host) == i.Host
}
