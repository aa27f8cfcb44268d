package ratelimit

import (
	"strings"
)

const unknownIdentity = "unknown"

// Key identifies the population a counter applies to.
type Key struct {
	Identity         string
	Resource         string
	AgentFingerprint string
}

func NewKey(identity, resource, agent string) Key {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = unknownIdentity
	}
	return Key{
		Identity:         identity,
		Resource:         strings.TrimSpace(resource),
		AgentFingerprint: strings.TrimSpace(agent),
	}
}

// String renders the key deterministically. Separators inside components are
// escaped so that distinct keys never collide.
func (k Key) String() string {
	parts := []string{escape(k.Resource), escape(k.Identity)}
	if k.AgentFingerprint != "" {
		parts = append(parts, escape(k.AgentFingerprint))
	}
	return strings.Join(parts, ":")
}

var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

func escape(s string) string {
	return keyEscaper.Replace(s)
}
