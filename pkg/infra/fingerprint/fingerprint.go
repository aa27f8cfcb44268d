package fingerprint

import (
	"net"
	"strings"

	"github.com/NeuralTrust/EdgeShield/pkg/utils"
	"github.com/avct/uasurfer"
)

const UnknownIP = "unknown"

// Fingerprint is the coarse client identity used in rate-limit keys.
type Fingerprint struct {
	IP    string
	Agent string
}

// New builds a fingerprint from the resolved client address. Only the
// User-Agent header is read; forwarded-address headers are resolved by the
// server against its trusted proxy list before they reach here.
func New(headers map[string][]string, clientIP string) Fingerprint {
	return Fingerprint{
		IP:    ClientIP(clientIP),
		Agent: AgentClass(utils.HeaderValue(headers, "User-Agent")),
	}
}

// ClientIP normalizes the resolved client address, taking the first hop of
// a comma separated list, or returns "unknown".
func ClientIP(clientIP string) string {
	first := strings.TrimSpace(strings.Split(clientIP, ",")[0])
	if ip := net.ParseIP(first); ip != nil {
		return ip.String()
	}
	return UnknownIP
}

// AgentClass reduces a user agent to browser/os/device, which is stable
// across versions and cheap to compare.
func AgentClass(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return ""
	}
	ua := uasurfer.Parse(userAgent)
	return strings.ToLower(strings.Join([]string{
		ua.Browser.Name.StringTrimPrefix(),
		ua.OS.Name.StringTrimPrefix(),
		ua.DeviceType.StringTrimPrefix(),
	}, "/"))
}
