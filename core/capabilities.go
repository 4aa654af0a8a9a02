package orchestration

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/koscakluka/stella-core/core/speechtotext"
)

// capabilities is detected once at construction.
type capabilities struct {
	// recognition is false when either recognizer is missing or reports
	// that it cannot run on this host.
	recognition    bool
	recognitionErr error
	// secureContext is false when an endpoint is neither TLS nor loopback.
	// The hotword is disabled then, manual activation still works.
	secureContext bool
}

func (c capabilities) hotwordAllowed() bool {
	return c.recognition && c.secureContext
}

func detectCapabilities(passive, active speechtotext.Recognizer, secureContext *bool, endpoints ...string) capabilities {
	detected := capabilities{recognition: true, secureContext: true}

	for _, recognizer := range []struct {
		name   string
		client speechtotext.Recognizer
	}{{name: "passive", client: passive}, {name: "active", client: active}} {
		if isNilClient(recognizer.client) {
			detected.recognition = false
			detected.recognitionErr = fmt.Errorf("%w: no %s recognizer configured", ErrCapabilityUnavailable, recognizer.name)
			break
		}
		if reporter, ok := recognizer.client.(speechtotext.AvailabilityReporter); ok {
			if err := reporter.Available(); err != nil {
				detected.recognition = false
				detected.recognitionErr = fmt.Errorf("%w: %s recognizer: %w", ErrCapabilityUnavailable, recognizer.name, err)
				break
			}
		}
	}

	if secureContext != nil {
		detected.secureContext = *secureContext
		return detected
	}
	for _, endpoint := range endpoints {
		if endpoint != "" && !IsSecureEndpoint(endpoint) {
			detected.secureContext = false
		}
	}

	return detected
}

// IsSecureEndpoint reports whether rawURL uses TLS or points at a loopback
// host.
func IsSecureEndpoint(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	switch strings.ToLower(parsed.Scheme) {
	case "https", "wss":
		return true
	}

	host := parsed.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
