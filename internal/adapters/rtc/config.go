package rtc

import (
	"github.com/dkeye/voicemesh/internal/config"
	"github.com/pion/webrtc/v4"
)

// DefaultWebRTCConfig uses the public STUN servers only.
func DefaultWebRTCConfig() webrtc.Configuration {
	return NewWebRTCConfig(config.ICEConfig{STUNURLs: config.DefaultSTUNURLs})
}

// NewWebRTCConfig builds the static probe endpoint list: discovery servers
// first, then the optional relay fallbacks with their credentials.
func NewWebRTCConfig(cfg config.ICEConfig) webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, 1+len(cfg.TURNServers))
	if len(cfg.STUNURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: cfg.STUNURLs})
	}
	relays := 0
	for _, turn := range cfg.TURNServers {
		if len(turn.URLs) == 0 {
			continue
		}
		relays++
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn.URLs,
			Username:   turn.Username,
			Credential: turn.Credential,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if cfg.ForceRelay && relays > 0 {
		policy = webrtc.ICETransportPolicyRelay
	}
	return webrtc.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: policy,
	}
}
