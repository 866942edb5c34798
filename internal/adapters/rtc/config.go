package rtc

import (
	"time"

	"github.com/pion/webrtc/v4"
)

const defaultSTUN = "stun:stun.l.google.com:19302"

// Config describes how peer connections reach each other.
type Config struct {
	STUN       []string
	TURN       []string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAlive           time.Duration
}

func DefaultConfig() Config {
	return Config{
		STUN:                []string{defaultSTUN},
		DisconnectedTimeout: 5 * time.Second,
		FailedTimeout:       25 * time.Second,
		KeepAlive:           2 * time.Second,
	}
}

// WebRTC converts the config into a PeerConnection configuration.
func (c Config) WebRTC() webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, 2)
	if len(c.STUN) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUN})
	}
	if len(c.TURN) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       c.TURN,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if c.ForceRelay && len(c.TURN) > 0 {
		policy = webrtc.ICETransportPolicyRelay
	}
	return webrtc.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: policy,
	}
}
