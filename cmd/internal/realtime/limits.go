package realtime

import "time"

// Security/performance limits.
const (
	// Max bytes per inbound websocket frame (hard limit).
	// Draw events and cursor moves are tiny; this leaves ample headroom.
	maxFrameBytes = 64 << 10 // 64 KiB
)

const (
	// Heartbeat defaults (can be overridden by env in ws_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window). Drawing and cursor
	// relays are high frequency, so the allowance is sized for a pointer
	// sampled at ~120Hz with headroom.
	rateLimitEvents = 2400
	rateLimitWindow = 10 * time.Second
)
