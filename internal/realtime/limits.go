package realtime

import "time"

// Protocol limits per connection.
const (
	// maxFrameBytes caps a single websocket frame read.
	maxFrameBytes = 64 << 10

	// maxMessageChars caps message text length, counted in runes.
	maxMessageChars = 4000
)

// Heartbeat defaults; env knobs in gateway.go override them.
const (
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
)
