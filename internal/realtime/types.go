package realtime

import "time"

// ConnState is the live connection state of the market-data feed
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// FeedStats is a point-in-time view of the feed
// ⭐ SSOT: 피드 상태 노출 구조
type FeedStats struct {
	State           ConnState `json:"state"`
	Reconnects      int64     `json:"reconnects"`
	QueueDepth      int       `json:"queue_depth"`
	Subscribed      int       `json:"subscribed"`
	TrackedSymbols  int       `json:"tracked_symbols"`
	TicksReceived   int64     `json:"ticks_received"`
	UpdatesReceived int64     `json:"updates_received"`
	LastMessageAt   time.Time `json:"last_message_at"`
}

// IsStale reports whether no frame arrived within maxAge
func (s FeedStats) IsStale(now time.Time, maxAge time.Duration) bool {
	if s.LastMessageAt.IsZero() {
		return true
	}
	return now.Sub(s.LastMessageAt) > maxAge
}
