package widgets

import (
	"vidsync/internal/realtime"
)

// Indicator is the connection badge every widget shows
type Indicator string

const (
	IndicatorLive       Indicator = "live"
	IndicatorConnecting Indicator = "connecting"
	IndicatorPolling    Indicator = "polling"
	IndicatorOffline    Indicator = "offline"
)

// IndicatorFor maps a connection state onto the badge
func IndicatorFor(state realtime.State) Indicator {
	switch state {
	case realtime.StateConnected:
		return IndicatorLive
	case realtime.StateConnecting:
		return IndicatorConnecting
	case realtime.StateDegraded:
		return IndicatorPolling
	default:
		return IndicatorOffline
	}
}
