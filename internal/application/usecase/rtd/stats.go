package rtd

import "time"

// Stats is the status snapshot served to the control surface.
type Stats struct {
	Status            string              `json:"status"`
	Running           bool                `json:"running"`
	Connected         bool                `json:"connected"`
	TrackedSymbols    int                 `json:"tracked_symbols"`
	ActiveCount       int                 `json:"active_count"`
	FailedCount       int                 `json:"failed_count"`
	Subscriptions     int                 `json:"subscriptions"`
	TotalRooms        int                 `json:"total_rooms"`
	ActiveRooms       []string            `json:"active_rooms"`
	SubscribedTickers map[string][]string `json:"subscribed_tickers"`
	Watchlist         []string            `json:"watchlist"`
	RealtimeActive    []string            `json:"realtime_active"`
	RealtimeFailed    []string            `json:"realtime_failed"`
	DatabaseConnected bool                `json:"database_connected"`
	LastUpdate        *time.Time          `json:"last_update,omitempty"`
}
