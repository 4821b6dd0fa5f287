package domain

import "time"

// AdminPresenceRecord marks an administrator holding a live realtime connection.
type AdminPresenceRecord struct {
	AdminID        string    `json:"admin_id"`
	ChannelAddress string    `json:"channel_address"`
	DisplayName    string    `json:"display_name"`
	ConnectedAt    time.Time `json:"connected_at"`
}
