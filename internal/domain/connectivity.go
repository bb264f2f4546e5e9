package domain

import "time"

// ServerConnectivity records the latest probe outcome for a host.
// One row per host, overwritten on every probe; the dashboard reads
// this table to render fleet health.
type ServerConnectivity struct {
	ServerID      int64     `gorm:"primaryKey" json:"server_id,string"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	Reachable     bool      `json:"reachable"`
	LastError     string    `json:"last_error"` // empty when reachable
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName Specify table name
func (ServerConnectivity) TableName() string {
	return "connectivity_status"
}
