package domain

import "time"

// Server inventory host data model, one row per monitored machine.
// Rows are seeded from the static inventory at startup and treated as
// immutable during a run, except for collection bookkeeping columns.
type Server struct {
	ID              int64     `json:"id,string" form:"id"`                   // Primary key ID
	Name            string    `gorm:"uniqueIndex" json:"name" form:"name"`   // Inventory name
	Address         string    `json:"address" form:"address"`                // Host address (IP or DNS)
	Port            int       `json:"port" form:"port"`                      // SSH port
	OsFamily        string    `json:"os_family" form:"os_family"`            // Remote command dialect (windows/linux)
	Credential      string    `json:"credential" form:"credential"`          // Named credential reference
	PollInterval    int64     `json:"poll_interval" form:"poll_interval"`    // Per-host collection interval in seconds
	Status          string    `json:"status" form:"status"`                  // enabled/disabled
	LastCollectedAt time.Time `json:"last_collected_at"`                     // Last successful or attempted collection
	Remark          string    `json:"remark" form:"remark"`                  // Remark
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Server) TableName() string {
	return "hosts"
}
