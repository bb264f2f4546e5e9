package domain

import "time"

// BackupSnapshot metadata for one store dump. Append-only; the artifact
// itself lives at Path (and RemotePath when uploaded over SFTP).
type BackupSnapshot struct {
	ID         int64     `gorm:"primaryKey" json:"id,string"`
	Path       string    `json:"path"`
	RemotePath string    `json:"remote_path"`
	SizeBytes  int64     `json:"size_bytes"`
	CoversUpTo time.Time `json:"covers_up_to"` // newest collected_at included in the dump
	CreatedAt  time.Time `json:"created_at"`
}

// TableName Specify table name
func (BackupSnapshot) TableName() string {
	return "backup_snapshots"
}
