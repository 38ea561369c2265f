// Package models defines the shared value types for staffreg.
package models

import "time"

// SourceMetadata describes one source file of employee lines.
type SourceMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
