package domain

import "time"

// AuditEntry is one recorded operator notification.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
