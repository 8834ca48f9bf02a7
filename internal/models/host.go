package models

import "time"

type Host struct {
	ID        int64     `json:"id"`
	Hostname  string    `json:"hostname"`
	IPAddress *string   `json:"ip_address"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HostListing is a Host plus the summary of its newest snapshot, as served
// by the host listing endpoint.
type HostListing struct {
	Host
	LatestSnapshot *Snapshot `json:"latest_snapshot"`
	ProcessCount   int       `json:"process_count"`
}
