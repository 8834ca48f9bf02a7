package models

import "time"

// Snapshot is one timestamped submission of a host's full process list. The
// total_* fields are computed once at ingestion and stored with the row;
// process rows are immutable after insert, so the stored values stay equal
// to the sums over the rows.
type Snapshot struct {
	ID              int64     `json:"id"`
	HostID          int64     `json:"host_id"`
	Hostname        string    `json:"hostname,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	TotalProcesses  int       `json:"total_processes"`
	TotalCPUPercent float64   `json:"total_cpu_percent"`
	TotalMemoryMB   float64   `json:"total_memory_mb"`
}

// Process is a single flat row of a snapshot. PID is unique only within its
// snapshot. CreateTime is epoch seconds when the agent could read it.
type Process struct {
	ID          int64   `json:"id"`
	PID         int32   `json:"pid"`
	Name        string  `json:"name"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryMB    float64 `json:"memory_mb"`
	ParentPID   *int32  `json:"parent_pid"`
	CommandLine string  `json:"command_line"`
	Status      string  `json:"status"`
	CreateTime  *int64  `json:"create_time"`
}

// ProcessNode wraps a flat row with its resolved children. Nodes are built
// from stored rows on every read and never persisted.
type ProcessNode struct {
	Process
	Children    []*ProcessNode `json:"children"`
	HasChildren bool           `json:"has_children"`
}

// SnapshotTree is a snapshot with its rows reassembled into a forest.
type SnapshotTree struct {
	Snapshot
	Processes []*ProcessNode `json:"processes"`
}

// Rollup holds the per-snapshot aggregates stored alongside the snapshot row.
type Rollup struct {
	TotalProcesses  int
	TotalCPUPercent float64
	TotalMemoryMB   float64
}

// Submission is the agent payload as it arrives at the ingestion boundary.
// Timestamp stays a string until the ingestor parses it; a submission is
// rejected whole if it does not parse.
type Submission struct {
	Hostname  string             `json:"hostname"`
	IPAddress string             `json:"ip_address,omitempty"`
	Timestamp string             `json:"timestamp"`
	APIKey    string             `json:"api_key,omitempty"`
	Processes []SubmittedProcess `json:"processes"`
}

type SubmittedProcess struct {
	PID         int32   `json:"pid"`
	Name        string  `json:"name"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryMB    float64 `json:"memory_mb"`
	ParentPID   *int32  `json:"parent_pid,omitempty"`
	CommandLine string  `json:"command_line,omitempty"`
	Status      string  `json:"status,omitempty"`
	CreateTime  *int64  `json:"create_time,omitempty"`
}
