package collector

import (
	"fmt"
	"time"

	"github.com/zavedsaifi/procmon/internal/models"
)

// InvalidSnapshotError rejects a whole submission, naming the offending
// field and, for per-process violations, the row index. Nothing is written
// when a submission is rejected.
type InvalidSnapshotError struct {
	Field  string
	Row    int // -1 when the violation is not row-scoped
	Reason string
}

func (e *InvalidSnapshotError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("invalid snapshot: processes[%d].%s %s", e.Row, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid snapshot: %s %s", e.Field, e.Reason)
}

type Ingestor struct {
	db *DB
}

func NewIngestor(db *DB) *Ingestor {
	return &Ingestor{db: db}
}

// Ingest validates a submission and stores it as one snapshot: host upsert,
// snapshot row, process rows, and the stored rollup. The snapshot and its
// rows commit in a single transaction, all-or-nothing.
func (ing *Ingestor) Ingest(sub *models.Submission) (int64, error) {
	timestamp, err := validateSubmission(sub)
	if err != nil {
		return 0, err
	}

	rows := resolveDuplicates(sub.Processes)

	var ip *string
	if sub.IPAddress != "" {
		ip = &sub.IPAddress
	}

	hostID, err := ing.db.UpsertHost(sub.Hostname, ip, timestamp)
	if err != nil {
		return 0, fmt.Errorf("upsert host: %w", err)
	}

	procs := make([]models.Process, len(rows))
	for i, r := range rows {
		procs[i] = models.Process{
			PID:         r.PID,
			Name:        r.Name,
			CPUPercent:  r.CPUPercent,
			MemoryMB:    r.MemoryMB,
			ParentPID:   r.ParentPID,
			CommandLine: r.CommandLine,
			Status:      r.Status,
			CreateTime:  r.CreateTime,
		}
		if procs[i].Status == "" {
			procs[i].Status = "running"
		}
	}

	snapshotID, err := ing.db.InsertSnapshot(hostID, timestamp, procs, Aggregate(procs))
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}

	return snapshotID, nil
}

// validateSubmission is fail-fast: the first violation rejects the batch.
// Partial snapshots are never accepted since the stored aggregates require a
// complete, consistent row set.
func validateSubmission(sub *models.Submission) (time.Time, error) {
	if sub.Hostname == "" {
		return time.Time{}, &InvalidSnapshotError{Field: "hostname", Row: -1, Reason: "must not be empty"}
	}

	timestamp, err := time.Parse(time.RFC3339Nano, sub.Timestamp)
	if err != nil {
		return time.Time{}, &InvalidSnapshotError{Field: "timestamp", Row: -1, Reason: "must be an ISO-8601 timestamp"}
	}

	if len(sub.Processes) == 0 {
		return time.Time{}, &InvalidSnapshotError{Field: "processes", Row: -1, Reason: "must not be empty"}
	}

	for i, p := range sub.Processes {
		switch {
		case p.PID < 0:
			return time.Time{}, &InvalidSnapshotError{Field: "pid", Row: i, Reason: "must not be negative"}
		case p.Name == "":
			return time.Time{}, &InvalidSnapshotError{Field: "name", Row: i, Reason: "must not be empty"}
		case p.CPUPercent < 0:
			return time.Time{}, &InvalidSnapshotError{Field: "cpu_percent", Row: i, Reason: "must not be negative"}
		case p.MemoryMB < 0:
			return time.Time{}, &InvalidSnapshotError{Field: "memory_mb", Row: i, Reason: "must not be negative"}
		}
	}

	return timestamp, nil
}

// resolveDuplicates collapses repeated pids within one batch. A process can
// legitimately be re-sampled mid-collection; the last occurrence's values
// win, at the first occurrence's position so row order stays stable.
func resolveDuplicates(rows []models.SubmittedProcess) []models.SubmittedProcess {
	out := make([]models.SubmittedProcess, 0, len(rows))
	seen := make(map[int32]int, len(rows))
	for _, r := range rows {
		if at, ok := seen[r.PID]; ok {
			out[at] = r
			continue
		}
		seen[r.PID] = len(out)
		out = append(out, r)
	}
	return out
}
