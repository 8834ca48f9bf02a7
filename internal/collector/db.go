package collector

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zavedsaifi/procmon/internal/models"
)

// ErrHostNotFound is returned for queries against a hostname that has never
// submitted a snapshot.
var ErrHostNotFound = errors.New("host not found")

// ErrNoSnapshots is returned when a known host has no snapshots left, e.g.
// after retention pruned all of them.
var ErrNoSnapshots = errors.New("no snapshots recorded")

type DB struct {
	conn *sql.DB
}

func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS hosts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		hostname TEXT NOT NULL UNIQUE,
		ip_address TEXT,
		first_seen TIMESTAMP NOT NULL,
		last_seen TIMESTAMP NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_hosts_hostname ON hosts(hostname);
	CREATE INDEX IF NOT EXISTS idx_hosts_last_seen ON hosts(last_seen);
	CREATE INDEX IF NOT EXISTS idx_hosts_is_active ON hosts(is_active);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		host_id INTEGER NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		total_processes INTEGER NOT NULL DEFAULT 0,
		total_cpu_percent REAL NOT NULL DEFAULT 0,
		total_memory_mb REAL NOT NULL DEFAULT 0,
		FOREIGN KEY (host_id) REFERENCES hosts(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_host_timestamp ON snapshots(host_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON snapshots(timestamp);

	CREATE TABLE IF NOT EXISTS processes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_id INTEGER NOT NULL,
		pid INTEGER NOT NULL,
		name TEXT NOT NULL,
		cpu_percent REAL NOT NULL DEFAULT 0,
		memory_mb REAL NOT NULL DEFAULT 0,
		parent_pid INTEGER,
		command_line TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'running',
		create_time INTEGER,
		FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_processes_snapshot_pid ON processes(snapshot_id, pid);
	CREATE INDEX IF NOT EXISTS idx_processes_snapshot_parent ON processes(snapshot_id, parent_pid);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// UpsertHost records a sighting of hostname at observedAt. first_seen is set
// once and never updated; last_seen only moves forward, so out-of-order
// submissions cannot rewind it. A nil ip keeps the stored address.
func (db *DB) UpsertHost(hostname string, ip *string, observedAt time.Time) (int64, error) {
	query := `
	INSERT INTO hosts (hostname, ip_address, first_seen, last_seen, is_active, updated_at)
	VALUES (?, ?, ?, ?, 1, ?)
	ON CONFLICT(hostname) DO UPDATE SET
		ip_address = COALESCE(excluded.ip_address, ip_address),
		last_seen = CASE WHEN excluded.last_seen > last_seen THEN excluded.last_seen ELSE last_seen END,
		is_active = 1,
		updated_at = excluded.updated_at
	RETURNING id
	`

	var id int64
	err := db.conn.QueryRow(query, hostname, ip, observedAt, observedAt, time.Now()).Scan(&id)
	return id, err
}

// InsertSnapshot stores one snapshot and its process rows in a single
// transaction, so readers never observe a snapshot with a partial row set.
func (db *DB) InsertSnapshot(hostID int64, timestamp time.Time, rows []models.Process, rollup models.Rollup) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var snapshotID int64
	err = tx.QueryRow(`INSERT INTO snapshots (host_id, timestamp, total_processes, total_cpu_percent, total_memory_mb)
	                   VALUES (?, ?, ?, ?, ?) RETURNING id`,
		hostID, timestamp, rollup.TotalProcesses, rollup.TotalCPUPercent, rollup.TotalMemoryMB).Scan(&snapshotID)
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`INSERT INTO processes (snapshot_id, pid, name, cpu_percent, memory_mb, parent_pid, command_line, status, create_time)
	                         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, p := range rows {
		if _, err := stmt.Exec(snapshotID, p.PID, p.Name, p.CPUPercent, p.MemoryMB,
			p.ParentPID, p.CommandLine, p.Status, p.CreateTime); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return snapshotID, nil
}

func (db *DB) GetHost(hostname string) (*models.Host, error) {
	query := `SELECT id, hostname, ip_address, first_seen, last_seen, is_active, created_at, updated_at
	          FROM hosts WHERE hostname = ?`

	var h models.Host
	err := db.conn.QueryRow(query, hostname).Scan(&h.ID, &h.Hostname, &h.IPAddress,
		&h.FirstSeen, &h.LastSeen, &h.IsActive, &h.CreatedAt, &h.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrHostNotFound
	}
	if err != nil {
		return nil, err
	}

	return &h, nil
}

// GetAllHosts returns every known host with its latest snapshot summary.
func (db *DB) GetAllHosts() ([]models.HostListing, error) {
	query := `SELECT id, hostname, ip_address, first_seen, last_seen, is_active, created_at, updated_at
	          FROM hosts ORDER BY hostname`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hosts []models.HostListing
	for rows.Next() {
		var l models.HostListing
		err := rows.Scan(&l.ID, &l.Hostname, &l.IPAddress, &l.FirstSeen, &l.LastSeen,
			&l.IsActive, &l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range hosts {
		snap, err := db.latestSnapshot(hosts[i].ID)
		if err != nil {
			return nil, err
		}
		hosts[i].LatestSnapshot = snap
		if snap != nil {
			hosts[i].ProcessCount = snap.TotalProcesses
		}
	}

	return hosts, nil
}

func (db *DB) latestSnapshot(hostID int64) (*models.Snapshot, error) {
	query := `SELECT s.id, s.host_id, h.hostname, s.timestamp, s.total_processes, s.total_cpu_percent, s.total_memory_mb
	          FROM snapshots s
	          JOIN hosts h ON s.host_id = h.id
	          WHERE s.host_id = ?
	          ORDER BY s.timestamp DESC, s.id DESC
	          LIMIT 1`

	var s models.Snapshot
	err := db.conn.QueryRow(query, hostID).Scan(&s.ID, &s.HostID, &s.Hostname,
		&s.Timestamp, &s.TotalProcesses, &s.TotalCPUPercent, &s.TotalMemoryMB)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// GetLatestSnapshot returns the newest snapshot for one hostname.
func (db *DB) GetLatestSnapshot(hostname string) (*models.Snapshot, error) {
	host, err := db.GetHost(hostname)
	if err != nil {
		return nil, err
	}

	snap, err := db.latestSnapshot(host.ID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrNoSnapshots
	}

	return snap, nil
}

// GetLatestSnapshots returns the newest snapshot of every active host,
// newest first.
func (db *DB) GetLatestSnapshots() ([]models.Snapshot, error) {
	query := `SELECT s.id, s.host_id, h.hostname, s.timestamp, s.total_processes, s.total_cpu_percent, s.total_memory_mb
	          FROM snapshots s
	          JOIN hosts h ON s.host_id = h.id
	          WHERE h.is_active = 1
	            AND s.id = (SELECT s2.id FROM snapshots s2 WHERE s2.host_id = s.host_id
	                        ORDER BY s2.timestamp DESC, s2.id DESC LIMIT 1)
	          ORDER BY s.timestamp DESC`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []models.Snapshot
	for rows.Next() {
		var s models.Snapshot
		err := rows.Scan(&s.ID, &s.HostID, &s.Hostname, &s.Timestamp,
			&s.TotalProcesses, &s.TotalCPUPercent, &s.TotalMemoryMB)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}

	return snaps, rows.Err()
}

// GetSnapshotProcesses returns a snapshot's flat rows in submission order.
func (db *DB) GetSnapshotProcesses(snapshotID int64) ([]models.Process, error) {
	query := `SELECT id, pid, name, cpu_percent, memory_mb, parent_pid, command_line, status, create_time
	          FROM processes WHERE snapshot_id = ? ORDER BY id`

	rows, err := db.conn.Query(query, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var procs []models.Process
	for rows.Next() {
		var p models.Process
		err := rows.Scan(&p.ID, &p.PID, &p.Name, &p.CPUPercent, &p.MemoryMB,
			&p.ParentPID, &p.CommandLine, &p.Status, &p.CreateTime)
		if err != nil {
			return nil, err
		}
		procs = append(procs, p)
	}

	return procs, rows.Err()
}

// MarkInactive flags hosts whose last submission is older than the freshness
// window. Hosts flip back to active on their next accepted snapshot.
func (db *DB) MarkInactive(window time.Duration) error {
	query := `UPDATE hosts SET is_active = 0, updated_at = ? WHERE last_seen < ? AND is_active = 1`
	_, err := db.conn.Exec(query, time.Now(), time.Now().Add(-window))
	return err
}

// PurgeOlderThan deletes every snapshot older than now-maxAge together with
// its process rows, in one transaction, and reports how many snapshots went.
// Hosts are never deleted. Running it again with no new data deletes zero.
func (db *DB) PurgeOlderThan(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM processes WHERE snapshot_id IN
	                  (SELECT id FROM snapshots WHERE timestamp < ?)`, cutoff)
	if err != nil {
		return 0, err
	}

	res, err := tx.Exec(`DELETE FROM snapshots WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return deleted, nil
}

func (db *DB) GetOverview() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalHosts, activeHosts int
	err := db.conn.QueryRow("SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END), 0) FROM hosts").
		Scan(&totalHosts, &activeHosts)
	if err != nil {
		return nil, err
	}

	stats["total_hosts"] = totalHosts
	stats["active_hosts"] = activeHosts
	stats["inactive_hosts"] = totalHosts - activeHosts

	var totalSnapshots, totalProcesses int64
	err = db.conn.QueryRow("SELECT COUNT(*), (SELECT COUNT(*) FROM processes) FROM snapshots").
		Scan(&totalSnapshots, &totalProcesses)
	if err != nil {
		return nil, err
	}

	stats["total_snapshots"] = totalSnapshots
	stats["total_process_rows"] = totalProcesses

	return stats, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}
