package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zavedsaifi/procmon/internal/models"
)

const defaultRetention = 24 * time.Hour

type API struct {
	db       *DB
	ingestor *Ingestor
	apiKey   string
}

// NewAPI wires the HTTP surface. An empty apiKey disables the key check on
// mutating routes.
func NewAPI(db *DB, apiKey string) *API {
	return &API{db: db, ingestor: NewIngestor(db), apiKey: apiKey}
}

func (api *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/snapshots", api.handleSnapshots)
	mux.HandleFunc("/api/v1/snapshots/expired", api.handleExpired)
	mux.HandleFunc("/api/v1/processes", api.handleProcesses)
	mux.HandleFunc("/api/v1/hosts", api.handleHosts)
	mux.HandleFunc("/api/v1/hosts/", api.handleHost)
	mux.HandleFunc("/api/v1/stats", api.handleStats)
	mux.HandleFunc("/api/v1/health", api.handleHealth)
}

// handleSnapshots receives one process snapshot from an agent.
func (api *API) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var sub models.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "Invalid JSON",
			"details": err.Error(),
		})
		return
	}

	if !api.authorized(r, sub.APIKey) {
		http.Error(w, "Invalid API key", http.StatusUnauthorized)
		return
	}

	snapshotID, err := api.ingestor.Ingest(&sub)
	if err != nil {
		var invalid *InvalidSnapshotError
		if errors.As(err, &invalid) {
			respondJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":   "Invalid snapshot",
				"details": invalid.Error(),
			})
			return
		}
		log.Printf("Error ingesting snapshot from %s: %v", sub.Hostname, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "success",
		"message":     fmt.Sprintf("Processed %d processes", len(sub.Processes)),
		"snapshot_id": snapshotID,
	})
}

// handleExpired is the retention trigger: deletes snapshots older than the
// requested age (default 24h) and reports how many were removed.
func (api *API) handleExpired(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !api.authorized(r, "") {
		http.Error(w, "Invalid API key", http.StatusUnauthorized)
		return
	}

	maxAge := defaultRetention
	if hoursStr := r.URL.Query().Get("max_age_hours"); hoursStr != "" {
		hours, err := strconv.Atoi(hoursStr)
		if err != nil || hours <= 0 {
			http.Error(w, "max_age_hours must be a positive integer", http.StatusBadRequest)
			return
		}
		maxAge = time.Duration(hours) * time.Hour
	}

	deleted, err := api.db.PurgeOlderThan(maxAge)
	if err != nil {
		log.Printf("Error purging expired snapshots: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":       fmt.Sprintf("Cleared %d expired snapshots", deleted),
		"deleted_count": deleted,
	})
}

// handleProcesses serves the newest snapshot of every active host with its
// process forest, newest first.
func (api *API) handleProcesses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snaps, err := api.db.GetLatestSnapshots()
	if err != nil {
		log.Printf("Error getting latest snapshots: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	trees := make([]models.SnapshotTree, 0, len(snaps))
	for _, snap := range snaps {
		tree, err := api.snapshotTree(snap)
		if err != nil {
			log.Printf("Error building tree for snapshot %d: %v", snap.ID, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		trees = append(trees, *tree)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":        trees,
		"total_hosts": len(trees),
	})
}

func (api *API) handleHosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hosts, err := api.db.GetAllHosts()
	if err != nil {
		log.Printf("Error getting hosts: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"hosts": hosts,
		"count": len(hosts),
	})
}

// handleHost serves /api/v1/hosts/{hostname} and
// /api/v1/hosts/{hostname}/processes.
func (api *API) handleHost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/hosts/")
	hostname, rest, _ := strings.Cut(path, "/")
	if hostname == "" {
		http.Error(w, "Hostname required", http.StatusBadRequest)
		return
	}

	switch rest {
	case "":
		api.serveHost(w, hostname)
	case "processes":
		api.serveHostProcesses(w, hostname)
	default:
		http.NotFound(w, r)
	}
}

func (api *API) serveHost(w http.ResponseWriter, hostname string) {
	host, err := api.db.GetHost(hostname)
	if errors.Is(err, ErrHostNotFound) {
		http.Error(w, "Host not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error getting host %s: %v", hostname, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"host": host})
}

func (api *API) serveHostProcesses(w http.ResponseWriter, hostname string) {
	snap, err := api.db.GetLatestSnapshot(hostname)
	if errors.Is(err, ErrHostNotFound) || errors.Is(err, ErrNoSnapshots) {
		http.Error(w, "Host not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error getting latest snapshot for %s: %v", hostname, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	tree, err := api.snapshotTree(*snap)
	if err != nil {
		log.Printf("Error building tree for %s: %v", hostname, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"data": tree})
}

func (api *API) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := api.db.GetOverview()
	if err != nil {
		log.Printf("Error getting overview stats: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func (api *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := api.db.conn.Ping(); err != nil {
		http.Error(w, fmt.Sprintf("Database unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"database": "connected",
	})
}

// snapshotTree fetches a snapshot's stored rows and rebuilds the forest.
// Rows are immutable after insert, so concurrent readers need no
// coordination here.
func (api *API) snapshotTree(snap models.Snapshot) (*models.SnapshotTree, error) {
	rows, err := api.db.GetSnapshotProcesses(snap.ID)
	if err != nil {
		return nil, err
	}

	return &models.SnapshotTree{Snapshot: snap, Processes: BuildTree(rows)}, nil
}

// authorized accepts the key from the X-API-Key header or, for agent
// compatibility, from the submission body.
func (api *API) authorized(r *http.Request, bodyKey string) bool {
	if api.apiKey == "" {
		return true
	}
	if r.Header.Get("X-API-Key") == api.apiKey {
		return true
	}
	return bodyKey == api.apiKey
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}
