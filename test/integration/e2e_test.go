package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/zavedsaifi/procmon/internal/agent"
	"github.com/zavedsaifi/procmon/internal/cli"
	"github.com/zavedsaifi/procmon/internal/collector"
	"github.com/zavedsaifi/procmon/internal/models"
)

func startCollector(t *testing.T) (*collector.DB, *httptest.Server) {
	t.Helper()

	dbPath := t.TempDir() + "/test.db"
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := collector.NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	api := collector.NewAPI(db, "")
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return db, server
}

func submission(hostname, timestamp string) *models.Submission {
	parent := int32(1)
	return &models.Submission{
		Hostname:  hostname,
		IPAddress: "192.168.1.100",
		Timestamp: timestamp,
		Processes: []models.SubmittedProcess{
			{PID: 1, Name: "systemd", CPUPercent: 0.1, MemoryMB: 12.0},
			{PID: 200, Name: "nginx", CPUPercent: 1.5, MemoryMB: 64.0, ParentPID: &parent},
			{PID: 201, Name: "nginx", CPUPercent: 0.5, MemoryMB: 32.0, ParentPID: &parent},
		},
	}
}

func TestEndToEndSubmitAndQuery(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping e2e test in short mode")
	}

	db, server := startCollector(t)

	client := agent.NewClient(server.URL, "")
	sub := submission("e2e-host", time.Now().UTC().Format(time.RFC3339Nano))

	if err := client.Send(context.Background(), sub); err != nil {
		t.Fatalf("Failed to send submission: %v", err)
	}

	var hostCount int
	if err := QueryRow(t, db, "SELECT COUNT(*) FROM hosts").Scan(&hostCount); err != nil {
		t.Fatalf("Failed to query host count: %v", err)
	}
	if hostCount != 1 {
		t.Errorf("Expected 1 host, got %d", hostCount)
	}

	var rowCount int
	if err := QueryRow(t, db, "SELECT COUNT(*) FROM processes").Scan(&rowCount); err != nil {
		t.Fatalf("Failed to query process count: %v", err)
	}
	if rowCount != 3 {
		t.Errorf("Expected 3 process rows, got %d", rowCount)
	}

	ctl := cli.NewClient(server.URL, "")

	hosts, err := ctl.ListHosts()
	if err != nil {
		t.Fatalf("Failed to list hosts: %v", err)
	}
	if count := int(hosts["count"].(float64)); count != 1 {
		t.Errorf("Expected 1 host in listing, got %d", count)
	}

	tree, err := ctl.GetHostProcesses("e2e-host")
	if err != nil {
		t.Fatalf("Failed to get host processes: %v", err)
	}

	data := tree["data"].(map[string]interface{})
	roots := data["processes"].([]interface{})
	if len(roots) != 1 {
		t.Fatalf("Expected 1 root process, got %d", len(roots))
	}

	root := roots[0].(map[string]interface{})
	children := root["children"].([]interface{})
	if len(children) != 2 {
		t.Errorf("Expected 2 children under pid 1, got %d", len(children))
	}

	stats, err := ctl.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if snaps := int(stats["total_snapshots"].(float64)); snaps != 1 {
		t.Errorf("Expected 1 snapshot in stats, got %d", snaps)
	}
}

func TestEndToEndRetention(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping e2e test in short mode")
	}

	db, server := startCollector(t)

	client := agent.NewClient(server.URL, "")

	old := submission("retention-host", time.Now().UTC().Add(-25*time.Hour).Format(time.RFC3339Nano))
	if err := client.Send(context.Background(), old); err != nil {
		t.Fatalf("Failed to send old submission: %v", err)
	}

	fresh := submission("retention-host", time.Now().UTC().Format(time.RFC3339Nano))
	if err := client.Send(context.Background(), fresh); err != nil {
		t.Fatalf("Failed to send fresh submission: %v", err)
	}

	ctl := cli.NewClient(server.URL, "")

	result, err := ctl.Purge(24)
	if err != nil {
		t.Fatalf("Failed to purge: %v", err)
	}
	if deleted := int(result["deleted_count"].(float64)); deleted != 1 {
		t.Errorf("Expected 1 deleted snapshot, got %d", deleted)
	}

	result, err = ctl.Purge(24)
	if err != nil {
		t.Fatalf("Failed to purge again: %v", err)
	}
	if deleted := int(result["deleted_count"].(float64)); deleted != 0 {
		t.Errorf("Expected 0 deleted snapshots on rerun, got %d", deleted)
	}

	var snapCount, rowCount, hostCount int
	if err := QueryRow(t, db, "SELECT COUNT(*) FROM snapshots").Scan(&snapCount); err != nil {
		t.Fatalf("Failed to query snapshot count: %v", err)
	}
	if err := QueryRow(t, db, "SELECT COUNT(*) FROM processes").Scan(&rowCount); err != nil {
		t.Fatalf("Failed to query process count: %v", err)
	}
	if err := QueryRow(t, db, "SELECT COUNT(*) FROM hosts").Scan(&hostCount); err != nil {
		t.Fatalf("Failed to query host count: %v", err)
	}

	if snapCount != 1 {
		t.Errorf("Expected 1 surviving snapshot, got %d", snapCount)
	}
	if rowCount != 3 {
		t.Errorf("Expected 3 surviving process rows, got %d", rowCount)
	}
	if hostCount != 1 {
		t.Errorf("Expected host to survive retention, got %d", hostCount)
	}
}

func TestEndToEndWithConsulDiscovery(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping e2e test in short mode")
	}

	db, server := startCollector(t)

	collectorURL, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("Failed to parse collector URL: %v", err)
	}
	port, err := strconv.Atoi(collectorURL.Port())
	if err != nil {
		t.Fatalf("Failed to parse collector port: %v", err)
	}

	consulServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health/service/procmon-collector" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		response := []map[string]interface{}{
			{
				"Node": map[string]interface{}{
					"Address": collectorURL.Hostname(),
				},
				"Service": map[string]interface{}{
					"Address": collectorURL.Hostname(),
					"Port":    port,
				},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer consulServer.Close()

	sd, err := agent.NewServiceDiscovery(consulServer.URL[7:])
	if err != nil {
		t.Fatalf("Failed to create service discovery: %v", err)
	}

	discoveredURL, err := sd.DiscoverCollector()
	if err != nil {
		t.Fatalf("Failed to discover collector: %v", err)
	}

	t.Logf("Discovered collector at: %s (actual: %s)", discoveredURL, server.URL)

	client := agent.NewClient(discoveredURL, "")
	sub := submission("discovered-host", time.Now().UTC().Format(time.RFC3339Nano))

	if err := client.Send(context.Background(), sub); err != nil {
		t.Fatalf("Failed to send via discovered collector: %v", err)
	}

	var hostname string
	err = QueryRow(t, db, "SELECT hostname FROM hosts LIMIT 1").Scan(&hostname)
	if err != nil {
		t.Fatalf("Failed to query host: %v", err)
	}
	if hostname != "discovered-host" {
		t.Errorf("Expected hostname discovered-host, got %s", hostname)
	}
}
