package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/zavedsaifi/procmon/internal/models"
)

type mockCollector struct {
	mu       sync.Mutex
	received []models.Submission
	headers  []http.Header
	status   int
}

func (m *mockCollector) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/snapshots" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var sub models.Submission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		m.received = append(m.received, sub)
		m.headers = append(m.headers, r.Header.Clone())
		status := m.status
		m.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "success"})
	}
}

func (m *mockCollector) submissions() []models.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Submission{}, m.received...)
}

func testSubmission() *models.Submission {
	parent := int32(1)
	return &models.Submission{
		Hostname:  "agent-host",
		IPAddress: "192.168.1.50",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Processes: []models.SubmittedProcess{
			{PID: 1, Name: "systemd", CPUPercent: 0.1, MemoryMB: 12.0},
			{PID: 99, Name: "sshd", CPUPercent: 0.5, MemoryMB: 8.0, ParentPID: &parent},
		},
	}
}

func TestClientSend(t *testing.T) {
	mock := &mockCollector{}
	server := httptest.NewServer(mock.handler())
	defer server.Close()

	client := NewClient(server.URL, "test-key")

	if err := client.Send(context.Background(), testSubmission()); err != nil {
		t.Fatalf("Failed to send submission: %v", err)
	}

	received := mock.submissions()
	if len(received) != 1 {
		t.Fatalf("Expected 1 submission, got %d", len(received))
	}
	if received[0].Hostname != "agent-host" {
		t.Errorf("Expected hostname agent-host, got %s", received[0].Hostname)
	}
	if len(received[0].Processes) != 2 {
		t.Errorf("Expected 2 processes, got %d", len(received[0].Processes))
	}

	headers := mock.headers[0]
	if headers.Get("X-API-Key") != "test-key" {
		t.Errorf("Expected X-API-Key header test-key, got %s", headers.Get("X-API-Key"))
	}
	if headers.Get("Content-Type") != "application/json" {
		t.Errorf("Expected JSON content type, got %s", headers.Get("Content-Type"))
	}
	if headers.Get("User-Agent") != userAgent {
		t.Errorf("Expected User-Agent %s, got %s", userAgent, headers.Get("User-Agent"))
	}
}

func TestClientSendNoAPIKey(t *testing.T) {
	mock := &mockCollector{}
	server := httptest.NewServer(mock.handler())
	defer server.Close()

	client := NewClient(server.URL, "")

	if err := client.Send(context.Background(), testSubmission()); err != nil {
		t.Fatalf("Failed to send submission: %v", err)
	}

	if mock.headers[0].Get("X-API-Key") != "" {
		t.Error("Expected no X-API-Key header without a configured key")
	}
}

func TestClientPostServerError(t *testing.T) {
	mock := &mockCollector{status: http.StatusInternalServerError}
	server := httptest.NewServer(mock.handler())
	defer server.Close()

	client := NewClient(server.URL, "")

	// post is tested directly so a failing submission does not sit through
	// the retry delays.
	if err := client.post(context.Background(), testSubmission()); err == nil {
		t.Error("Expected error on 500 response")
	}
}

func TestClientSendContextCancelled(t *testing.T) {
	mock := &mockCollector{status: http.StatusInternalServerError}
	server := httptest.NewServer(mock.handler())
	defer server.Close()

	client := NewClient(server.URL, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Send(ctx, testSubmission())
	if err == nil {
		t.Error("Expected error when context is cancelled during retries")
	}
}
