package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	consul "github.com/hashicorp/consul/api"

	"github.com/zavedsaifi/procmon/internal/collector"
)

const (
	defaultPort            = "8080"
	defaultDBPath          = "/data/procmon.db"
	defaultFreshnessWindow = 2 * time.Minute
	defaultCleanupInterval = 5 * time.Minute
	defaultRetentionHours  = 24

	serviceID = "procmon-collector"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	port := getEnv("PORT", defaultPort)
	dbPath := getEnv("DB_PATH", defaultDBPath)
	apiKey := getEnv("API_KEY", "")
	retention := time.Duration(getEnvInt("RETENTION_HOURS", defaultRetentionHours)) * time.Hour

	db, err := collector.NewDB(dbPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close()

	mux := http.NewServeMux()
	api := collector.NewAPI(db, apiKey)
	api.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: mux,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go startMaintenanceTasks(ctx, db, retention)

	if err := registerConsul(port); err != nil {
		log.Printf("Warning: failed to register with Consul: %v", err)
	}
	defer deregisterConsul()

	errChan := make(chan error, 1)
	go func() {
		log.Printf("HTTP API server listening on :%s", port)
		errChan <- httpServer.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
		httpServer.Shutdown(context.Background())
		return nil
	}
}

// startMaintenanceTasks runs the two background jobs: flagging hosts that
// stopped reporting, and pruning snapshots past the retention age. Retention
// is the only path that deletes rows.
func startMaintenanceTasks(ctx context.Context, db *collector.DB, retention time.Duration) {
	inactiveTicker := time.NewTicker(30 * time.Second)
	cleanupTicker := time.NewTicker(defaultCleanupInterval)
	defer inactiveTicker.Stop()
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-inactiveTicker.C:
			if err := db.MarkInactive(defaultFreshnessWindow); err != nil {
				log.Printf("Error marking inactive hosts: %v", err)
			}
		case <-cleanupTicker.C:
			deleted, err := db.PurgeOlderThan(retention)
			if err != nil {
				log.Printf("Error purging expired snapshots: %v", err)
				continue
			}
			if deleted > 0 {
				log.Printf("Purged %d expired snapshots", deleted)
			}
		}
	}
}

func registerConsul(port string) error {
	consulAddr := getEnv("CONSUL_HTTP_ADDR", "")
	if consulAddr == "" {
		return nil
	}

	config := consul.DefaultConfig()
	config.Address = consulAddr
	client, err := consul.NewClient(config)
	if err != nil {
		return err
	}

	nodeIP := getEnv("NOMAD_IP_http", "")
	if nodeIP == "" {
		nodeIP = getLocalIP()
	}

	registration := &consul.AgentServiceRegistration{
		ID:      serviceID,
		Name:    serviceID,
		Port:    mustAtoi(port),
		Address: nodeIP,
		Check: &consul.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%s/api/v1/health", nodeIP, port),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
		Tags: []string{"procmon", "collector", "http", "api"},
	}

	return client.Agent().ServiceRegister(registration)
}

func deregisterConsul() {
	consulAddr := getEnv("CONSUL_HTTP_ADDR", "")
	if consulAddr == "" {
		return
	}

	config := consul.DefaultConfig()
	config.Address = consulAddr
	client, err := consul.NewClient(config)
	if err != nil {
		log.Printf("Error creating consul client for deregistration: %v", err)
		return
	}

	if err := client.Agent().ServiceDeregister(serviceID); err != nil {
		log.Printf("Error deregistering service: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
		log.Printf("Ignoring invalid %s=%q", key, value)
	}
	return fallback
}

func mustAtoi(s string) int {
	var i int
	fmt.Sscanf(s, "%d", &i)
	return i
}

func getLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}

	return "127.0.0.1"
}
