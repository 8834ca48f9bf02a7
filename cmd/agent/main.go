package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zavedsaifi/procmon/internal/agent"
)

const (
	defaultConsulAddr         = "127.0.0.1:8500"
	defaultCollectionInterval = 30 * time.Second
	defaultRetryDelay         = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	collectorURL := os.Getenv("COLLECTOR_URL")
	consulAddr := getEnv("CONSUL_HTTP_ADDR", "")
	apiKey := getEnv("AGENT_API_KEY", "")
	interval := getEnvDuration("COLLECTION_INTERVAL", defaultCollectionInterval)

	if collectorURL == "" && consulAddr == "" {
		log.Fatal("Either COLLECTOR_URL or CONSUL_HTTP_ADDR must be set")
	}

	log.Printf("Starting process monitor agent")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v", sig)
		cancel()
	}()

	if collectorURL != "" {
		log.Printf("Using direct collector URL: %s", collectorURL)
		for {
			select {
			case <-ctx.Done():
				log.Println("Shutting down")
				return nil
			default:
				if err := runLoop(ctx, collectorURL, apiKey, interval); err != nil && ctx.Err() == nil {
					log.Printf("Agent error: %v, retrying...", err)
					time.Sleep(defaultRetryDelay)
				}
			}
		}
	}

	if consulAddr == "" {
		consulAddr = defaultConsulAddr
	}
	log.Printf("Using Consul service discovery at: %s", consulAddr)

	var discovery *agent.ServiceDiscovery
	for {
		select {
		case <-ctx.Done():
			log.Println("Shutting down")
			return nil
		default:
		}

		var err error
		discovery, err = agent.NewServiceDiscovery(consulAddr)
		if err != nil {
			log.Printf("Failed to create service discovery: %v, retrying...", err)
			time.Sleep(defaultRetryDelay)
			continue
		}
		break
	}

	urlChan := discovery.WatchCollector()

	for {
		select {
		case <-ctx.Done():
			log.Println("Shutting down")
			return nil

		case url := <-urlChan:
			if err := runLoop(ctx, url, apiKey, interval); err != nil && ctx.Err() == nil {
				log.Printf("Agent error: %v, retrying...", err)
				time.Sleep(defaultRetryDelay)
			}
		}
	}
}

// runLoop collects and submits snapshots until the context ends. Failed
// submissions are logged and dropped; the next cycle re-sends fresh data.
func runLoop(ctx context.Context, collectorURL, apiKey string, interval time.Duration) error {
	includeCmdline := os.Getenv("COLLECT_COMMAND_LINES") == "1"

	c, err := agent.NewCollector(includeCmdline)
	if err != nil {
		return err
	}

	client := agent.NewClient(collectorURL, apiKey)
	log.Printf("Reporting to %s as %s every %s", collectorURL, c.Hostname(), interval)

	submit := func() {
		sub, err := c.Collect()
		if err != nil {
			log.Printf("Error collecting processes: %v", err)
			return
		}
		if err := client.Send(ctx, sub); err != nil {
			log.Printf("Error submitting snapshot: %v", err)
			return
		}
		log.Printf("Submitted snapshot with %d processes", len(sub.Processes))
	}

	submit()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			submit()
		}
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
		log.Printf("Ignoring invalid %s=%q", key, value)
	}
	return fallback
}
