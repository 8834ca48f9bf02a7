package agent

import (
	"fmt"
	"log"
	"time"

	consul "github.com/hashicorp/consul/api"
)

// ServiceName is the Consul service the collector registers under.
const ServiceName = "procmon-collector"

type ServiceDiscovery struct {
	consulAddr string
	client     *consul.Client
}

func NewServiceDiscovery(consulAddr string) (*ServiceDiscovery, error) {
	config := consul.DefaultConfig()
	config.Address = consulAddr

	client, err := consul.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}

	return &ServiceDiscovery{
		consulAddr: consulAddr,
		client:     client,
	}, nil
}

// DiscoverCollector returns the base URL of a healthy collector instance.
func (sd *ServiceDiscovery) DiscoverCollector() (string, error) {
	services, _, err := sd.client.Health().Service(ServiceName, "", true, nil)
	if err != nil {
		return "", fmt.Errorf("query consul: %w", err)
	}

	if len(services) == 0 {
		return "", fmt.Errorf("no healthy collector services found")
	}

	service := services[0]
	addr := service.Service.Address
	if addr == "" {
		addr = service.Node.Address
	}

	return fmt.Sprintf("http://%s:%d", addr, service.Service.Port), nil
}

// WatchCollector emits the collector URL whenever it changes.
func (sd *ServiceDiscovery) WatchCollector() <-chan string {
	urlChan := make(chan string, 1)

	go func() {
		var lastURL string
		for {
			url, err := sd.DiscoverCollector()
			if err != nil {
				log.Printf("Discovery failed: %v", err)
				time.Sleep(5 * time.Second)
				continue
			}

			if url != lastURL {
				log.Printf("Discovered collector at: %s", url)
				urlChan <- url
				lastURL = url
			}

			time.Sleep(10 * time.Second)
		}
	}()

	return urlChan
}
