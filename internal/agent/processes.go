package agent

import (
	"fmt"
	"math"
	"net"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/zavedsaifi/procmon/internal/models"
)

// maxProcessesPerSnapshot caps a single submission on very busy hosts.
const maxProcessesPerSnapshot = 1000

type Collector struct {
	hostname       string
	ip             string
	includeCmdline bool
}

// NewCollector prepares a process-list collector for this host. Command
// lines may contain secrets, so collecting them is opt-in.
func NewCollector(includeCmdline bool) (*Collector, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("get hostname: %w", err)
	}

	return &Collector{
		hostname:       hostname,
		ip:             localIP(),
		includeCmdline: includeCmdline,
	}, nil
}

func (c *Collector) Hostname() string {
	return c.hostname
}

// Collect enumerates the running processes into one submission. Processes
// that exit or deny access mid-scan are skipped; the backend treats their
// orphaned children as roots.
func (c *Collector) Collect() (*models.Submission, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	rows := make([]models.SubmittedProcess, 0, len(procs))
	for _, p := range procs {
		row, ok := c.sample(p)
		if !ok {
			continue
		}
		rows = append(rows, row)
		if len(rows) >= maxProcessesPerSnapshot {
			break
		}
	}

	return &models.Submission{
		Hostname:  c.hostname,
		IPAddress: c.ip,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Processes: rows,
	}, nil
}

func (c *Collector) sample(p *process.Process) (models.SubmittedProcess, bool) {
	name, err := p.Name()
	if err != nil {
		return models.SubmittedProcess{}, false
	}
	if name == "" {
		name = "unknown"
	}

	row := models.SubmittedProcess{PID: p.Pid, Name: name, Status: "running"}

	if cpu, err := p.CPUPercent(); err == nil && cpu > 0 {
		row.CPUPercent = round2(cpu)
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		row.MemoryMB = round2(float64(mem.RSS) / (1024 * 1024))
	}
	if ppid, err := p.Ppid(); err == nil && ppid > 0 {
		row.ParentPID = &ppid
	}
	if statuses, err := p.Status(); err == nil && len(statuses) > 0 && statuses[0] != "" {
		row.Status = statuses[0]
	}
	if createdMs, err := p.CreateTime(); err == nil && createdMs > 0 {
		created := createdMs / 1000
		row.CreateTime = &created
	}
	if c.includeCmdline {
		if cmdline, err := p.Cmdline(); err == nil {
			row.CommandLine = cmdline
		}
	}

	return row, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}

	return ""
}
