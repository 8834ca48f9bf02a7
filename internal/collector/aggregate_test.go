package collector

import (
	"testing"

	"github.com/zavedsaifi/procmon/internal/models"
)

func TestAggregate(t *testing.T) {
	rows := []models.Process{
		{PID: 1, Name: "init", CPUPercent: 1.5, MemoryMB: 10},
		{PID: 2, Name: "worker", CPUPercent: 150.0, MemoryMB: 512.5},
		{PID: 3, Name: "idle", CPUPercent: 0, MemoryMB: 0},
	}

	rollup := Aggregate(rows)

	if rollup.TotalProcesses != 3 {
		t.Errorf("Expected 3 processes, got %d", rollup.TotalProcesses)
	}
	// summed CPU may exceed 100 on multi-core hosts and must not be clamped
	if rollup.TotalCPUPercent != 151.5 {
		t.Errorf("Expected total CPU 151.5, got %f", rollup.TotalCPUPercent)
	}
	if rollup.TotalMemoryMB != 522.5 {
		t.Errorf("Expected total memory 522.5, got %f", rollup.TotalMemoryMB)
	}
}

func TestAggregateEmpty(t *testing.T) {
	rollup := Aggregate(nil)

	if rollup.TotalProcesses != 0 || rollup.TotalCPUPercent != 0 || rollup.TotalMemoryMB != 0 {
		t.Errorf("Expected zero rollup, got %+v", rollup)
	}
}
