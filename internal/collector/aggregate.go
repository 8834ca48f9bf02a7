package collector

import "github.com/zavedsaifi/procmon/internal/models"

// Aggregate computes the rollup stored with a snapshot: row count, summed
// CPU percent, summed memory. CPU is not clamped at 100 because multi-core
// hosts legitimately exceed it.
func Aggregate(rows []models.Process) models.Rollup {
	rollup := models.Rollup{TotalProcesses: len(rows)}
	for _, p := range rows {
		rollup.TotalCPUPercent += p.CPUPercent
		rollup.TotalMemoryMB += p.MemoryMB
	}
	return rollup
}
