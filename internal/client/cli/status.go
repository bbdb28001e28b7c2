package cli

import (
	"context"
	"fmt"
	"time"
)

// RunStatus печатает состояние движка, сети и очереди.
func (c *Cli) RunStatus(ctx context.Context, args []string) error {
	c.Monitor.ProbeNow(ctx)

	fmt.Println("Engine:")
	fmt.Printf("  State:    %s\n", c.Service.State())
	fmt.Printf("  Network:  %s (quality %.2f)\n", c.Monitor.State(), c.Monitor.Quality())

	stats := c.Service.Stats()
	if stats.LastSyncAt.IsZero() {
		fmt.Println("  Last sync: never")
	} else {
		fmt.Printf("  Last sync: %s\n", stats.LastSyncAt.Format(time.RFC3339))
	}
	if stats.LastError != "" {
		fmt.Printf("  Last error: %s\n", stats.LastError)
	}

	fmt.Println()
	fmt.Println("Statistics:")
	fmt.Printf("  Sync cycles:        %d\n", stats.SyncCycles)
	fmt.Printf("  Operations pushed:  %d\n", stats.OperationsPushed)
	fmt.Printf("  Operations failed:  %d\n", stats.OperationsFailed)
	fmt.Printf("  Conflicts:          %d (%d resolved)\n", stats.Conflicts, stats.ConflictsResolved)

	qstats := c.Service.Queue().Stats()
	fmt.Println()
	fmt.Printf("Queue (%d pending):\n", qstats.Total)
	for priority, count := range qstats.ByPriority {
		fmt.Printf("  priority %-8s %d\n", priority, count)
	}
	for kind, count := range qstats.ByKind {
		fmt.Printf("  kind %-12s %d\n", kind, count)
	}

	if parked := c.Service.PendingConflicts(); len(parked) > 0 {
		fmt.Println()
		fmt.Printf("Conflicts awaiting manual resolution: %d\n", len(parked))
	}
	return nil
}
