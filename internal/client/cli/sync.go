package cli

import (
	"context"
	"fmt"
	"time"
)

// RunSync выполняет один цикл синхронизации с сервером.
func (c *Cli) RunSync(ctx context.Context, args []string) error {
	pending := c.Service.Queue().Size()
	if pending == 0 {
		fmt.Println("Nothing to sync")
		return nil
	}

	fmt.Printf("Syncing %d pending operations...\n", pending)

	// Проверяем доступность сервера перед циклом, иначе движок
	// просто перейдет в ожидание сети.
	c.Monitor.ProbeNow(ctx)
	if !c.Monitor.IsOnline() {
		if !c.Monitor.WaitForOnline(ctx, 5*time.Second) {
			return fmt.Errorf("server is unreachable, operations stay queued")
		}
	}

	if err := c.Service.Sync(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	stats := c.Service.Stats()
	fmt.Printf("Sync completed: %d pushed, %d conflicts (%d resolved)\n",
		stats.OperationsPushed, stats.Conflicts, stats.ConflictsResolved)

	if remaining := c.Service.Queue().Size(); remaining > 0 {
		fmt.Printf("Operations still pending: %d\n", remaining)
	}
	if parked := len(c.Service.PendingConflicts()); parked > 0 {
		fmt.Printf("Conflicts awaiting manual resolution: %d (see 'offsync conflicts')\n", parked)
	}
	return nil
}
