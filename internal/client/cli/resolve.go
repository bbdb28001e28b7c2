package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/offsync/internal/client/sync"
)

// RunConflicts перечисляет конфликты, ожидающие ручного разрешения.
func (c *Cli) RunConflicts(ctx context.Context, args []string) error {
	conflicts := c.Service.PendingConflicts()
	if len(conflicts) == 0 {
		fmt.Println("No pending conflicts")
		return nil
	}

	fmt.Printf("Pending conflicts (%d):\n", len(conflicts))
	for _, conflict := range conflicts {
		fmt.Printf("\n%s/%s (detected %s)\n",
			conflict.EntityType, conflict.EntityID,
			conflict.DetectedAt.Format(time.RFC3339))
		fmt.Printf("  local  [%s @ %s]: %s\n",
			conflict.LocalVersion.NodeID,
			time.UnixMilli(conflict.LocalVersion.Timestamp).Format(time.RFC3339),
			conflict.LocalData)
		fmt.Printf("  remote [%s @ %s]: %s\n",
			conflict.RemoteVersion.NodeID,
			time.UnixMilli(conflict.RemoteVersion.Timestamp).Format(time.RFC3339),
			conflict.RemoteData)
	}
	fmt.Println()
	fmt.Println("Resolve with: offsync resolve <type> <id> <json>")
	return nil
}

// RunResolve разрешает отложенный конфликт явными данными пользователя.
func (c *Cli) RunResolve(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: offsync resolve <type> <id> <json>")
	}

	entityType, entityID, raw := args[0], args[1], args[2]

	if !json.Valid([]byte(raw)) {
		return fmt.Errorf("data must be valid JSON")
	}

	if _, err := c.Service.ResolveManual(ctx, entityType, entityID, []byte(raw)); err != nil {
		if errors.Is(err, sync.ErrConflictNotFound) {
			return fmt.Errorf("no pending conflict for %s/%s", entityType, entityID)
		}
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}

	fmt.Printf("Resolved %s/%s\n", entityType, entityID)
	fmt.Printf("Pending operations: %d\n", c.Service.Queue().Size())
	return nil
}
