package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/offsync/internal/client/storage"
)

// RunGet показывает локальную запись сущности.
func (c *Cli) RunGet(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: offsync get <type> <id>")
	}

	entityType, entityID := args[0], args[1]

	record, err := c.Service.Get(ctx, entityType, entityID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return fmt.Errorf("entity %s/%s not found", entityType, entityID)
		}
		return fmt.Errorf("failed to get entity: %w", err)
	}

	fmt.Printf("Entity:  %s/%s\n", record.EntityType, record.EntityID)
	fmt.Printf("Data:    %s\n", record.Data)
	fmt.Printf("Node:    %s\n", record.Version.NodeID)
	fmt.Printf("Clock:   %v\n", record.Version.Clock)
	fmt.Printf("Updated: %s\n", record.UpdatedAt.Format(time.RFC3339))
	return nil
}
