package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/offsync/internal/client/storage"
	"github.com/iudanet/offsync/internal/models"
)

// RunPut создает или обновляет сущность локально.
// Операция ставится в очередь и уходит на сервер при следующем sync.
func (c *Cli) RunPut(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: offsync put <type> <id> <json>")
	}

	entityType, entityID, raw := args[0], args[1], args[2]

	if !json.Valid([]byte(raw)) {
		return fmt.Errorf("data must be valid JSON")
	}

	_, err := c.Service.Get(ctx, entityType, entityID)
	switch {
	case err == nil:
		if err := c.Service.Update(ctx, entityType, entityID, []byte(raw), models.PriorityNormal); err != nil {
			return fmt.Errorf("failed to update entity: %w", err)
		}
		fmt.Printf("Updated %s/%s\n", entityType, entityID)
	case errors.Is(err, storage.ErrRecordNotFound):
		if err := c.Service.Create(ctx, entityType, entityID, []byte(raw), models.PriorityNormal); err != nil {
			return fmt.Errorf("failed to create entity: %w", err)
		}
		fmt.Printf("Created %s/%s\n", entityType, entityID)
	default:
		return fmt.Errorf("failed to check entity: %w", err)
	}

	fmt.Printf("Pending operations: %d\n", c.Service.Queue().Size())
	return nil
}
