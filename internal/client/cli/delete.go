package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/offsync/internal/client/storage"
	"github.com/iudanet/offsync/internal/models"
)

// RunDelete помечает сущность удаленной и ставит операцию в очередь.
// Запись остается надгробием до подтверждения сервером.
func (c *Cli) RunDelete(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: offsync delete <type> <id>")
	}

	entityType, entityID := args[0], args[1]

	if err := c.Service.Delete(ctx, entityType, entityID, models.PriorityNormal); err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return fmt.Errorf("entity %s/%s not found", entityType, entityID)
		}
		return fmt.Errorf("failed to delete entity: %w", err)
	}

	fmt.Printf("Deleted %s/%s\n", entityType, entityID)
	fmt.Printf("Pending operations: %d\n", c.Service.Queue().Size())
	return nil
}
