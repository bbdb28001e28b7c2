package cli

import (
	"context"
	"fmt"
	"time"
)

// RunList выводит все неудаленные сущности указанного типа.
func (c *Cli) RunList(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: offsync list <type>")
	}

	entityType := args[0]

	records, err := c.Service.List(ctx, entityType, 0)
	if err != nil {
		return fmt.Errorf("failed to list entities: %w", err)
	}

	if len(records) == 0 {
		fmt.Printf("No entities of type %q\n", entityType)
		return nil
	}

	fmt.Printf("Entities of type %q (%d):\n", entityType, len(records))
	for _, record := range records {
		fmt.Printf("  %-24s %s  %s\n",
			record.EntityID,
			record.UpdatedAt.Format(time.RFC3339),
			record.Data,
		)
	}
	return nil
}
