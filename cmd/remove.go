package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <source-id>",
		Short: "Remove an indexed source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), args[0])
		},
	}
}

func runRemove(ctx context.Context, sourceID string) error {
	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.Orchestrator.Delete(ctx, sourceID); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", sourceID)
	return nil
}
