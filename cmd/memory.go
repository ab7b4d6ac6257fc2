package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/koopa0/corpus/internal/memory"
)

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Manage user memories",
	}

	var (
		user       string
		importance float32
		ttl        time.Duration
		topK       int
	)

	addCmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Store a memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemoryAdd(cmd.Context(), user, strings.Join(args, " "), memory.AddOpts{
				Importance: importance,
				TTL:        ttl,
			})
		},
	}
	addCmd.Flags().Float32Var(&importance, "importance", memory.DefaultImportance, "importance score in [0, 1]")
	addCmd.Flags().DurationVar(&ttl, "ttl", 0, "retention duration (0 = never expires)")

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories by similarity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemorySearch(cmd.Context(), user, strings.Join(args, " "), topK)
		},
	}
	searchCmd.Flags().IntVar(&topK, "top-k", 5, "maximum number of results")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all memories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemoryList(cmd.Context(), user)
		},
	}

	forgetCmd := &cobra.Command{
		Use:   "forget <memory-id>",
		Short: "Delete a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemoryForget(cmd.Context(), user, args[0])
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired memories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemorySweep(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&user, "user", "default", "user the memories belong to")
	cmd.AddCommand(addCmd, searchCmd, listCmd, forgetCmd, sweepCmd)
	return cmd
}

func runMemoryAdd(ctx context.Context, user, content string, opts memory.AddOpts) error {
	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	m, err := a.Memory.Add(ctx, user, content, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Stored memory %s\n", m.ID)
	return nil
}

func runMemorySearch(ctx context.Context, user, query string, topK int) error {
	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	results, err := a.Memory.Search(ctx, user, query, topK)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No memories found.")
		return nil
	}
	for _, m := range results {
		fmt.Printf("[%.2f] %s  %s\n", m.Similarity, m.ID, m.Content)
	}
	return nil
}

func runMemoryList(ctx context.Context, user string) error {
	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	memories, err := a.Memory.List(ctx, user)
	if err != nil {
		return err
	}
	if len(memories) == 0 {
		fmt.Println("No memories stored.")
		return nil
	}
	for _, m := range memories {
		expiry := "never"
		if m.ExpiresAt != nil {
			expiry = m.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Printf("%s  importance=%.2f  expires=%s\n  %s\n", m.ID, m.Importance, expiry, m.Content)
	}
	return nil
}

func runMemoryForget(ctx context.Context, user, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid memory id %q: %w", rawID, err)
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.Memory.Forget(ctx, user, id); err != nil {
		return err
	}
	fmt.Printf("Forgot %s\n", id)
	return nil
}

func runMemorySweep(ctx context.Context) error {
	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	n, err := a.Memory.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Swept %d expired memories\n", n)
	return nil
}
