package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List indexed sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSources(cmd.Context())
		},
	}
}

func runSources(ctx context.Context) error {
	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	sources, err := a.Store.ListSources(ctx)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Println("No sources indexed.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE ID\tTITLE\tMIME TYPE\tCHUNKS")
	for _, s := range sources {
		count, err := a.Store.CountChunks(ctx, s.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", s.ID, s.Title, s.MimeType, count)
	}
	return w.Flush()
}
