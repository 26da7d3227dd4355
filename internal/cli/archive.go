package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"fpoadmin/internal/archive"
)

func newArchiveCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Export record snapshots to the blob store",
	}
	cmd.AddCommand(
		newArchiveExportCommand(opts),
		newArchiveListCommand(opts),
		newArchivePruneCommand(opts),
	)
	return cmd
}

func (a *app) exporter(ctx context.Context) (*archive.Exporter, error) {
	gw, err := a.gateway(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.blobStore(ctx)
	if err != nil {
		return nil, err
	}
	return archive.NewExporter(gw, store,
		archive.WithWorkers(a.cfg.Archive.Workers),
		archive.WithLogger(a.log),
		archive.WithRegistry(a.registry),
	), nil
}

func newArchiveExportCommand(opts *rootOptions) *cobra.Command {
	var parents []string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write JSON and XLSX snapshots for each organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				exp, err := a.exporter(ctx)
				if err != nil {
					return err
				}
				manifest, exportErr := exp.Export(ctx, parents)
				if manifest.Snapshot != "" {
					enc := json.NewEncoder(a.stdout)
					enc.SetIndent("", "  ")
					if err := enc.Encode(manifest); err != nil {
						return err
					}
				}
				return exportErr
			})
		},
	}
	cmd.Flags().StringSliceVar(&parents, "parent", nil, "organization ids (repeatable or comma separated)")
	_ = cmd.MarkFlagRequired("parent")
	return cmd
}

func newArchiveListCommand(opts *rootOptions) *cobra.Command {
	var parentID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots of an organization, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				exp, err := a.exporter(ctx)
				if err != nil {
					return err
				}
				snapshots, err := exp.Snapshots(ctx, parentID)
				if err != nil {
					return err
				}
				for _, s := range snapshots {
					_, _ = fmt.Fprintln(a.stdout, s)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "organization id")
	_ = cmd.MarkFlagRequired("parent")
	return cmd
}

func newArchivePruneCommand(opts *rootOptions) *cobra.Command {
	var parentID string
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest snapshots of an organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				exp, err := a.exporter(ctx)
				if err != nil {
					return err
				}
				removed, err := exp.Prune(ctx, parentID, keep)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(a.stdout, "removed %d objects\n", removed)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "organization id")
	cmd.Flags().IntVar(&keep, "keep", 5, "snapshots to keep")
	_ = cmd.MarkFlagRequired("parent")
	return cmd
}
