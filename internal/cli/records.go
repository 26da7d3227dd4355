package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fpoadmin/internal/render"
	"fpoadmin/pkg/domain"
)

func newRecordsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "records",
		Aliases: []string{"facilities"},
		Short:   "List and maintain the facility records of an organization",
	}
	cmd.AddCommand(
		newRecordsListCommand(opts),
		newRecordsCreateCommand(opts),
		newRecordsEditCommand(opts),
		newRecordsDeleteCommand(opts),
	)
	return cmd
}

func newRecordsListCommand(opts *rootOptions) *cobra.Command {
	var parentID string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the records of an organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ctrl, err := a.controller(ctx)
				if err != nil {
					return err
				}
				records, err := ctrl.Load(ctx, parentID)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(a.stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(records)
				}
				return render.Records(a.stdout, records)
			})
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "organization id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	_ = cmd.MarkFlagRequired("parent")
	return cmd
}

func newRecordsCreateCommand(opts *rootOptions) *cobra.Command {
	var parentID, category, details string
	var sets []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a record from the category defaults plus the given details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				cat, err := a.registry.ParseCategory(category)
				if err != nil {
					return err
				}
				bag, err := readDetails(cmd, details)
				if err != nil {
					return err
				}
				ctrl, err := a.controller(ctx)
				if err != nil {
					return err
				}
				draft, err := ctrl.StartCreate(parentID, cat)
				if err != nil {
					return err
				}
				attrs := draft.Record.Attributes
				attrs.Merge(bag)
				if err := ctrl.SetAttributes(attrs); err != nil {
					return err
				}
				if err := applySets(ctrl.SetField, sets); err != nil {
					return err
				}
				outcome, err := ctrl.Submit(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(a.stdout, outcome.RecordID)
				return err
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&parentID, "parent", "", "organization id")
	flags.StringVar(&category, "category", "", "record category or alias")
	flags.StringVar(&details, "details", "", `details JSON object, "@file" or "-" for stdin`)
	flags.StringArrayVar(&sets, "set", nil, "field=value; value is parsed as JSON when possible")
	_ = cmd.MarkFlagRequired("parent")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newRecordsEditCommand(opts *rootOptions) *cobra.Command {
	var parentID, recordID string
	var sets []string
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Change fields of a record and submit only the changed ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ctrl, err := a.controller(ctx)
				if err != nil {
					return err
				}
				records, err := ctrl.Load(ctx, parentID)
				if err != nil {
					return err
				}
				var existing *domain.Record
				for i := range records {
					if records[i].ID == recordID {
						existing = &records[i]
						break
					}
				}
				if existing == nil {
					return &domain.NotFoundError{Entity: domain.EntityRecord, ID: recordID}
				}
				if _, err := ctrl.StartEdit(*existing); err != nil {
					return err
				}
				if err := applySets(ctrl.SetField, sets); err != nil {
					return err
				}
				outcome, err := ctrl.Submit(ctx)
				if err != nil {
					return err
				}
				schema, err := a.registry.Schema(existing.Category)
				if err != nil {
					return err
				}
				return render.Changes(a.stdout, schema, existing.Attributes, outcome.Changes)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&parentID, "parent", "", "organization id")
	flags.StringVar(&recordID, "id", "", "record id")
	flags.StringArrayVar(&sets, "set", nil, "field=value; value is parsed as JSON when possible")
	_ = cmd.MarkFlagRequired("parent")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newRecordsDeleteCommand(opts *rootOptions) *cobra.Command {
	var recordID string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ctrl, err := a.controller(ctx)
				if err != nil {
					return err
				}
				return ctrl.Delete(ctx, recordID)
			})
		},
	}
	cmd.Flags().StringVar(&recordID, "id", "", "record id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

// applySets parses field=value pairs. Values that are valid JSON are stored
// decoded, anything else as a plain string.
func applySets(set func(name string, value any) error, pairs []string) error {
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("invalid --set %q, want field=value", pair)
		}
		var value any = raw
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			value = decoded
		}
		if err := set(name, value); err != nil {
			return err
		}
	}
	return nil
}
