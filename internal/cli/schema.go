package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"fpoadmin/internal/render"
	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

func newSchemaCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [category]",
		Short: "Show the attribute schema of one or all categories",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(_ context.Context, a *app) error {
				categories := a.registry.Categories()
				if len(args) == 1 {
					category, err := a.registry.ParseCategory(args[0])
					if err != nil {
						return err
					}
					categories = []attribute.Category{category}
				}
				for i, category := range categories {
					schema, err := a.registry.Schema(category)
					if err != nil {
						return err
					}
					if i > 0 {
						_, _ = fmt.Fprintln(a.stdout)
					}
					if err := render.Schema(a.stdout, schema); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	var category, details string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a details object against a category schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(_ context.Context, a *app) error {
				cat, err := a.registry.ParseCategory(category)
				if err != nil {
					return err
				}
				bag, err := readDetails(cmd, details)
				if err != nil {
					return err
				}
				violations, err := a.registry.Validate(cat, bag)
				if err != nil {
					return err
				}
				if len(violations) == 0 {
					_, err := fmt.Fprintf(a.stdout, "valid %s details\n", cat)
					return err
				}
				for _, v := range violations {
					_, _ = fmt.Fprintln(a.stdout, v.String())
				}
				return &attribute.ValidationError{Category: cat, Violations: violations}
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "record category or alias")
	cmd.Flags().StringVar(&details, "details", "", `details JSON object, "@file" or "-" for stdin`)
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newDiffCommand(opts *rootOptions) *cobra.Command {
	var (
		category, original, edited string
		recordID, parentID         string
		asJSON                     bool
	)
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compute the change set between two versions of a record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(_ context.Context, a *app) error {
				cat, err := a.registry.ParseCategory(category)
				if err != nil {
					return err
				}
				schema, err := a.registry.Schema(cat)
				if err != nil {
					return err
				}
				before, err := readDetails(cmd, original)
				if err != nil {
					return fmt.Errorf("original: %w", err)
				}
				after, err := readDetails(cmd, edited)
				if err != nil {
					return fmt.Errorf("edited: %w", err)
				}
				base := domain.Record{Base: domain.Base{ID: recordID}, ParentID: parentID, Category: cat}
				from, to := base.Clone(), base.Clone()
				from.Attributes, to.Attributes = before, after
				cs := domain.ComputeChangeSet(schema, from, to)
				if asJSON {
					enc := json.NewEncoder(a.stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(cs)
				}
				return render.Changes(a.stdout, schema, before, cs)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&category, "category", "", "record category or alias")
	flags.StringVar(&original, "original", "", "original details JSON or @file")
	flags.StringVar(&edited, "edited", "", "edited details JSON or @file")
	flags.StringVar(&recordID, "id", "", "record id carried in the change set")
	flags.StringVar(&parentID, "parent", "", "organization id carried in the change set")
	flags.BoolVar(&asJSON, "json", false, "print the change set payload as JSON")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}
