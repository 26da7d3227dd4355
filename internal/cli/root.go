// Package cli implements the fpoadmin command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fpoadmin/pkg/domain/attribute"
)

type rootOptions struct {
	configFile string
	envFile    string
	logLevel   string
}

// NewRootCommand builds the fpoadmin command tree.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "fpoadmin",
		Short:         "Maintain FPO facility and asset records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default: fpoadmin.yaml in ., ./config or /etc/fpoadmin)")
	flags.StringVar(&opts.envFile, "env-file", "", "dotenv file exported before reading the environment (default .env)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newServeCommand(opts),
		newSchemaCommand(opts),
		newValidateCommand(opts),
		newDiffCommand(opts),
		newRecordsCommand(opts),
		newArchiveCommand(opts),
		newTokenCommand(opts),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

// withApp builds the application for one command invocation and releases it
// afterwards.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	runErr := fn(ctx, a)
	if err := a.close(context.WithoutCancel(ctx)); err != nil {
		a.log.Warn("release resources", "error", err)
	}
	return runErr
}

// readDetails decodes a details argument: inline JSON, "@path" or "-" for
// stdin. The value must be a JSON object.
func readDetails(cmd *cobra.Command, value string) (attribute.Bag, error) {
	var raw []byte
	switch {
	case value == "":
		return attribute.NewBag(), nil
	case value == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return attribute.Bag{}, err
		}
		raw = b
	case strings.HasPrefix(value, "@"):
		b, err := os.ReadFile(strings.TrimPrefix(value, "@"))
		if err != nil {
			return attribute.Bag{}, err
		}
		raw = b
	default:
		raw = []byte(value)
	}
	bag := attribute.DecodeDetails(raw)
	if _, opaque := bag.Opaque(); opaque {
		return attribute.Bag{}, errors.New("details must be a JSON object")
	}
	return bag, nil
}
