package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bolasblack/gowfp/internal/registry"
	"github.com/bolasblack/gowfp/internal/session"
)

var listOwned bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List filters installed in the filtering engine",
	Long: `List every filter installed in the filtering engine, whoever installed it.
Use --owned to show only filters installed under the configured provider.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listOwned, "owned", false, "Only show filters installed by gowfp")
}

func runList(cmd *cobra.Command, args []string) error {
	env := newReadonlyEnv()
	cfg, err := loadConfigOptional(cmd, env)
	if err != nil {
		return err
	}
	senv, err := newSessionEnv(cmd, env, cfg)
	if err != nil {
		return err
	}

	var filters []registry.Descriptor
	err = withRegistry(cmd.Context(), senv, func(ctx context.Context, reg *registry.Registry) error {
		var err error
		if listOwned {
			filters, err = reg.ListOwned(ctx, senv.Options.Provider)
		} else {
			filters, err = reg.ListAll(ctx)
		}
		return err
	})
	if err != nil {
		return err
	}

	printFilters(cmd.OutOrStdout(), filters)
	return nil
}

// withRegistry opens a bare engine connection for read-only queries. No
// journal is written.
func withRegistry(ctx context.Context, senv *session.Env, fn func(ctx context.Context, reg *registry.Registry) error) error {
	conn, err := senv.Engine.Open(ctx, senv.Options)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return fn(ctx, registry.New(conn))
}

func printFilters(out io.Writer, filters []registry.Descriptor) {
	if len(filters) == 0 {
		_, _ = fmt.Fprintln(out, "No filters found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tID\tPROVIDER\tLAYER\tACTION\tWEIGHT\tCONDITIONS")
	for _, d := range filters {
		provider := d.Provider
		if provider == "" {
			provider = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			d.Name, d.ID, provider, d.Layer, d.Action, d.Weight, d.Summary())
	}
	_ = w.Flush()
}
