package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bolasblack/gowfp/internal/registry"
)

var getJSON bool

var errNotFound = errors.New("filter not found")

var getCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Show one installed filter by name",
	Long:  `Show the first filter installed in the engine with the given name. Exits 1 when there is none.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().BoolVar(&getJSON, "json", false, "Print the filter as JSON")
}

func runGet(cmd *cobra.Command, args []string) error {
	env := newReadonlyEnv()
	cfg, err := loadConfigOptional(cmd, env)
	if err != nil {
		return err
	}
	senv, err := newSessionEnv(cmd, env, cfg)
	if err != nil {
		return err
	}

	var (
		found registry.Descriptor
		ok    bool
	)
	err = withRegistry(cmd.Context(), senv, func(ctx context.Context, reg *registry.Registry) error {
		var err error
		found, ok, err = reg.FindByName(ctx, args[0])
		return err
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", errNotFound, args[0])
	}

	out := cmd.OutOrStdout()
	if getJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(found.View())
	}

	printFilter(out, found)
	return nil
}

func printFilter(out io.Writer, d registry.Descriptor) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Name:\t%s\n", d.Name)
	_, _ = fmt.Fprintf(w, "ID:\t%s\n", d.ID)
	if d.Description != "" {
		_, _ = fmt.Fprintf(w, "Description:\t%s\n", d.Description)
	}
	_, _ = fmt.Fprintf(w, "Provider:\t%s\n", d.Provider)
	_, _ = fmt.Fprintf(w, "Layer:\t%s\n", d.Layer)
	_, _ = fmt.Fprintf(w, "Direction:\t%s\n", d.Direction)
	_, _ = fmt.Fprintf(w, "Protocol:\t%s\n", d.Protocol)
	_, _ = fmt.Fprintf(w, "Action:\t%s\n", d.Action)
	_, _ = fmt.Fprintf(w, "Weight:\t%d\n", d.Weight)
	_, _ = fmt.Fprintf(w, "Conditions:\t%s\n", d.Summary())
	_ = w.Flush()
}
