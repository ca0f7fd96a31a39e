package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bolasblack/gowfp/internal/compiler"
	"github.com/bolasblack/gowfp/internal/config"
)

var (
	checkName   string
	checkWeight uint64
)

var checkCmd = &cobra.Command{
	Use:   "check [EXPR...]",
	Short: "Parse and compile filter expressions without installing them",
	Long: `Parse and compile each expression and print the resulting filter.
With no arguments, the filters in the configuration file are checked.
Nothing is installed and no elevation is needed.`,
	Example: `  gowfp check "inbound and udp and udp.dstport == 53 and action == block"
  gowfp check --config ./rules.toml`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkName, "name", "", "Filter name (single expression only)")
	checkCmd.Flags().Uint64Var(&checkWeight, "weight", 0, "Filter weight (defaults to the configured weight)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	env := newReadonlyEnv()
	cfg, err := loadConfigOptional(cmd, env)
	if err != nil {
		return err
	}

	if checkName != "" && len(args) != 1 {
		return fmt.Errorf("--name needs exactly one expression")
	}

	var filters []config.Filter
	if len(args) == 0 {
		filters = cfg.Filters
	}
	for _, arg := range args {
		f := config.Filter{Name: checkName, Expr: arg}
		if cmd.Flags().Changed("weight") {
			f.Weight = compiler.Weight(checkWeight)
		}
		filters = append(filters, f)
	}
	if len(filters) == 0 {
		return fmt.Errorf("nothing to check: pass an expression or add [[filters]] to %s", flagConfig)
	}

	c := compiler.New(compiler.WithDefaultWeight(cfg.Defaults.Weight))
	out := cmd.OutOrStdout()
	for _, f := range filters {
		compiled, err := c.CompileString(f.Expr, compiler.Options{Name: f.Name, Weight: f.Weight})
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, compiled.String())
	}
	return nil
}
