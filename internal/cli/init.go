// Package cli implements the gowfp command-line interface.
package cli

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/huh"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bolasblack/gowfp/internal/config"
)

var initTemplate string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a gowfp configuration file",
	Long:  `Create a .gowfp.toml configuration file (or the file named by --config) from a template.`,
	RunE:  runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initTemplate, "template", "t", "", "Template to use: example, inbound (prompts when omitted)")
}

func runInit(cmd *cobra.Command, args []string) error {
	env := newEnv().WithOutput(cmd.OutOrStdout())
	path := flagConfig

	if exists, _ := afero.Exists(env.Fs, path); exists {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	template, err := chooseTemplate(initTemplate)
	if err != nil {
		return err
	}

	content, err := config.GenerateConfig(template)
	if err != nil {
		return fmt.Errorf("failed to generate configuration: %w", err)
	}

	if err := afero.WriteFile(env.Fs, path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	progressDone(env.Out, "Created %s\n", path)
	progress(env.Out, "Edit this file, then try it with: gowfp check && gowfp run\n")
	return nil
}

func chooseTemplate(name string) (config.Template, error) {
	if name != "" {
		t := config.Template(name)
		if !slices.Contains(config.Templates, t) {
			return "", fmt.Errorf("unknown template %q (available: %v)", name, config.Templates)
		}
		return t, nil
	}

	if !isInteractive() {
		return config.TemplateExample, nil
	}

	var selected string
	err := huh.NewSelect[string]().
		Title("Select a template").
		Options(
			huh.NewOption("Example - allow one port on an address range, block other outbound TCP", string(config.TemplateExample)),
			huh.NewOption("Inbound - block inbound TCP and UDP except SSH", string(config.TemplateInbound)),
		).
		Value(&selected).
		Run()
	if err != nil {
		return "", fmt.Errorf("template selection cancelled: %w", err)
	}
	return config.Template(selected), nil
}
