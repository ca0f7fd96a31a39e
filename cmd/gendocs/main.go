// Command gendocs writes the gowfp documentation tree: one markdown page per
// command, the filter expression reference, man pages and shell completions.
package main

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/bolasblack/gowfp/internal/cli"
	"github.com/bolasblack/gowfp/internal/compiler"
)

const usage = "Usage: gendocs <markdown|man|completions|all> [outdir]"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	out := "."
	if len(os.Args) > 2 {
		out = os.Args[2]
	}

	written, err := generate(afero.NewOsFs(), cli.GetRootCmd(), os.Args[1], out)
	for _, p := range written {
		fmt.Println(p)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "gendocs: %v\n", err)
		os.Exit(1)
	}
}

type generator func(fs afero.Fs, root *cobra.Command, out string) ([]string, error)

var generators = map[string]generator{
	"markdown":    genMarkdown,
	"man":         genMan,
	"completions": genCompletions,
}

// generate runs the named format ("all" runs every one) under out and
// returns the paths written.
func generate(fs afero.Fs, root *cobra.Command, format, out string) ([]string, error) {
	formats := []string{format}
	if format == "all" {
		formats = []string{"markdown", "man", "completions"}
	}

	var written []string
	for _, f := range formats {
		gen, ok := generators[f]
		if !ok {
			return written, fmt.Errorf("unknown format %q", f)
		}
		paths, err := gen(fs, root, out)
		written = append(written, paths...)
		if err != nil {
			return written, fmt.Errorf("%s: %w", f, err)
		}
	}
	return written, nil
}

func writeFile(fs afero.Fs, name string, render func(io.Writer) error) error {
	if err := fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return err
	}
	f, err := fs.Create(name)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("render %s: %w", name, err)
	}
	return f.Close()
}

// commands returns root and its visible descendants, depth first.
func commands(root *cobra.Command) []*cobra.Command {
	out := []*cobra.Command{root}
	for _, c := range root.Commands() {
		if !c.IsAvailableCommand() || c.IsAdditionalHelpTopicCommand() {
			continue
		}
		out = append(out, commands(c)...)
	}
	return out
}

func pageName(c *cobra.Command) string {
	return strings.ReplaceAll(c.CommandPath(), " ", "_")
}

func genMarkdown(fs afero.Fs, root *cobra.Command, out string) ([]string, error) {
	dir := path.Join(out, "docs")
	link := func(name string) string { return "./" + name }

	var written []string
	for _, c := range commands(root) {
		c.DisableAutoGenTag = true
		name := path.Join(dir, "commands", pageName(c)+".md")
		err := writeFile(fs, name, func(w io.Writer) error {
			if _, err := fmt.Fprintf(w, "---\ntitle: %q\n---\n\n", c.CommandPath()); err != nil {
				return err
			}
			return doc.GenMarkdownCustom(c, w, link)
		})
		if err != nil {
			return written, err
		}
		written = append(written, name)
	}

	name := path.Join(dir, "filters.md")
	if err := writeFile(fs, name, compiler.WriteReference); err != nil {
		return written, err
	}
	return append(written, name), nil
}

func genMan(fs afero.Fs, root *cobra.Command, out string) ([]string, error) {
	header := &doc.GenManHeader{
		Title:   "GOWFP",
		Section: "1",
		Source:  "gowfp " + cli.Version,
		Manual:  "gowfp Manual",
	}

	var written []string
	for _, c := range commands(root) {
		c.DisableAutoGenTag = true
		name := path.Join(out, "man", pageName(c)+".1")
		if err := writeFile(fs, name, func(w io.Writer) error { return doc.GenMan(c, header, w) }); err != nil {
			return written, err
		}
		written = append(written, name)
	}
	return written, nil
}

func genCompletions(fs afero.Fs, root *cobra.Command, out string) ([]string, error) {
	shells := []struct {
		ext string
		gen func(io.Writer) error
	}{
		{"bash", func(w io.Writer) error { return root.GenBashCompletionV2(w, true) }},
		{"zsh", root.GenZshCompletion},
		{"fish", func(w io.Writer) error { return root.GenFishCompletion(w, true) }},
		{"ps1", func(w io.Writer) error { return root.GenPowerShellCompletionWithDesc(w) }},
	}

	var written []string
	for _, sh := range shells {
		name := path.Join(out, "completions", "gowfp."+sh.ext)
		if err := writeFile(fs, name, sh.gen); err != nil {
			return written, err
		}
		written = append(written, name)
	}
	return written, nil
}
