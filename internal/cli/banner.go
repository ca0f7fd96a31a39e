package cli

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/charmbracelet/lipgloss"
)

var bannerTmpl = template.Must(template.New("banner").Parse(`
{{ .Header }}
{{ range .Filters }}  {{ . }}
{{ end }}{{ if .MoreCount }}  ...and {{ .MoreCount }} more
{{ end }}{{ if .Listen }}  status: http://{{ .Listen }}/filters
{{ end }}{{ .Footer }}
`))

type bannerData struct {
	Header    string
	Filters   []string
	MoreCount int
	Listen    string
	Footer    string
}

// bannerMaxFilters is the maximum number of filters listed in the banner.
const bannerMaxFilters = 5

// bannerFilter is one installed filter as shown in the banner.
type bannerFilter struct {
	Name   string
	Weight uint64
	Expr   string
}

// renderBanner writes the "session active" banner. Colors are stripped when
// w is not a terminal.
func renderBanner(w io.Writer, sessionID string, filters []bannerFilter, listen string) {
	renderer := lipgloss.NewRenderer(w)
	yellow := renderer.NewStyle().Foreground(lipgloss.Color("3"))
	bold := renderer.NewStyle().Bold(true)

	noun := "filter"
	if len(filters) != 1 {
		noun = "filters"
	}
	header := bold.Render(fmt.Sprintf("● Session %s active with %d %s:", shortID(sessionID), len(filters), noun))

	shown := min(len(filters), bannerMaxFilters)
	lines := make([]string, 0, shown)
	for _, f := range filters[:shown] {
		lines = append(lines, fmt.Sprintf("%-24s w=%-6d %s", f.Name, f.Weight, f.Expr))
	}

	data := bannerData{
		Header:    header,
		Filters:   lines,
		MoreCount: len(filters) - shown,
		Listen:    listen,
		Footer:    yellow.Render("Press Ctrl+C to remove the filters and exit."),
	}

	var buf strings.Builder
	_ = bannerTmpl.Execute(&buf, data)
	_, _ = io.WriteString(w, buf.String())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
