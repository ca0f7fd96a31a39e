package compiler

import (
	"fmt"
	"io"
	"text/template"

	"github.com/bolasblack/gowfp/internal/dsl"
)

var referenceTmpl = template.Must(template.New("reference").Parse(`# Filter expressions

A filter is a list of clauses joined by ` + "`and`" + `. Keywords are
case-insensitive and ` + "`field==value`" + ` may be written without spaces.

| Clause | Values |
|---|---|
| direction | ` + "`inbound`, `outbound`" + ` (default ` + "`{{ .DefaultDirection }}`" + `) |
| protocol | ` + "`tcp`, `udp`" + ` (default any; a port clause implies its protocol) |
| ` + "`remoteaddr == A`" + ` or ` + "`remoteaddr == A-B`" + ` | IPv4 address or inclusive range |
| ` + "`<port field> == N`" + ` | 0-65535 |
| ` + "`action == allow`" + ` or ` + "`action == block`" + ` | required |

A later clause for the same field replaces the earlier one.

## Port fields

Destination is the remote end of outbound traffic and the local end of
inbound traffic.

| Field | Direction | Compiles to |
|---|---|---|
{{ range .Ports }}| ` + "`{{ .Field }}`" + ` | {{ .Direction }} | ` + "`{{ .Condition }}`" + ` |
{{ end }}
## Defaults

- Weight: {{ .DefaultWeight }}. The highest-weight matching filter decides; traffic no filter matches is permitted.
- Layer: ` + "`<direction>-transport-v4`" + `, e.g. ` + "`{{ .ExampleLayer }}`" + `.
- Without address or port clauses, the protocol becomes the condition
  (` + "`{{ .ProtocolOnly }}`" + `), or with no protocol either, the whole IPv4
  range (` + "`{{ .MatchAll }}`" + `).
`))

type referencePort struct {
	Field     string
	Direction string
	Condition string
}

type referenceData struct {
	DefaultDirection string
	DefaultWeight    uint64
	ExampleLayer     string
	ProtocolOnly     string
	MatchAll         string
	Ports            []referencePort
}

// WriteReference writes a markdown reference of the filter expression
// language. Mappings and defaults are produced by compiling sample
// expressions, so the page follows the compiler.
func WriteReference(w io.Writer) error {
	c := New(WithNamer(NewSequenceNamer("ref")))
	compile := func(text string) (Filter, error) {
		return c.CompileString(text, Options{})
	}

	var data referenceData
	for _, field := range dsl.PortFields {
		for _, dir := range []dsl.Direction{dsl.Outbound, dsl.Inbound} {
			f, err := compile(fmt.Sprintf("%s and %s == 1 and action == block", dir, field))
			if err != nil {
				return err
			}
			data.Ports = append(data.Ports, referencePort{
				Field:     field.String(),
				Direction: dir.String(),
				Condition: f.Conditions[0].String(),
			})
		}
	}

	bare, err := compile("action == block")
	if err != nil {
		return err
	}
	data.DefaultDirection = bare.Layer.Direction.String()
	data.DefaultWeight = bare.Weight
	data.ExampleLayer = bare.Layer.String()
	data.MatchAll = bare.Conditions[0].String()

	proto, err := compile("tcp and action == block")
	if err != nil {
		return err
	}
	data.ProtocolOnly = proto.Conditions[0].String()

	return referenceTmpl.Execute(w, data)
}
