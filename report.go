package xsdcheck

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
)

// Format selects how results are rendered.
type Format string

const (
	TextFormat Format = "text"
	JSONFormat Format = "json"
	HTMLFormat Format = "html"
)

// ParseFormat accepts the names used on the command line.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case TextFormat, JSONFormat, HTMLFormat:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want text, json or html)", s)
}

// FileResult pairs a Result with the document it was computed for.
// Source is only used for excerpts in text reports.
type FileResult struct {
	File   string `json:"file"`
	Source []byte `json:"-"`
	Result
}

// Reporter renders results.
type Reporter struct {
	Format Format
	// Color enables ANSI styling in text reports.
	Color bool

	errorStyle *color.Color
	noteStyle  *color.Color
	validStyle *color.Color
	gutter     *color.Color
}

// NewReporter creates a Reporter for format.
func NewReporter(format Format, colored bool) *Reporter {
	r := &Reporter{
		Format:     format,
		Color:      colored,
		errorStyle: color.New(color.FgRed, color.Bold),
		noteStyle:  color.New(color.FgCyan, color.Bold),
		validStyle: color.New(color.FgGreen, color.Bold),
		gutter:     color.New(color.FgBlue, color.Bold),
	}
	for _, c := range []*color.Color{r.errorStyle, r.noteStyle, r.validStyle, r.gutter} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// Write renders results to w in the reporter's format.
func (r *Reporter) Write(w io.Writer, results []FileResult) error {
	switch r.Format {
	case JSONFormat:
		return WriteJSON(w, results)
	case HTMLFormat:
		for _, fr := range results {
			if err := WriteHTML(w, fr.Result); err != nil {
				return err
			}
		}
		return nil
	}
	for _, fr := range results {
		if _, err := io.WriteString(w, r.Text(fr)); err != nil {
			return err
		}
	}
	return nil
}

// Text renders one result in the style of compiler diagnostics: a header
// per error, the location, and the offending source line with a caret.
func (r *Reporter) Text(fr FileResult) string {
	var sb strings.Builder
	name := fr.File
	if name == "" {
		name = "<input>"
	}

	switch fr.Kind {
	case Valid:
		fmt.Fprintf(&sb, "%s %s is valid\n", r.validStyle.Sprint("ok:"), name)
		return sb.String()

	case Malformed:
		me := fr.Malformed
		fmt.Fprintf(&sb, "%s: %s\n", r.errorStyle.Sprintf("error[malformed-%s]", me.Stage), me.Reason)
		if me.Stage == DocumentStage {
			r.writeLocation(&sb, name, fr.Source, me.Line, 0)
		} else {
			fmt.Fprintf(&sb, " %s %s schema", r.gutter.Sprint("-->"), name)
			if me.Line > 0 {
				fmt.Fprintf(&sb, " line %d", me.Line)
			}
			sb.WriteString("\n")
		}
		return sb.String()
	}

	if len(fr.Errors) == 0 {
		fmt.Fprintf(&sb, "%s: %s is not valid, but no detailed errors were found\n", r.errorStyle.Sprint("error"), name)
		return sb.String()
	}
	for _, e := range fr.Errors {
		header := "error"
		if e.Code != "" {
			header = fmt.Sprintf("error[%s]", e.Code)
		}
		fmt.Fprintf(&sb, "%s: %s\n", r.errorStyle.Sprint(header), e.Message)
		r.writeLocation(&sb, name, fr.Source, e.Line, e.Column)
		sb.WriteString("\n")
	}
	if fr.Truncated {
		fmt.Fprintf(&sb, "%s too many errors, only the first %d are shown\n", r.noteStyle.Sprint("note:"), len(fr.Errors))
	}
	fmt.Fprintf(&sb, "%s: %s has %s\n", r.errorStyle.Sprint("invalid"), name, plural(len(fr.Errors), "error"))
	return sb.String()
}

func (r *Reporter) writeLocation(sb *strings.Builder, name string, source []byte, line, column int) {
	if line <= 0 {
		fmt.Fprintf(sb, " %s %s\n", r.gutter.Sprint("-->"), name)
		return
	}
	if column > 0 {
		fmt.Fprintf(sb, " %s %s:%d:%d\n", r.gutter.Sprint("-->"), name, line, column)
	} else {
		fmt.Fprintf(sb, " %s %s:%d\n", r.gutter.Sprint("-->"), name, line)
	}

	text, ok := sourceLine(source, line)
	if !ok {
		return
	}
	num := fmt.Sprintf("%d", line)
	pad := strings.Repeat(" ", len(num))
	fmt.Fprintf(sb, "%s %s\n", pad, r.gutter.Sprint("|"))
	fmt.Fprintf(sb, "%s %s %s\n", r.gutter.Sprint(num), r.gutter.Sprint("|"), text)
	if column > 0 && column <= len(text)+1 {
		fmt.Fprintf(sb, "%s %s %s%s\n", pad, r.gutter.Sprint("|"), caretIndent(text, column), r.errorStyle.Sprint("^"))
	}
}

// sourceLine returns the 1-based line of source without its terminator.
func sourceLine(source []byte, line int) (string, bool) {
	if len(source) == 0 {
		return "", false
	}
	lines := bytes.Split(source, []byte("\n"))
	if line > len(lines) {
		return "", false
	}
	return strings.TrimRight(string(lines[line-1]), "\r"), true
}

// caretIndent keeps tabs so the caret lines up under the source text.
func caretIndent(text string, column int) string {
	var sb strings.Builder
	for i, r := range []rune(text) {
		if i >= column-1 {
			break
		}
		if r == '\t' {
			sb.WriteRune('\t')
		} else {
			sb.WriteRune(' ')
		}
	}
	return sb.String()
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// WriteJSON writes results as an indented JSON array.
func WriteJSON(w io.Writer, results []FileResult) error {
	if results == nil {
		results = []FileResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}

var htmlReport = template.Must(template.New("result").Parse(`{{- if eq .Kind.String "valid" -}}
<p class="result valid">✅ XML is valid! 🎉</p>
{{- else if eq .Kind.String "malformed" -}}
<p class="result error">⚠️ An error occurred: {{ .Malformed.Reason }}</p>
{{- else if .Errors -}}
<div class="result invalid">
<p>⚠️ XML Validation Failed! Fix these errors:</p>
<ul>
{{- range .Errors }}
<li><b>Line {{ .Line }}:</b> {{ .Message }}</li>
{{- end }}
</ul>
{{- if .Truncated }}
<p class="note">Too many errors, only the first {{ len .Errors }} are shown.</p>
{{- end }}
</div>
{{- else -}}
<p class="result invalid">❌ XML is NOT valid, but no detailed errors were found.</p>
{{- end }}
`))

// WriteHTML writes res as an HTML fragment. Messages are escaped.
func WriteHTML(w io.Writer, res Result) error {
	if err := htmlReport.Execute(w, res); err != nil {
		return fmt.Errorf("failed to render result: %w", err)
	}
	return nil
}
