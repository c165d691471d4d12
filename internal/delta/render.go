package delta

import (
	"fmt"
	"html"
	"strings"

	"github.com/roach88/vigil/internal/ir"
)

// Format selects a presentation mode for reports.
type Format int

const (
	Text Format = iota
	HTML
)

// ParseFormat maps "text"/"str" and "html" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "str", "":
		return Text, nil
	case "html":
		return HTML, nil
	default:
		return 0, fmt.Errorf("unknown report format %q (want text or html)", s)
	}
}

// Render returns the report in the given format.
func (r Report) Render(f Format) string {
	if f == HTML {
		return r.HTML()
	}
	return r.Text()
}

// Text renders the report as plain text. Links are dropped.
func (r Report) Text() string {
	var b strings.Builder
	q := r.Query.String()
	switch r.Kind {
	case First:
		fmt.Fprintf(&b, "\nThis is the first result to query %s in %s with %s model checker.\nThe result is:",
			q, r.ModelID, r.CheckerType)
		b.WriteString(PayloadText(r.Current))
	case Changed:
		fmt.Fprintf(&b, "\nA new result to query %s in %s was found with %s model checker. ",
			q, r.ModelID, r.CheckerType)
		b.WriteString("\nPrevious result was:")
		b.WriteString(PayloadText(r.Previous))
		b.WriteString("\nNew result is:")
		b.WriteString(PayloadText(r.Current))
	default:
		fmt.Fprintf(&b, "\nA result to query %s in %s from %s model checker did not change. The result is:",
			q, r.ModelID, r.CheckerType)
		b.WriteString(PayloadText(r.Current))
	}
	return b.String()
}

// HTML renders the report as a <p> fragment with clickable evidence links.
func (r Report) HTML() string {
	var b strings.Builder
	q := html.EscapeString(r.Query.String())
	model := html.EscapeString(r.ModelID)
	checker := html.EscapeString(r.CheckerType)
	switch r.Kind {
	case First:
		fmt.Fprintf(&b, "<p>This is the first result to query %s in %s with %s model checker. The result is:<br>",
			q, model, checker)
		b.WriteString(PayloadHTML(r.Current))
	case Changed:
		fmt.Fprintf(&b, "<p>A new result to query %s in %s was found with %s model checker.<br>",
			q, model, checker)
		b.WriteString("<br>Previous result was:<br>")
		b.WriteString(PayloadHTML(r.Previous))
		b.WriteString("<br>New result is:<br>")
		b.WriteString(PayloadHTML(r.Current))
	default:
		fmt.Fprintf(&b, "<p>A result to query %s in %s from %s model checker did not change. The result is:<br>",
			q, model, checker)
		b.WriteString(PayloadHTML(r.Current))
	}
	b.WriteString("</p>")
	return b.String()
}

// PayloadText renders evidence sentences one per line, in answer-key order.
func PayloadText(p ir.Payload) string {
	var b strings.Builder
	for _, k := range p.Keys() {
		for _, ev := range p[k] {
			b.WriteString("\n")
			b.WriteString(ev.Sentence)
		}
	}
	return b.String()
}

// PayloadHTML renders evidence as anchors separated by <br>, in answer-key
// order. Evidence without a link becomes a bare anchor.
func PayloadHTML(p ir.Payload) string {
	var parts []string
	for _, k := range p.Keys() {
		for _, ev := range p[k] {
			sentence := html.EscapeString(ev.Sentence)
			if ev.Link == "" {
				parts = append(parts, "<a>"+sentence+"</a>")
				continue
			}
			parts = append(parts, fmt.Sprintf(`<a href="%s" target="_blank" class="status-link">%s</a>`,
				html.EscapeString(ev.Link), sentence))
		}
	}
	return strings.Join(parts, "<br>")
}

// Document wraps HTML fragments in a minimal page.
func Document(fragments ...string) string {
	return "<html><body>" + strings.Join(fragments, "") + "</body></html>"
}

// Join renders all reports in one format. HTML output is a full document.
func Join(reports []Report, f Format) string {
	parts := make([]string, len(reports))
	for i, r := range reports {
		parts[i] = r.Render(f)
	}
	if f == HTML {
		return Document(parts...)
	}
	return strings.Join(parts, "")
}
