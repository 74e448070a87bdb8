// Package diagram renders the milestone flow of a quest document.
// Supports Mermaid flowchart and ASCII formats.
package diagram

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/quest/pkg/kernel/schema"
)

// Format represents the output diagram format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// Generate produces a diagram string from a parsed procedure document.
func Generate(doc *schema.Procedure, format Format) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("nil procedure")
	}
	switch format {
	case FormatMermaid:
		return generateMermaid(doc), nil
	case FormatASCII:
		return generateASCII(doc), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

// predecessors returns the direct logical predecessors of milestone i,
// resolving a nil After to the previous milestone.
func predecessors(doc *schema.Procedure, i int) []string {
	m := doc.Milestones[i]
	if m.After != nil {
		return m.After
	}
	if i == 0 {
		return nil
	}
	return []string{doc.Milestones[i-1].ID}
}

// --- Mermaid flowchart ---

func generateMermaid(doc *schema.Procedure) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	if len(doc.Milestones) == 0 {
		return b.String()
	}

	for i, m := range doc.Milestones {
		id := safeID(m.ID)
		b.WriteString("    " + milestoneNode(m) + "\n")

		preds := predecessors(doc, i)
		if len(preds) == 0 {
			b.WriteString("    START([Start]) --> " + id + "\n")
		}
		for _, p := range preds {
			b.WriteString(fmt.Sprintf("    %s --> %s\n", safeID(p), id))
		}
		if m.Evidence != "" {
			b.WriteString(fmt.Sprintf("    style %s stroke-dasharray:4\n", id))
		}
	}

	last := doc.Milestones[len(doc.Milestones)-1]
	b.WriteString(fmt.Sprintf("    %s --> DONE([%s])\n", safeID(last.ID), escMermaid(terminalLabel(doc))))
	b.WriteString("    style DONE fill:#0d6,stroke:#0a5,color:#fff\n")

	if fp := doc.FastPath; fp != nil && len(fp.Stages) > 0 {
		label := "fast path: " + strings.Join(fp.Requires, " + ")
		b.WriteString(fmt.Sprintf("    START -.->|%q| %s\n", label, safeID(fp.Stages[0])))
	}
	if doc.Default != nil {
		b.WriteString("    FALLBACK[/\"default\"/]\n")
		b.WriteString("    style FALLBACK fill:#444,stroke:#888,color:#fff\n")
	}
	return b.String()
}

func milestoneNode(m schema.Milestone) string {
	title := m.Title
	if title == "" {
		title = m.ID
	}
	lines := []string{escMermaid(title)}
	for _, s := range flattenSteps(m.Steps, 0) {
		lines = append(lines, strings.Repeat("&nbsp;&nbsp;", s.depth)+stepIcon(s.kind)+" "+escMermaid(s.label()))
	}
	return fmt.Sprintf(`%s["%s"]`, safeID(m.ID), strings.Join(lines, "<br/>"))
}

func terminalLabel(doc *schema.Procedure) string {
	if doc.Terminal == "" {
		return "Complete"
	}
	return "Complete: " + truncate(doc.Terminal, 40)
}

// --- ASCII ---

func generateASCII(doc *schema.Procedure) string {
	var b strings.Builder

	name := doc.Meta.Name
	if name == "" {
		name = "Quest"
	}
	if len(doc.Milestones) == 0 {
		b.WriteString(name + " (empty)\n")
		return b.String()
	}

	const indent = 8
	boxWidth := computeUniformBoxWidth(doc, name)
	connCol := indent + 1 + boxWidth/2
	pad := strings.Repeat(" ", indent)
	connPad := strings.Repeat(" ", connCol)

	mid := boxWidth / 2
	b.WriteString(pad + "╔" + strings.Repeat("═", boxWidth) + "╗\n")
	b.WriteString(pad + "║" + centerPad(name, boxWidth) + "║\n")
	b.WriteString(pad + "╚" + strings.Repeat("═", mid) + "╤" + strings.Repeat("═", boxWidth-mid-1) + "╝\n")
	b.WriteString(connPad + "│\n")

	for i := range doc.Milestones {
		writeASCIIMilestone(&b, doc, i, indent, boxWidth)
		b.WriteString(connPad + "│\n")
	}
	b.WriteString(strings.Repeat(" ", connCol-2) + "✅ " + terminalLabel(doc) + "\n")

	if fp := doc.FastPath; fp != nil {
		b.WriteString(fmt.Sprintf("\n  fast path: %s ⇒ %s\n",
			strings.Join(fp.Requires, " + "), strings.Join(fp.Stages, " → ")))
	}
	return b.String()
}

func milestoneLines(doc *schema.Procedure, i int) []string {
	m := doc.Milestones[i]
	title := m.Title
	if title == "" {
		title = m.ID
	}
	header := fmt.Sprintf(" ◆ %s [%s]", title, m.ID)
	if m.Weight > 1 {
		header += fmt.Sprintf(" ×%d", m.Weight)
	}
	lines := []string{header + " "}
	// Linear predecessors are implied by the layout.
	if m.After != nil && !(i > 0 && len(m.After) == 1 && m.After[0] == doc.Milestones[i-1].ID) {
		after := "none"
		if len(m.After) > 0 {
			after = strings.Join(m.After, ", ")
		}
		lines = append(lines, "   after: "+after+" ")
	}
	if m.Evidence != "" {
		lines = append(lines, "   ⊨ "+truncate(m.Evidence, 48)+" ")
	}
	for _, s := range flattenSteps(m.Steps, 0) {
		lines = append(lines, "   "+strings.Repeat("  ", s.depth)+stepIcon(s.kind)+" "+s.label()+" ")
	}
	return lines
}

// computeUniformBoxWidth returns the widest interior width needed across
// all milestones and the header name.
func computeUniformBoxWidth(doc *schema.Procedure, name string) int {
	w := 22
	if nw := runewidth.StringWidth(name) + 4; nw > w {
		w = nw
	}
	for i := range doc.Milestones {
		for _, l := range milestoneLines(doc, i) {
			if lw := runewidth.StringWidth(l); lw > w {
				w = lw
			}
		}
	}
	return w
}

// centerPad centers s within width using spaces, based on display width.
func centerPad(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	total := width - sw
	left := total / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", total-left)
}

func writeASCIIMilestone(b *strings.Builder, doc *schema.Procedure, i, indent, boxWidth int) {
	pad := strings.Repeat(" ", indent)
	mid := boxWidth / 2

	b.WriteString(pad + "┌" + strings.Repeat("─", mid) + "┴" + strings.Repeat("─", boxWidth-mid-1) + "┐\n")
	for _, l := range milestoneLines(doc, i) {
		b.WriteString(pad + "│" + l + strings.Repeat(" ", boxWidth-runewidth.StringWidth(l)) + "│\n")
	}
	b.WriteString(pad + "└" + strings.Repeat("─", mid) + "┬" + strings.Repeat("─", boxWidth-mid-1) + "┘\n")
}

func stepIcon(kind string) string {
	switch kind {
	case "action":
		return "⚡"
	case "branch":
		return "◇"
	case "case":
		return "?"
	default:
		return "○"
	}
}

// --- tree walking helpers ---

type diagramStep struct {
	id    string
	title string
	kind  string
	depth int
}

func (s diagramStep) label() string {
	if s.title != "" {
		return s.title
	}
	return s.id
}

func flattenSteps(steps []schema.Step, depth int) []diagramStep {
	var out []diagramStep
	for i := range steps {
		s := &steps[i]
		out = append(out, diagramStep{id: s.ID, title: s.Title, kind: string(s.Kind()), depth: depth})
		for _, br := range s.Branches {
			when := br.When
			if when == "" {
				when = "otherwise"
			}
			out = append(out, diagramStep{id: truncate(when, 36), kind: "case", depth: depth + 1})
			out = append(out, flattenSteps(br.Steps, depth+2)...)
		}
	}
	return out
}

// --- string helpers ---

func safeID(id string) string {
	r := strings.NewReplacer("-", "_", " ", "_", ".", "_")
	return r.Replace(id)
}

func escMermaid(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	s = strings.ReplaceAll(s, `'`, "#apos;")
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
