package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/quest/pkg/diagram"
	"github.com/ormasoftchile/quest/pkg/ecosystem/tui"
	"github.com/ormasoftchile/quest/pkg/kernel/schema"
)

var (
	describeWidth int
	diagramFormat string
)

var describeCmd = &cobra.Command{
	Use:   "describe [procedure.yaml]",
	Short: "Render a procedure's description and milestones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := schema.LoadFile(args[0])
		if err != nil {
			return err
		}
		fmt.Println(tui.RenderMarkdown(describeMarkdown(doc), describeWidth))
		return nil
	},
}

// describeMarkdown assembles the document summary as markdown.
func describeMarkdown(doc *schema.Procedure) string {
	var b strings.Builder
	desc := strings.TrimSpace(doc.Meta.Description)
	if desc == "" || !strings.HasPrefix(desc, "#") {
		fmt.Fprintf(&b, "# %s\n\n", doc.Meta.Name)
	}
	if desc != "" {
		b.WriteString(desc + "\n\n")
	}

	b.WriteString("## Milestones\n\n")
	b.WriteString("| # | id | title | weight | evidence |\n|---|---|---|---|---|\n")
	for i, m := range doc.Milestones {
		w := m.Weight
		if w <= 0 {
			w = 1
		}
		ev := "run only"
		if m.Evidence != "" {
			ev = "`" + strings.ReplaceAll(m.Evidence, "|", `\|`) + "`"
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %d | %s |\n", i+1, m.ID, m.Title, w, ev)
	}
	if doc.Terminal != "" {
		fmt.Fprintf(&b, "\n**Done when** `%s`\n", strings.ReplaceAll(doc.Terminal, "|", `\|`))
	}
	if fp := doc.FastPath; fp != nil {
		fmt.Fprintf(&b, "\n**Fast path** once %s are reached: %s\n",
			strings.Join(fp.Requires, ", "), strings.Join(fp.Stages, " → "))
	}
	return b.String()
}

var diagramCmd = &cobra.Command{
	Use:   "diagram [procedure.yaml]",
	Short: "Render the milestone flow as Mermaid or ASCII",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeDiagram(os.Stdout, args[0], diagram.Format(diagramFormat))
	},
}

func writeDiagram(w io.Writer, path string, format diagram.Format) error {
	doc, err := schema.LoadFile(path)
	if err != nil {
		return err
	}
	out, err := diagram.Generate(doc, format)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func init() {
	describeCmd.Flags().IntVar(&describeWidth, "width", 80, "Wrap width")
	diagramCmd.Flags().StringVar(&diagramFormat, "format", "ascii", "Diagram format: ascii or mermaid")
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(diagramCmd)
}
