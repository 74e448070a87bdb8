package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/quest/pkg/kernel/schema"
	"github.com/ormasoftchile/quest/pkg/kernel/validate"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "quest",
	Short:         "Resumable, decision-driven task runner",
	Long:          "quest drives declarative procedures against an external world, re-deriving progress from observed state on every iteration.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [file.yaml...]",
	Short: "Validate quest procedures and world files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		if err := validateOne(path); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n\n", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed validation", failed, len(args))
	}
	return nil
}

func validateOne(path string) error {
	var (
		errs    []*validate.ValidationError
		summary string
	)
	if isWorldFile(path) {
		var w *schema.World
		w, errs = validate.ValidateWorldFile(path)
		if w != nil {
			summary = fmt.Sprintf("✓ world %s is valid (%d zones, %d interactions)", w.Name, len(w.Zones), len(w.Interactions))
		}
	} else {
		var doc *schema.Procedure
		doc, errs = validate.ValidateFile(path)
		if doc != nil {
			summary = fmt.Sprintf("✓ %s is valid (%d milestones)", doc.Meta.Name, len(doc.Milestones))
		}
	}

	printValidationWarnings(errs)
	if bad := validate.Errors(errs); len(bad) > 0 {
		fmt.Fprintf(os.Stderr, "%s: validation failed: %d error(s)\n", path, len(bad))
		for i, e := range bad {
			fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("%s is invalid", path)
	}
	fmt.Println(summary)
	return nil
}

// isWorldFile peeks at apiVersion to pick the validator.
func isWorldFile(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var head struct {
		APIVersion string `yaml:"apiVersion"`
	}
	_ = yaml.Unmarshal(data, &head)
	return head.APIVersion == schema.APIVersionWorld
}

// printValidationWarnings prints any warnings to stderr.
func printValidationWarnings(errs []*validate.ValidationError) {
	for _, e := range errs {
		if e.Severity == "warning" {
			fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "    at: %s\n", e.Path)
			}
		}
	}
}

// --- schema ---

var schemaType string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export JSON Schema to stdout",
	RunE:  runSchemaExport,
}

func runSchemaExport(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	switch schemaType {
	case "procedure", "quest":
		data, err = schema.GenerateProcedureJSONSchema()
	case "world":
		data, err = schema.GenerateWorldJSONSchema()
	default:
		return fmt.Errorf("unknown schema type %q: use procedure or world", schemaType)
	}
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(out.String())
	return nil
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("quest %s (build: %s)\n", version, commit)
	},
}

func init() {
	schemaExportCmd.Flags().StringVar(&schemaType, "type", "procedure", "Schema type: procedure or world")
	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}
