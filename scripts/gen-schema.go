//go:build ignore

package main

import (
	"fmt"
	"os"

	"github.com/ormasoftchile/quest/pkg/kernel/schema"
)

func main() {
	if err := os.MkdirAll("schemas", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}
	for file, gen := range map[string]func() ([]byte, error){
		"schemas/quest-v0.json": schema.GenerateProcedureJSONSchema,
		"schemas/world-v0.json": schema.GenerateWorldJSONSchema,
	} {
		data, err := gen()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error generating %s: %v\n", file, err)
			os.Exit(1)
		}
		if err := os.WriteFile(file, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("wrote", file)
	}
}
