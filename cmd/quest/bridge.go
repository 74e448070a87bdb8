package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/quest/pkg/kernel/world/bridge"
	"github.com/ormasoftchile/quest/pkg/kernel/world/sim"
)

var bridgeAddr string

var bridgeCmd = &cobra.Command{
	Use:   "bridge [world.yaml]",
	Short: "Serve a simulated world over HTTP",
	Long: `Serve a world/v0 simulation behind the HTTP bridge protocol, so procedures
can run against it with --bridge or world.bridge in quest.yaml.

Routes:
  GET  /v0/capabilities
  GET  /v0/snapshot
  POST /v0/attempt
  POST /v0/reset`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := sim.Load(args[0])
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		fmt.Printf("  serving world %s on %s\n", w.Name(), bridgeAddr)
		return bridge.New(w, cmd.OutOrStdout()).ListenAndServe(ctx, bridgeAddr)
	},
}

func init() {
	bridgeCmd.Flags().StringVar(&bridgeAddr, "addr", "127.0.0.1:8787", "Listen address")
	rootCmd.AddCommand(bridgeCmd)
}
