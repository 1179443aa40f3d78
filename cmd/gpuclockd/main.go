package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gpuclockd",
		Short: "GPU DVFS tuning daemon",
		Long: `gpuclockd keeps the GPU DVFS step tables and exposes the
gpu_control and gpu_staycount attributes for reading and writing.

Examples:
  gpuclockd serve --config /etc/gpuclockd.yaml
  gpuclockd show gpu_control
  gpuclockd store gpu_control 90% 50%
  gpuclockd store gpu_staycount 2 3`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newShowCmd(), newStoreCmd(), newVersionCmd())
	return root
}
