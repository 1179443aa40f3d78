package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"gpuclockd/internal/config"
	"gpuclockd/internal/tuning"
	"gpuclockd/internal/web"
)

var defaultNode = filepath.Join(config.DefaultNodeDir, tuning.DeviceName+".sock")

type clientOpts struct {
	node   string
	url    string
	device string
}

func (o *clientOpts) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.node, "node", defaultNode, "device node (unix socket) of the running daemon")
	cmd.Flags().StringVar(&o.url, "url", "", "daemon HTTP base URL; overrides --node")
	cmd.Flags().StringVar(&o.device, "device", tuning.DeviceName, "device name")
}

func (o *clientOpts) client() *web.Client {
	if o.url != "" {
		return web.NewClient(o.url)
	}
	return web.NewNodeClient(o.node)
}

func newShowCmd() *cobra.Command {
	var o clientOpts
	cmd := &cobra.Command{
		Use:   "show <attr>",
		Short: "Print an attribute of the running daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := o.client().Show(cmd.Context(), o.device, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	o.bind(cmd)
	return cmd
}

func newStoreCmd() *cobra.Command {
	var o clientOpts
	cmd := &cobra.Command{
		Use:   "store <attr> <payload...>",
		Short: "Write an attribute of the running daemon",
		Long: `Write an attribute. The payload words are joined with single spaces,
so "store gpu_control 90% 50%" writes "90% 50%". Flags go before <attr>;
everything after it is payload, so "store gpu_staycount -1 9999999" works.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := strings.Join(args[1:], " ")
			n, err := o.client().Store(cmd.Context(), o.device, args[0], payload)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d\n", n)
			return err
		},
	}
	o.bind(cmd)
	// Payload words such as "-1" are not flags.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := json.MarshalIndent(web.BuildInfo(), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", b)
			return err
		},
	}
}
