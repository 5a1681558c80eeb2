package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kiesman99/tilemosaic/pkg/tile"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the built-in tile providers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTEMPLATE")
		for _, p := range tile.Providers() {
			fmt.Fprintf(w, "%s\t%s\n", p.Name, p.Template)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
