// Command lk is the simulated arch start code: it plays the role the
// original source's assembly entry point and board-specific main()
// play, parsing boot arguments and calling into kernel.Main.
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
		Use:   "lk",
		Short: "lk boots and drives the simulated kernel core",
	}
	root.AddCommand(newRunCmd())
	return root
}
