package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:          "doc-extract",
		Short:        "Document chat, listing extraction and natural language SQL",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default ./config.yaml)")

	root.AddCommand(
		serveCMD(&cfgPath),
		workerCMD(&cfgPath),
		listingsCMD(&cfgPath),
		askCMD(&cfgPath),
	)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
