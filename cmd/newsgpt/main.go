package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var cfgPath string
	root := &cobra.Command{Use: "newsgpt"}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	root.AddCommand(
		serveCMD(&cfgPath),
		migrateCMD(&cfgPath),
		scrapeCMD(&cfgPath),
		chunkCMD(&cfgPath),
		embeddingsCMD(&cfgPath),
		askCMD(&cfgPath),
	)
	_ = root.Execute()
}
