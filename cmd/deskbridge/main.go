package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deskbridge/deskbridge/internal/version"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "deskbridge",
		Short: "Bridge between a support platform and a supervisor messaging channel",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.GetInfo())
		},
	}
	root.AddCommand(serveCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
