package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	_ = godotenv.Load(".env")

	rootCmd := &cobra.Command{
		Use:   "recorderd",
		Short: "Desktop test recorder daemon",
		Long: "recorderd captures mouse and keyboard input into replayable test\n" +
			"cases with screenshot evidence, controlled over a local HTTP API\n" +
			"and global hotkeys.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (TOML or YAML), overrides environment")

	rootCmd.AddCommand(serveCmd(), recordCmd(), listCmd(), exportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
