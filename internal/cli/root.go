// Package cli implements the taskloom command line interface.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/taskloom/taskloom/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"  _            _    _\n" +
		" | |_ __ _ ___| | _| | ___   ___  _ __ ___\n" +
		" | __/ _` / __| |/ / |/ _ \\ / _ \\| '_ ` _ \\\n" +
		" | || (_| \\__ \\   <| | (_) | (_) | | | | | |\n" +
		"  \\__\\__,_|___/_|\\_\\_|\\___/ \\___/|_| |_| |_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "taskloom",
	Short: "taskloom - AI task orchestrator",
	Long:  color.CyanString(logo) + "\nAn AI agent task orchestrator with phased execution and human approval gates.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(secretCmd)
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}
