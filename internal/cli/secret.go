package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/taskloom/taskloom/internal/secrets"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage the provider API key in the OS keyring",
}

var secretSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print("API key: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read api key: %w", err)
		}
		if err := secrets.StoreAPIKey(strings.TrimSpace(string(raw))); err != nil {
			return err
		}
		fmt.Println("Stored.")
		return nil
	},
}

var secretUnsetCmd = &cobra.Command{
	Use:   "unset",
	Short: "Remove the API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := secrets.DeleteAPIKey(); err != nil {
			return err
		}
		fmt.Println("Removed.")
		return nil
	},
}

func init() {
	secretCmd.AddCommand(secretSetCmd)
	secretCmd.AddCommand(secretUnsetCmd)
}
