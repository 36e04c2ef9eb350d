package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/tenantscan/internal/jq"
	"github.com/praetorian-inc/tenantscan/internal/message"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory <type>",
	Short: "Print the stored inventory of one resource type as JSON",
	Example: `  tenantscan inventory users --jq '.[] | select(.accountEnabled == false) | .userPrincipalName'
  tenantscan inventory licenses --jq 'map(select(.overAllocated)) | .[].skuPartNumber'`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: resourceTypeNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := models.ParseResourceType(args[0])
		if err != nil {
			return err
		}
		query, _ := cmd.Flags().GetString("jq")

		a, err := newApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.store.Inventory(cmd.Context(), rt)
		if err != nil {
			return err
		}

		var out []byte
		if query != "" {
			out, err = jq.Apply(records, query)
		} else {
			out, err = json.MarshalIndent(records, "", "  ")
			out = append(out, '\n')
		}
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var testAuthCmd = &cobra.Command{
	Use:   "test-auth",
	Short: "Verify the configured app registration can reach the tenant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.checkAuth(cmd.Context())
		if err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
		message.Success("Authenticated to %s (%s)", info.DisplayName, info.TenantID)
		if info.DefaultDomain != "" {
			message.Info("Default domain: %s", info.DefaultDomain)
		}
		return nil
	},
}

func init() {
	inventoryCmd.Flags().String("jq", "", "filter the records through a jq expression")
	rootCmd.AddCommand(inventoryCmd, testAuthCmd)
}
