// Confirm command for the tagadmin CLI.
package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var confirmCmd = &cobra.Command{
	Use:   "confirm <full-tag> <external-id>",
	Short: "Link an issued tag to an external asset record by hand",
	Long: `Confirm records the external system's identifier against an issued tag,
exactly as the webhook callback would. Safe to repeat with the same id;
a different id against an already-confirmed tag is rejected as a conflict
for manual reconciliation.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		externalID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("external-id must be an integer: %w", err)
		}

		rec, err := ledger.Confirm(cmd.Context(), args[0], externalID)
		if err != nil {
			return err
		}
		return printResult(rec, func() {
			fmt.Printf("confirmed %s → external id %d\n", rec.FullTag, *rec.ExternalID)
		})
	},
}
