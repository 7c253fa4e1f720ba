// Allocate command for the tagadmin CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var allocatePadding int

var allocateCmd = &cobra.Command{
	Use:   "allocate <prefix>",
	Short: "Reserve the next tag number for a prefix",
	Long: `Allocate reserves the next number for the prefix and prints the new
ledger record. The reserved tag stays unconfirmed until the external asset
system's callback confirms it; an allocation made by hand that never gets a
matching external record will show up in the stale audit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := ledger.Allocate(cmd.Context(), args[0], allocatePadding)
		if err != nil {
			return err
		}
		return printResult(rec, func() {
			fmt.Printf("reserved %s (number %d) at %s\n", rec.FullTag, rec.TagNumber, rec.ReservedAt.Format("2006-01-02 15:04:05 MST"))
		})
	},
}

func init() {
	allocateCmd.Flags().IntVar(&allocatePadding, "padding", 4, "zero-padding width for the tag number")
}
