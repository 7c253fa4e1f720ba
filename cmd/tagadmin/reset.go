// Reset command for the tagadmin CLI.
package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset <prefix> <new-start-number>",
	Short: "Re-seed where the next allocation for a prefix resumes",
	Long: `Reset sets the number the next allocation for the prefix will try first.
A start at or below the highest issued number is rejected unless --force is
given; forcing records your intent to rewind onto a possibly still-occupied
range, and allocation will step past any numbers that are still taken.
Existing ledger rows are never deleted or modified.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("new-start-number must be an integer: %w", err)
		}

		reset, err := ledger.Reset(cmd.Context(), args[0], start, resetForce)
		if err != nil {
			return err
		}
		return printResult(reset, func() {
			fmt.Printf("sequence for %s resumes at %d\n", reset.Prefix, reset.StartNumber)
			if reset.Forced {
				fmt.Println("warning: forced below the issued maximum — previously issued numbers may clash")
			}
		})
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "allow a start number at or below the highest issued number")
}
