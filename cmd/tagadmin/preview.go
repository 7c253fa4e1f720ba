// Preview command for the tagadmin CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var previewPadding int

var previewCmd = &cobra.Command{
	Use:   "preview <prefix>",
	Short: "Show the next tag a prefix would issue, without reserving it",
	Long: `Preview computes what the next allocation for the prefix would return.
Nothing is written: the number can be consumed by any concurrent allocation
the moment this command prints it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fullTag, err := ledger.Preview(cmd.Context(), args[0], previewPadding)
		if err != nil {
			return err
		}
		return printResult(map[string]string{"full_tag": fullTag}, func() {
			fmt.Println(fullTag)
		})
	},
}

func init() {
	previewCmd.Flags().IntVar(&previewPadding, "padding", 4, "zero-padding width for the tag number")
}
