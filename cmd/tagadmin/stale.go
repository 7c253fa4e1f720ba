// Stale command for the tagadmin CLI.
package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/assetops/tagledger/internal/domain"
)

var (
	staleOlderThan time.Duration
	stalePrefix    string
	staleLimit     int
	stalePage      int
)

var staleCmd = &cobra.Command{
	Use:   "stale",
	Short: "List reservations that were never confirmed",
	Long: `Stale lists tags that were reserved but never confirmed within the given
window — asset creations that apparently never completed, or whose callback
was lost. Read-only: stale numbers stay consumed, because the external
system may still complete the creation late.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		params := domain.NewPaginationParams(&stalePage, &staleLimit)

		records, total, err := ledger.ListStale(cmd.Context(), staleOlderThan, stalePrefix, params)
		if err != nil {
			return err
		}

		out := struct {
			Data  []domain.TagRecord `json:"data"`
			Total int64              `json:"total"`
		}{Data: records, Total: total}

		return printResult(out, func() {
			for _, rec := range records {
				fmt.Printf("%s\treserved %s\n", rec.FullTag, rec.ReservedAt.Format("2006-01-02 15:04:05 MST"))
			}
			fmt.Printf("%d stale reservation(s), showing %d\n", total, len(records))
		})
	},
}

func init() {
	staleCmd.Flags().DurationVar(&staleOlderThan, "older-than", 72*time.Hour, "age threshold for a reservation to count as stale")
	staleCmd.Flags().StringVar(&stalePrefix, "prefix", "", "restrict the audit to one prefix (default: all prefixes)")
	staleCmd.Flags().IntVar(&staleLimit, "limit", 50, "maximum rows to print")
	staleCmd.Flags().IntVar(&stalePage, "page", 1, "page of results to print")
}
