// Package main provides tagadmin, the operator CLI for the tag ledger.
// It covers the administrative and infrequent operations — sequence resets,
// stale-reservation audits, previews — against the same repo and service
// code the API server runs, so there is no second SQL path to drift.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
