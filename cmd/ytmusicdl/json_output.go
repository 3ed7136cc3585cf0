package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// printJSON writes the --json form of status and history. HTML escaping is
// off so titles like "Simon & Garfunkel" stay readable for jq users.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
