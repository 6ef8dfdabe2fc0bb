package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"nft-holdings/internal/holdings"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printView writes a session view as a table, or as JSON.
func printView(w io.Writer, format string, v holdings.View) error {
	if format == "json" {
		return printJSON(w, v)
	}

	fmt.Fprintf(w, "account %s  balance %d  assets %d", v.Account, v.Balance, len(v.Assets))
	if len(v.Skipped) > 0 {
		fmt.Fprintf(w, "  skipped %v", v.Skipped)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tTOKEN ID\tSTATE\tNAME\tURI")
	for _, a := range v.Assets {
		name := ""
		if a.Metadata != nil {
			name = a.Metadata.Name
		}
		uri := a.URI
		if uri == "" {
			uri = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", a.Index, a.TokenID, a.State, name, truncate(uri, 64))
		if a.Error != "" {
			fmt.Fprintf(tw, "\t\t\terror: %s\t\n", a.Error)
		}
	}
	return tw.Flush()
}

// printPairs writes key/value rows in insertion order.
func printPairs(w io.Writer, rows [][2]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func orDash(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return "-"
	}
	return *s
}
