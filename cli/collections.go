package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stevemurr/simple-record-server/store"
)

// CollectionSummary counts the records of one collection.
type CollectionSummary struct {
	Name    string `json:"name"`
	Active  int    `json:"active"`
	Deleted int    `json:"deleted"`
	Total   int    `json:"total"`
}

var collectionsJSON bool

func newCollectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Summarise the collections in the backing document",
		Long: `Read the backing document without starting the server and print every
collection with its active, deleted and total record counts.`,
		Args: cobra.NoArgs,
		RunE: runCollections,
	}
	cmd.Flags().BoolVar(&collectionsJSON, "json", false, "Output in JSON format")
	return cmd
}

func runCollections(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Inspection must never create a document.
	cfg.CreateIfMissing = false

	backend, st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if c, ok := backend.(io.Closer); ok {
		defer c.Close()
	}

	summaries := Summarise(st)
	out := cmd.OutOrStdout()
	if collectionsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(out, "No collections.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTION\tACTIVE\tDELETED\tTOTAL")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", s.Name, s.Active, s.Deleted, s.Total)
	}
	return tw.Flush()
}

// Summarise counts records per collection, sorted by name.
func Summarise(st *store.Store) []CollectionSummary {
	names := st.Collections()
	out := make([]CollectionSummary, 0, len(names))
	for _, name := range names {
		c, _ := st.Get(name)
		s := CollectionSummary{Name: name, Total: len(c.Records)}
		for _, r := range c.Records {
			if r.IsDeleted {
				s.Deleted++
			} else {
				s.Active++
			}
		}
		out = append(out, s)
	}
	return out
}
