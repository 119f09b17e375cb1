package commands

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/collegeos/portal/internal/cli/client"
)

// NewGetCmd creates the get command
func NewGetCmd(provide Provider) *cobra.Command {
	var output, id string
	var filters []string

	cmd := &cobra.Command{
		Use:       "get <resource>",
		Short:     "List a College OS collection or fetch one item",
		Long:      "Resources: " + strings.Join(resourceNames(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: resourceNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provide()
			if err != nil {
				return err
			}
			return runGet(cmd.Context(), a, args[0], id, filters, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	cmd.Flags().StringVar(&id, "id", "", "Fetch a single item by ID")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Query filter as key=value (repeatable)")

	return cmd
}

func resourceNames() []string {
	return slices.Sorted(maps.Keys(client.ResourcePaths))
}

func runGet(ctx context.Context, a *App, resource, id string, filters []string, output string) error {
	path, ok := client.ResourcePaths[resource]
	if !ok {
		return fmt.Errorf("unknown resource %q (available: %s)", resource, strings.Join(resourceNames(), ", "))
	}

	query := url.Values{}
	for _, f := range filters {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid filter %q (expected key=value)", f)
		}
		query.Add(k, v)
	}

	if _, err := a.RequireSession(ctx); err != nil {
		return err
	}

	res := client.NewResource[client.Record](a.Client, path)

	var records []client.Record
	if id != "" {
		item, err := res.Get(ctx, id)
		if err != nil {
			return err
		}
		if output == outputJSON || output == outputYAML {
			return writeOutput(a.Out, output, item, nil)
		}
		records = []client.Record{*item}
	} else {
		items, err := res.List(ctx, query)
		if err != nil {
			return err
		}
		records = items
	}

	return writeOutput(a.Out, output, records, func() error {
		if len(records) == 0 {
			a.printf("No %s found.\n", resource)
			return nil
		}
		return writeTable(a, records)
	})
}

// writeTable prints records with one column per key, id first
func writeTable(a *App, records []client.Record) error {
	keys := map[string]struct{}{}
	for _, r := range records {
		for k, v := range r {
			// nested values do not fit a table cell
			switch v.(type) {
			case map[string]any, []any:
				continue
			}
			keys[k] = struct{}{}
		}
	}
	delete(keys, "id")
	columns := append([]string{"id"}, slices.Sorted(maps.Keys(keys))...)

	w := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = strings.ToUpper(c)
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, r := range records {
		row := make([]string, len(columns))
		for i, c := range columns {
			if v, ok := r[c]; ok && v != nil {
				row[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}
