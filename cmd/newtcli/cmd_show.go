package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtcli/pkg/auth"
	"github.com/newtron-network/newtcli/pkg/cli"
	"github.com/newtron-network/newtcli/pkg/handler"
)

// showAliases maps the plural forms operators type onto handler paths.
var showAliases = map[string]string{
	"vlans":      handler.VLANPath,
	"interfaces": handler.InterfaceDescriptionPath,
}

var showCmd = &cobra.Command{
	Use:   "show <path>",
	Short: "Show the records of a configuration subtree",
	Long: `Read every record of a configuration subtree from the device.

Paths: vlan (vlans), interface-description (interfaces).

Examples:
  newtcli -d pe1 show vlans
  newtcli -d pe1 show interfaces --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := requireDevice("")
		if err != nil {
			return err
		}
		path := resolvePath(args[0])
		lr, err := handler.Default().ListReader(path)
		if err != nil {
			return err
		}
		if err := checkPermission(auth.PermShow, name, path); err != nil {
			return err
		}

		ctx := cmd.Context()
		s, err := app.openSession(ctx, name)
		if err != nil {
			return err
		}
		defer s.Close()

		return runShow(ctx, cmd.OutOrStdout(), s, lr)
	},
}

func resolvePath(arg string) string {
	if p, ok := showAliases[arg]; ok {
		return p
	}
	return arg
}

type record struct {
	Key    string            `json:"key"`
	Fields map[string]string `json:"fields"`
}

func runShow(ctx context.Context, out io.Writer, dev handler.Device, lr handler.ListReader) error {
	list, err := lr.ReadList(ctx, dev, nil)
	if err != nil {
		return err
	}

	records := make([]record, 0, len(list))
	for _, d := range list {
		records = append(records, record{Key: d.Key(), Fields: d.Fields()})
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintf(out, "No %s records\n", lr.Path())
		return nil
	}

	columns := fieldNames(records)
	headers := append([]string{"KEY"}, upper(columns)...)
	t := cli.NewTable(headers...).WithWriter(out)
	for _, r := range records {
		row := []string{r.Key}
		for _, c := range columns {
			row = append(row, r.Fields[c])
		}
		t.Row(row...)
	}
	t.Flush()
	return nil
}

func fieldNames(records []record) []string {
	seen := map[string]bool{}
	var names []string
	for _, r := range records {
		for k := range r.Fields {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	return names
}

func upper(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToUpper(n)
	}
	return out
}
