package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/newtron-network/newtcli/pkg/cli"
	"github.com/newtron-network/newtcli/pkg/dialect"
)

var dialectsCmd = &cobra.Command{
	Use:   "dialects",
	Short: "List device dialects",
	Long: `List the device dialects newtcli can drive. Built-in dialects can be
extended with a YAML file named by the "dialects" setting.

Examples:
  newtcli dialects
  newtcli dialects show cisco-iosxr`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		names := dialect.Names()
		if jsonOutput {
			return json.NewEncoder(out).Encode(names)
		}

		t := cli.NewTable("NAME", "COMMIT", "DESCRIPTION").WithWriter(out)
		for _, n := range names {
			d, err := dialect.Lookup(n)
			if err != nil {
				return err
			}
			t.Row(d.Name, d.Commit, d.Description)
		}
		t.Flush()
		return nil
	},
}

var dialectsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a dialect definition as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := dialect.Lookup(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(d)
		}
		data, err := yaml.Marshal(dialect.File{Dialects: []*dialect.Dialect{d}})
		if err != nil {
			return fmt.Errorf("encoding dialect: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	dialectsCmd.AddCommand(dialectsShowCmd)
}
