package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtcli/pkg/cli"
	"github.com/newtron-network/newtcli/pkg/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage persistent settings",
	Long: `Manage persistent settings stored in ~/.newtcli/settings.yaml.

Environment variables override the file: NEWTCLI_INVENTORY,
NEWTCLI_AUDIT_LOG, NEWTCLI_REDIS_ADDR, ...

Examples:
  newtcli settings show
  newtcli settings set inventory /etc/newtcli/inventory.yaml
  newtcli settings set audit_backend sqlite
  newtcli settings set redis_addr localhost:6379`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Settings file: %s\n\n", settings.DefaultSettingsPath())
		for _, kv := range s.Values() {
			value := kv[1]
			if value == "" {
				value = "(not set)"
			}
			fmt.Fprintf(out, "%s %s\n", cli.DotPad(kv[0], 20), value)
		}
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <setting> <value>",
	Short: "Set a setting value",
	Long: `Set a persistent setting value.

Available settings:
  inventory     - Device inventory file (-i flag default)
  dialects      - Extra dialect definitions (YAML)
  audit_log     - Audit trail file or database
  audit_backend - file (JSON lines) or sqlite
  redis_addr    - Redis address for the shared device lock
  lock_ttl      - Device lock lifetime (e.g. 5m)`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := settings.Set(settings.DefaultSettingsPath(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s set to: %s\n", args[0], args[1])
		return nil
	},
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show settings file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), settings.DefaultSettingsPath())
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsPathCmd)
}
