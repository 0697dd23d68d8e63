package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtcli/pkg/audit"
	"github.com/newtron-network/newtcli/pkg/auth"
	"github.com/newtron-network/newtcli/pkg/cli"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View audit logs",
	Long: `View the audit trail of configuration transactions.

Every apply, previewed or executed, is logged with:
  - Timestamp and user
  - Device and operation
  - The change set
  - Outcome (committed, reverted, revert-failed, aborted, preview)
  - The device's failure report when the commit was rejected

Examples:
  newtcli audit list --device pe1
  newtcli audit list --last 24h --failures
  newtcli audit show 3f0c...`,
}

var (
	auditDevice   string
	auditUser     string
	auditOutcome  string
	auditLast     string
	auditLimit    int
	auditFailures bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkPermission(auth.PermAuditView, auditDevice, ""); err != nil {
			return err
		}
		filter := audit.Filter{
			Device:      auditDevice,
			User:        auditUser,
			Outcome:     auditOutcome,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
		}

		if auditLast != "" {
			duration, err := parseLast(auditLast)
			if err != nil {
				return err
			}
			filter.StartTime = time.Now().Add(-duration)
		}

		events, err := audit.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}
		return printEvents(cmd.OutOrStdout(), events)
	},
}

var auditShowCmd = &cobra.Command{
	Use:   "show <transaction-id>",
	Short: "Show one audited transaction in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ev, err := audit.Find(args[0])
		if err != nil {
			return err
		}
		if err := checkPermission(auth.PermAuditView, ev.Device, ""); err != nil {
			return err
		}
		return printEvent(cmd.OutOrStdout(), ev)
	},
}

func init() {
	auditListCmd.Flags().StringVar(&auditDevice, "device", "", "Filter by device")
	auditListCmd.Flags().StringVar(&auditUser, "user", "", "Filter by user")
	auditListCmd.Flags().StringVar(&auditOutcome, "outcome", "", "Filter by outcome")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h, 7d)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed operations")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditShowCmd)
}

// parseLast accepts Go durations plus a day suffix ("7d").
func parseLast(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid duration: %s", s)
	}
	return d, nil
}

func printEvents(out io.Writer, events []*audit.Event) error {
	if jsonOutput {
		return json.NewEncoder(out).Encode(events)
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "No audit events found")
		return nil
	}

	t := cli.NewTable("TIMESTAMP", "TXN", "USER", "DEVICE", "OPERATION", "CHANGES", "OUTCOME", "ERROR").WithWriter(out)
	for _, ev := range events {
		txnID := ev.TxnID
		if len(txnID) > 8 {
			txnID = txnID[:8]
		}
		t.Row(
			ev.Timestamp.Format("2006-01-02 15:04:05"),
			txnID,
			ev.User,
			ev.Device,
			ev.Operation,
			fmt.Sprint(len(ev.Changes)),
			cli.Outcome(ev.Outcome),
			ev.Error,
		)
	}
	t.Flush()
	return nil
}

func printEvent(out io.Writer, ev *audit.Event) error {
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ev)
	}

	fmt.Fprintf(out, "Transaction: %s\n", ev.TxnID)
	fmt.Fprintf(out, "Time:        %s\n", ev.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(out, "User:        %s\n", ev.User)
	fmt.Fprintf(out, "Device:      %s\n", ev.Device)
	fmt.Fprintf(out, "Operation:   %s\n", ev.Operation)
	fmt.Fprintf(out, "Outcome:     %s\n", cli.Outcome(ev.Outcome))
	fmt.Fprintf(out, "Duration:    %s\n", ev.Duration.Round(time.Millisecond))
	if ev.Error != "" {
		fmt.Fprintf(out, "Error:       %s\n", ev.Error)
	}

	fmt.Fprintln(out, "\nChanges:")
	t := cli.NewTable("TYPE", "PATH", "KEY", "AFTER").WithWriter(out).WithPrefix("  ")
	for _, c := range ev.Changes {
		t.Row(c.Type, c.Path, c.Key, formatFields(c.After))
	}
	t.Flush()

	if ev.Diagnostic != "" {
		fmt.Fprintln(out, "\nDevice failure report:")
		fmt.Fprintln(out, ev.Diagnostic)
	}
	return nil
}

func formatFields(fields map[string]string) string {
	parts := make([]string, 0, len(fields))
	for _, k := range sortedKeys(fields) {
		parts = append(parts, fmt.Sprintf("%s=%q", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
