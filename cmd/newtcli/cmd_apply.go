package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtcli/pkg/audit"
	"github.com/newtron-network/newtcli/pkg/auth"
	"github.com/newtron-network/newtcli/pkg/cli"
	"github.com/newtron-network/newtcli/pkg/handler"
	"github.com/newtron-network/newtcli/pkg/txn"
	"github.com/newtron-network/newtcli/pkg/util"
)

var changeFile string

var applyCmd = &cobra.Command{
	Use:   "apply -f <changes.yaml>",
	Short: "Apply a change set as one transaction",
	Long: `Apply a YAML change set to a device as one transaction: enter config
mode, send every change, commit. If a change or the commit is rejected the
edit is aborted and the device keeps its previous configuration.

Without -x the change set is checked and previewed but not sent.

Change file format:
  device: pe1
  operation: add-servers-vlan
  changes:
    - {path: vlan, key: "30", type: add, after: {name: servers}}
    - {path: interface-description, key: GigabitEthernet0/0/0/1, type: modify, after: {description: to core}}
    - {path: vlan, key: "20", type: delete}

Examples:
  newtcli apply -f changes.yaml
  newtcli apply -f changes.yaml -x`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cs, err := txn.LoadFile(changeFile)
		if err != nil {
			return err
		}
		name, err := requireDevice(cs.Device)
		if err != nil {
			return err
		}
		if cs.Device != name {
			return fmt.Errorf("change file is for device %s, -d selects %s", cs.Device, name)
		}

		reg := handler.Default()
		if err := txn.Check(reg, cs); err != nil {
			return err
		}
		for _, c := range cs.Changes {
			if err := checkPermission(auth.WritePermission(c.Path), name, c.Path); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Changes to be applied:")
		fmt.Fprint(out, cs.String())

		if !executeMode {
			logPreview(cs)
			printDryRunNotice(out)
			return nil
		}

		ctx := cmd.Context()
		locker, err := deviceLocker(ctx)
		if err != nil {
			return err
		}
		s, err := app.openSession(ctx, name)
		if err != nil {
			return err
		}
		defer s.Close()

		coord := &txn.Coordinator{
			Session:  s,
			Registry: reg,
			Locker:   locker,
			LockTTL:  app.settings.LockTTL,
			User:     currentUser(),
		}
		_, err = runApply(ctx, out, coord, cs)
		return err
	},
}

func init() {
	applyCmd.Flags().StringVarP(&changeFile, "file", "f", "", "Change set file (YAML)")
	applyCmd.MarkFlagRequired("file")
}

// runApply runs cs and reports the outcome.
func runApply(ctx context.Context, out io.Writer, coord *txn.Coordinator, cs *txn.ChangeSet) (*txn.Result, error) {
	res, err := coord.Run(ctx, cs)

	fmt.Fprintf(out, "\nTransaction %s: %s (%d/%d changes sent, %s)\n",
		res.TxnID, outcome(res.Outcome), res.Applied, len(cs.Changes), res.Duration.Round(time.Millisecond))
	if res.Diagnostic != "" {
		fmt.Fprintln(out, "\nDevice failure report:")
		fmt.Fprintln(out, res.Diagnostic)
	}
	if err == nil {
		fmt.Fprintln(out, green("Changes committed successfully."))
	}
	return res, err
}

func logPreview(cs *txn.ChangeSet) {
	event := audit.NewEvent(currentUser(), cs.Device, cs.Operation).
		WithTxn(cs.ID).
		WithChanges(cs.AuditChanges()).
		WithOutcome(audit.OutcomePreview).
		WithExecuteMode(false)
	if err := audit.Log(event); err != nil {
		util.Warnf("audit: %v", err)
	}
}

// Helper to print dry-run notice
func printDryRunNotice(out io.Writer) {
	fmt.Fprintln(out, "\n"+yellow("DRY-RUN: No changes applied. Use -x to execute."))
}

func outcome(o txn.Outcome) string {
	return cli.Outcome(string(o))
}
