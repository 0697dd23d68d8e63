package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/newtron-network/newtcli/pkg/auth"
	"github.com/newtron-network/newtcli/pkg/cache"
	"github.com/newtron-network/newtcli/pkg/handler"
)

var execCmd = &cobra.Command{
	Use:   "exec <command>...",
	Short: "Run show commands on a device",
	Long: `Run one or more read-only commands in privileged mode and print the
output. Repeated commands are sent once.

Examples:
  newtcli -d pe1 exec "show version"
  newtcli -d pe1 exec "show running-config vlan" "show running-config interface"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := requireDevice("")
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s, err := connect(ctx, name, auth.PermExec)
		if err != nil {
			return err
		}
		defer s.Close()

		return runExec(ctx, cmd.OutOrStdout(), s, args)
	},
}

// runExec prints the output of each command. All commands share one read
// context, so a repeated command is answered from it.
func runExec(ctx context.Context, out io.Writer, dev handler.Device, commands []string) error {
	rc := cache.NewReadContext(uuid.NewString())
	defer rc.Close()

	for i, c := range commands {
		output, err := dev.BlockingRead(ctx, rc, c)
		if err != nil {
			return err
		}
		if len(commands) > 1 {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, bold("# "+c))
		}
		fmt.Fprint(out, output)
		if output != "" && output[len(output)-1] != '\n' {
			fmt.Fprintln(out)
		}
	}
	return nil
}
