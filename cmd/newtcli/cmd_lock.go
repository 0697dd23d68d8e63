package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect the shared device lock",
	Long: `Show or release the Redis device lock taken by apply -x. Requires the
redis_addr setting.

Examples:
  newtcli -d pe1 lock status
  newtcli -d pe1 lock release`,
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who holds the device lock",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := requireDevice("")
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		locker, err := deviceLocker(ctx)
		if err != nil {
			return err
		}
		if locker == nil {
			return fmt.Errorf("no lock server configured: set redis_addr")
		}
		holder, acquired, err := locker.Holder(ctx, name)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if holder == "" {
			fmt.Fprintf(out, "%s is not locked\n", name)
			return nil
		}
		fmt.Fprintf(out, "%s is locked by %s since %s\n", name, holder, acquired.Local().Format(time.RFC3339))
		return nil
	},
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release a device lock held by the current user",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := requireDevice("")
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		locker, err := deviceLocker(ctx)
		if err != nil {
			return err
		}
		if locker == nil {
			return fmt.Errorf("no lock server configured: set redis_addr")
		}
		if err := locker.Release(ctx, name, currentUser()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s released\n", name)
		return nil
	},
}

func init() {
	lockCmd.AddCommand(lockStatusCmd)
	lockCmd.AddCommand(lockReleaseCmd)
}
