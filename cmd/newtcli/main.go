// Newtcli - transactional configuration over a device's interactive CLI
//
// Newtcli drives network devices through the same prompt-driven CLI an
// operator types into: it logs in, escalates to privileged mode, enters
// configuration mode, applies a change set, commits, and aborts the edit
// if anything is rejected.
//
//   - Read commands go through a per-run cache; one show per run
//   - Dry-run by default (preview changes, require -x to execute)
//   - Audit logging of every transaction
//   - Optional Redis device lock shared between operators
//
// Examples:
//
//	newtcli -d pe1 exec "show version"
//	newtcli -d pe1 show vlans
//	newtcli apply -f changes.yaml          # preview
//	newtcli apply -f changes.yaml -x       # execute
//	newtcli -d pe1 shell
//	newtcli audit list --device pe1 --last 24h
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/newtron-network/newtcli/pkg/audit"
	"github.com/newtron-network/newtcli/pkg/auth"
	"github.com/newtron-network/newtcli/pkg/cli"
	"github.com/newtron-network/newtcli/pkg/dialect"
	"github.com/newtron-network/newtcli/pkg/inventory"
	"github.com/newtron-network/newtcli/pkg/lock"
	"github.com/newtron-network/newtcli/pkg/session"
	"github.com/newtron-network/newtcli/pkg/settings"
	"github.com/newtron-network/newtcli/pkg/util"
	"github.com/newtron-network/newtcli/pkg/version"
)

var (
	// Global context flags
	deviceName    string // -d, --device
	inventoryPath string // -i, --inventory

	// Global option flags
	executeMode bool
	verbose     bool
	logJSON     bool
	jsonOutput  bool
)

// app holds what PersistentPreRunE sets up for the commands.
var app struct {
	settings *settings.Settings
	inv      *inventory.Inventory
	checker  *auth.Checker
	locker   lock.Locker

	// openSession is swapped in tests.
	openSession func(ctx context.Context, name string) (*session.Session, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	closeLocker()
	if err != nil {
		fmt.Fprintln(os.Stderr, red("Error:"), err)
		if util.NeedsOperator(err) {
			fmt.Fprintln(os.Stderr, bold(red("The device may be left with a partial edit; check it by hand.")))
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "newtcli",
	Short:             "Transactional configuration over device CLIs",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Newtcli configures network devices through their interactive CLI.

Write commands preview changes by default. Use -x to execute.

  newtcli -d <device> <command> [args] [-x]`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}
		if logJSON {
			util.SetJSONFormat()
		}

		if isSettingsOrHelp(cmd) {
			return nil
		}

		var err error
		app.settings, err = settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		if app.settings.Dialects != "" {
			if err := dialect.RegisterFile(app.settings.Dialects); err != nil {
				return fmt.Errorf("loading dialects: %w", err)
			}
		}

		if err := setupAudit(app.settings); err != nil {
			util.Warnf("Could not initialize audit logging: %v", err)
		}

		switch {
		case needsInventory(cmd):
			return loadInventory(true)
		case hasAncestor(cmd, "audit"):
			// Only the access policy is needed; without an inventory the
			// audit trail is open to everyone.
			return loadInventory(false)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&deviceName, "device", "d", "", "Device name (from the inventory)")
	rootCmd.PersistentFlags().StringVarP(&inventoryPath, "inventory", "i", "", "Inventory file (default from settings)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log in JSON")

	addWriteFlags(applyCmd)
	for _, cmd := range []*cobra.Command{showCmd, auditCmd, dialectsCmd} {
		addOutputFlags(cmd)
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "device", Title: "Device Operations:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)
	for _, cmd := range []*cobra.Command{execCmd, showCmd, applyCmd, shellCmd, lockCmd} {
		cmd.GroupID = "device"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{auditCmd, dialectsCmd, settingsCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}

	app.openSession = openSession
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if verbose {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "newtcli %s\n", version.Info())
	},
}

// ============================================================================
// Setup Helpers
// ============================================================================

func setupAudit(s *settings.Settings) error {
	var (
		logger audit.Logger
		err    error
	)
	switch s.AuditBackend {
	case settings.BackendSQLite:
		logger, err = audit.NewSQLiteLogger(s.AuditLog)
	default:
		logger, err = audit.NewFileLogger(s.AuditLog, audit.RotationConfig{
			MaxSize:    10 * 1024 * 1024, // 10MB
			MaxBackups: 10,
		})
	}
	if err != nil {
		return err
	}
	audit.SetDefaultLogger(logger)
	return nil
}

// deviceLocker returns the shared Redis lock when redis_addr is set, or
// nil for no locking.
func deviceLocker(ctx context.Context) (lock.Locker, error) {
	if app.locker != nil || app.settings == nil || app.settings.RedisAddr == "" {
		return app.locker, nil
	}
	l := lock.NewRedisLocker(app.settings.RedisAddr, 0)
	if err := l.Ping(ctx); err != nil {
		l.Close()
		return nil, fmt.Errorf("connecting to lock server %s: %w", app.settings.RedisAddr, err)
	}
	app.locker = l
	return l, nil
}

func closeLocker() {
	if l, ok := app.locker.(*lock.RedisLocker); ok {
		l.Close()
	}
}

// ============================================================================
// Context Helpers
// ============================================================================

// requireDevice returns the device named by -d or by the given fallback.
func requireDevice(fallback string) (string, error) {
	if deviceName != "" {
		return deviceName, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", fmt.Errorf("device required: use -d <device> flag")
}

// connect checks perm for the current user, then opens a privileged session.
func connect(ctx context.Context, name string, perm auth.Permission) (*session.Session, error) {
	if err := checkPermission(perm, name, ""); err != nil {
		return nil, err
	}
	return app.openSession(ctx, name)
}

func checkPermission(perm auth.Permission, device, path string) error {
	if app.checker == nil {
		return nil
	}
	return app.checker.Check(perm, auth.NewContext().WithDevice(device).WithPath(path))
}

func currentUser() string {
	if app.checker != nil {
		return app.checker.CurrentUser()
	}
	return auth.NewChecker(nil).CurrentUser()
}

// loadInventory loads the inventory and its access policy. A missing file
// is an error only when required.
func loadInventory(required bool) error {
	if inventoryPath == "" {
		inventoryPath = app.settings.Inventory
	}
	inv, err := inventory.Load(inventoryPath)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	app.inv = inv
	app.checker = auth.NewChecker(inv.Access())
	return nil
}

// openSession builds the device's session from the inventory and opens it,
// prompting for a password when none is configured.
func openSession(ctx context.Context, name string) (*session.Session, error) {
	dev, err := app.inv.Device(name)
	if err != nil {
		return nil, err
	}
	var password string
	if dev.Password == "" {
		if password, err = readPassword(fmt.Sprintf("Password for %s@%s: ", dev.Username, name)); err != nil {
			return nil, err
		}
	}
	s, err := dev.NewSession(password)
	if err != nil {
		return nil, err
	}
	if err := s.Open(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// readPassword reads a password from the terminal without echo. Without a
// terminal it returns empty, leaving the device to reject the login.
func readPassword(promptText string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprint(os.Stderr, promptText)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// isSettingsOrHelp checks whether cmd (or any ancestor) is a settings, help, or version command.
func isSettingsOrHelp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version", "settings":
			return true
		}
	}
	return false
}

// needsInventory reports whether cmd talks to devices.
func needsInventory(cmd *cobra.Command) bool {
	return !hasAncestor(cmd, "audit") && !hasAncestor(cmd, "dialects")
}

// hasAncestor reports whether cmd or one of its parents is named name.
func hasAncestor(cmd *cobra.Command, name string) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == name {
			return true
		}
	}
	return false
}

// addWriteFlags registers -x/--execute as a local flag.
func addWriteFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&executeMode, "execute", "x", false, "Execute changes (default is dry-run)")
}

// addOutputFlags registers --json as a local flag.
// For noun-group parent commands, this is a PersistentFlag so subcommands inherit.
func addOutputFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if cmd.HasSubCommands() {
		flags = cmd.PersistentFlags()
	}
	flags.BoolVar(&jsonOutput, "json", false, "JSON output")
}

// Color helpers delegate to pkg/cli
func green(s string) string  { return cli.Green(s) }
func yellow(s string) string { return cli.Yellow(s) }
func red(s string) string    { return cli.Red(s) }
func bold(s string) string   { return cli.Bold(s) }
