package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtcli/pkg/auth"
	"github.com/newtron-network/newtcli/pkg/handler"
	"github.com/newtron-network/newtcli/pkg/session"
	"github.com/newtron-network/newtcli/pkg/txn"
	"github.com/newtron-network/newtcli/pkg/util"
)

// Shell provides an interactive REPL on one open device session. Changes
// are staged locally and sent as a single transaction on commit.
type Shell struct {
	sess     *session.Session
	coord    *txn.Coordinator
	reader   *bufio.Reader
	out      io.Writer
	staged   *txn.ChangeSet
	commands map[string]func(ctx context.Context, args []string)
}

// NewShell creates a shell driving coord's session.
func NewShell(sess *session.Session, coord *txn.Coordinator, in io.Reader, out io.Writer) *Shell {
	s := &Shell{
		sess:   sess,
		coord:  coord,
		reader: bufio.NewReader(in),
		out:    out,
		staged: txn.NewChangeSet(sess.Device(), "shell"),
	}
	s.commands = map[string]func(ctx context.Context, args []string){
		"show":    s.cmdShow,
		"exec":    s.cmdExec,
		"stage":   func(_ context.Context, args []string) { s.cmdStage(args) },
		"staged":  func(context.Context, []string) { s.cmdStaged() },
		"commit":  func(ctx context.Context, _ []string) { s.cmdCommit(ctx) },
		"discard": func(context.Context, []string) { s.cmdDiscard() },
		"help":    func(context.Context, []string) { s.cmdHelp() },
		"?":       func(context.Context, []string) { s.cmdHelp() },
	}
	return s
}

// Run starts the interactive shell loop. It returns at EOF or quit.
func (s *Shell) Run(ctx context.Context) error {
	fmt.Fprintf(s.out, "Connected to %s.\n", bold(s.sess.Device()))
	fmt.Fprintln(s.out, "Type 'help' for available commands.")

	for {
		fmt.Fprint(s.out, s.prompt())

		line, err := s.reader.ReadString('\n')
		if err != nil {
			return s.handleQuit(true)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		args := strings.Fields(line)
		switch args[0] {
		case "quit", "q":
			if err := s.handleQuit(false); err == nil {
				return nil
			}
		default:
			if fn, ok := s.commands[args[0]]; ok {
				fn(ctx, args[1:])
			} else {
				fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", args[0])
			}
		}
		if s.sess.State() == session.Disconnected {
			fmt.Fprintln(s.out, red("Session lost."))
			return fmt.Errorf("session to %s lost", s.sess.Device())
		}
	}
}

// prompt returns the current prompt string.
func (s *Shell) prompt() string {
	if n := len(s.staged.Changes); n > 0 {
		return fmt.Sprintf("%s[%d staged]> ", s.sess.Device(), n)
	}
	return fmt.Sprintf("%s> ", s.sess.Device())
}

func (s *Shell) cmdShow(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: show <vlans|interfaces|path>")
		return
	}
	path := resolvePath(args[0])
	lr, err := s.coord.Registry.ListReader(path)
	if err == nil {
		err = checkPermission(auth.PermShow, s.sess.Device(), path)
	}
	if err == nil {
		err = runShow(ctx, s.out, s.sess, lr)
	}
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
}

func (s *Shell) cmdExec(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "Usage: exec <command>")
		return
	}
	err := checkPermission(auth.PermExec, s.sess.Device(), "")
	if err == nil {
		err = runExec(ctx, s.out, s.sess, []string{strings.Join(args, " ")})
	}
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
}

// cmdStage adds one change: stage <add|modify|delete> <path> <key> [field=value ...]
func (s *Shell) cmdStage(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(s.out, "Usage: stage <add|modify|delete> <path> <key> [field=value ...]")
		return
	}
	typ := txn.ChangeType(args[0])
	path := resolvePath(args[1])

	var after map[string]string
	if typ != txn.ChangeDelete {
		after = map[string]string{}
		for _, kv := range args[3:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				fmt.Fprintf(s.out, "Error: %q is not field=value\n", kv)
				return
			}
			after[k] = v
		}
	}

	keys, err := stageKeys(path, args[2])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	batch := txn.NewChangeSet(s.sess.Device(), "shell")
	for _, key := range keys {
		batch.Add(path, key, typ, nil, after)
	}
	err = txn.Check(s.coord.Registry, batch)
	if err == nil {
		err = checkPermission(auth.WritePermission(path), s.sess.Device(), path)
	}
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	s.staged.Merge(batch)
	fmt.Fprint(s.out, batch.String())
}

// stageKeys expands a VLAN range ("30-32,40") into one key per VLAN and
// spells out abbreviated interface names ("gi0/0/0/1").
func stageKeys(path, key string) ([]string, error) {
	switch path {
	case handler.VLANPath:
		if !util.IsRange(key) {
			return []string{key}, nil
		}
		ids, err := util.ExpandVLANRange(key)
		if err != nil {
			return nil, err
		}
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = strconv.Itoa(id)
		}
		return keys, nil
	case handler.InterfaceDescriptionPath:
		return []string{util.NormalizeInterfaceName(key)}, nil
	}
	return []string{key}, nil
}

func (s *Shell) cmdStaged() {
	fmt.Fprint(s.out, s.staged.String())
	if s.staged.IsEmpty() {
		fmt.Fprintln(s.out)
	}
}

// cmdCommit runs the staged changes as one transaction. On failure the
// changes stay staged so they can be fixed and retried.
func (s *Shell) cmdCommit(ctx context.Context) {
	if s.staged.IsEmpty() {
		fmt.Fprintln(s.out, "Nothing staged.")
		return
	}
	fmt.Fprintln(s.out, "Changes to be applied:")
	fmt.Fprint(s.out, s.staged.String())
	if !s.confirmExecute() {
		fmt.Fprintln(s.out, "Cancelled.")
		return
	}

	cs := s.staged
	if _, err := runApply(ctx, s.out, s.coord, cs); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		// A fresh ID keeps the retry a separate audited transaction.
		retry := txn.NewChangeSet(cs.Device, cs.Operation)
		retry.Merge(cs)
		s.staged = retry
		return
	}
	s.staged = txn.NewChangeSet(s.sess.Device(), "shell")
}

func (s *Shell) cmdDiscard() {
	n := len(s.staged.Changes)
	s.staged = txn.NewChangeSet(s.sess.Device(), "shell")
	fmt.Fprintf(s.out, "Discarded %d staged changes.\n", n)
}

// handleQuit asks before dropping staged changes. It returns an error when
// the user chose to stay. At EOF nothing can be asked and the shell exits.
func (s *Shell) handleQuit(eof bool) error {
	if !s.staged.IsEmpty() && !eof {
		fmt.Fprintf(s.out, "%d staged changes will be discarded. Quit? [y/N]: ", len(s.staged.Changes))
		if !s.readYes() {
			return fmt.Errorf("quit cancelled")
		}
	}
	fmt.Fprintln(s.out, "Disconnecting...")
	return nil
}

// confirmExecute prompts the user to confirm execution.
func (s *Shell) confirmExecute() bool {
	fmt.Fprint(s.out, "Execute? [y/N]: ")
	return s.readYes()
}

func (s *Shell) readYes() bool {
	confirm, _ := s.reader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))
	return confirm == "y" || confirm == "yes"
}

// cmdHelp displays available commands.
func (s *Shell) cmdHelp() {
	fmt.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  show <vlans|interfaces>                 Read a configuration subtree")
	fmt.Fprintln(s.out, "  exec <command>                          Run a show command")
	fmt.Fprintln(s.out, "  stage <add|modify|delete> <path> <key> [field=value ...]")
	fmt.Fprintln(s.out, "                                          Stage a change")
	fmt.Fprintln(s.out, "  staged                                  List staged changes")
	fmt.Fprintln(s.out, "  commit                                  Apply staged changes as one transaction")
	fmt.Fprintln(s.out, "  discard                                 Drop staged changes")
	fmt.Fprintln(s.out, "  quit                                    Disconnect from device")
	fmt.Fprintln(s.out, "  help                                    Show this help")
}

// shellCmd is the cobra command for the interactive shell.
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive shell with persistent device connection",
	Long: `Start an interactive shell with a persistent session to a device.

The shell provides a REPL with:
  - One session, logged in on entry and closed on quit
  - Show and exec commands on the open session
  - Staged changes, committed together as one transaction
  - Confirmation before anything is sent

Examples:
  newtcli -d pe1 shell`,
	Aliases: []string{"sh"},
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
		sess, err := app.openSession(ctx, name)
		if err != nil {
			return err
		}
		defer sess.Close()

		coord := &txn.Coordinator{
			Session:  sess,
			Registry: handler.Default(),
			Locker:   locker,
			LockTTL:  app.settings.LockTTL,
			User:     currentUser(),
		}
		return NewShell(sess, coord, os.Stdin, cmd.OutOrStdout()).Run(ctx)
	},
}
