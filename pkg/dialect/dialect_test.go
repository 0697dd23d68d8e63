package dialect

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/newtron-network/newtcli/pkg/prompt"
)

func TestBuiltins_Registered(t *testing.T) {
	names := Names()
	for _, want := range []string{"arista-eos", "cisco-iosxr"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Errorf("built-in dialect %q not registered (have %v)", want, names)
		}
	}
}

func TestLookup_ReturnsCopy(t *testing.T) {
	d, err := Lookup("cisco-iosxr")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	d.Commit = "mutated"
	d.PagingOff[0] = "mutated"

	again, _ := Lookup("cisco-iosxr")
	if again.Commit != "commit" {
		t.Errorf("registry entry mutated: Commit = %q", again.Commit)
	}
	if again.PagingOff[0] != "terminal length 0" {
		t.Errorf("registry entry mutated: PagingOff = %v", again.PagingOff)
	}
}

func TestLookup_Unknown(t *testing.T) {
	if _, err := Lookup("no-such-os"); err == nil {
		t.Error("expected error for unknown dialect")
	}
}

func TestRegister_Duplicate(t *testing.T) {
	d, _ := Lookup("arista-eos")
	if err := Register(d); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestDialect_Resolver(t *testing.T) {
	d, _ := Lookup("cisco-iosxr")
	r, err := d.Resolver()
	if err != nil {
		t.Fatalf("Resolver: %v", err)
	}
	if got := r.Classify("RP/0/RSP0/CPU0:pe1(config)#"); got != prompt.Config {
		t.Errorf("Classify = %v, want config", got)
	}
}

func TestDialect_CommitClassifier(t *testing.T) {
	d, _ := Lookup("cisco-iosxr")
	c, err := d.CommitClassifier()
	if err != nil {
		t.Fatalf("CommitClassifier: %v", err)
	}
	if _, ok := c.Match("% Failed to commit one or more configuration items"); !ok {
		t.Error("commit classifier should match failure marker")
	}

	plain, _ := d.Classifier()
	if _, ok := plain.Match("% Failed to commit"); ok {
		t.Error("plain classifier should not match commit marker")
	}
}

func TestDialect_Defaults(t *testing.T) {
	d := &Dialect{}
	if d.LineTerminator() != "\n" {
		t.Errorf("LineTerminator() = %q", d.LineTerminator())
	}
	if d.ReadTimeout() != DefaultReadTimeout {
		t.Errorf("ReadTimeout() = %v", d.ReadTimeout())
	}
	if d.CommandTimeout() != DefaultCommandTimeout {
		t.Errorf("CommandTimeout() = %v", d.CommandTimeout())
	}
	if d.CommitTimeout() != DefaultCommitTimeout {
		t.Errorf("CommitTimeout() = %v", d.CommitTimeout())
	}
}

func TestDialect_Validate(t *testing.T) {
	d := &Dialect{Name: "broken", Prompts: prompt.Patterns{Privileged: "(["}}
	err := d.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"prompts.config", "commit is required", "abort is required", "prompts.privileged"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q: %v", want, err)
		}
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dialects.yaml")
	content := `
dialects:
  - name: lab-router
    prompts:
      privileged: '^\S+#\s*$'
      config: '^\S+\(config[^)]*\)#\s*$'
      password: '(?i)^.*password:\s*$'
    terminator: "\r\n"
    config_enter: configure
    config_exit: end
    commit: commit
    abort: abort
    diagnose: show commit errors
    error_patterns:
      - name: invalid
        expr: '^%\s*Invalid'
    timeouts:
      read: 5s
      commit: 2m
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	dialects, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(dialects) != 1 {
		t.Fatalf("expected 1 dialect, got %d", len(dialects))
	}
	d := dialects[0]
	if d.LineTerminator() != "\r\n" {
		t.Errorf("LineTerminator() = %q", d.LineTerminator())
	}
	if d.ReadTimeout() != 5*time.Second {
		t.Errorf("ReadTimeout() = %v", d.ReadTimeout())
	}
	if d.CommitTimeout() != 2*time.Minute {
		t.Errorf("CommitTimeout() = %v", d.CommitTimeout())
	}
	if d.CommandTimeout() != DefaultCommandTimeout {
		t.Errorf("CommandTimeout() = %v", d.CommandTimeout())
	}

	if err := RegisterFile(path); err != nil {
		t.Fatalf("RegisterFile: %v", err)
	}
	if _, err := Lookup("lab-router"); err != nil {
		t.Errorf("Lookup after RegisterFile: %v", err)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	os.WriteFile(path, []byte("dialects:\n  - name: x\n"), 0644)

	if _, err := LoadFile(path); err == nil {
		t.Error("expected validation error")
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}
