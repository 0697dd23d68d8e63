// Package settings manages persistent user settings for the newtcli CLI.
//
// Settings come from ~/.newtcli/settings.yaml, overridden by NEWTCLI_*
// environment variables (NEWTCLI_AUDIT_LOG, NEWTCLI_REDIS_ADDR, ...).
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/viper"
)

const (
	configDir  = ".newtcli"
	configFile = "settings.yaml"
	envPrefix  = "NEWTCLI"
)

// Setting keys.
const (
	KeyInventory    = "inventory"
	KeyDialects     = "dialects"
	KeyAuditLog     = "audit_log"
	KeyAuditBackend = "audit_backend"
	KeyRedisAddr    = "redis_addr"
	KeyLockTTL      = "lock_ttl"
)

// Audit backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Settings holds persistent user preferences
type Settings struct {
	// Inventory is the device inventory file used when --inventory is not given
	Inventory string

	// Dialects is an optional YAML file of extra device dialects
	Dialects string

	// AuditLog is the audit trail location; AuditBackend selects its format
	AuditLog     string
	AuditBackend string

	// RedisAddr enables the shared device lock when set
	RedisAddr string
	LockTTL   time.Duration
}

// DefaultDir returns ~/.newtcli, or the working directory when the home
// directory cannot be resolved.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, configDir)
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	return filepath.Join(DefaultDir(), configFile)
}

// Keys returns the setting names accepted by Set.
func Keys() []string {
	keys := []string{KeyInventory, KeyDialects, KeyAuditLog, KeyAuditBackend, KeyRedisAddr, KeyLockTTL}
	sort.Strings(keys)
	return keys
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from path. A missing file yields the defaults.
func LoadFrom(path string) (*Settings, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Settings, error) {
	dir := DefaultDir()
	v.SetDefault(KeyInventory, filepath.Join(dir, "inventory.yaml"))
	v.SetDefault(KeyDialects, "")
	v.SetDefault(KeyAuditLog, filepath.Join(dir, "audit.log"))
	v.SetDefault(KeyAuditBackend, BackendFile)
	v.SetDefault(KeyRedisAddr, "")
	v.SetDefault(KeyLockTTL, "5m")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := readFile(v, path); err != nil {
		return nil, err
	}

	s := &Settings{
		Inventory:    v.GetString(KeyInventory),
		Dialects:     v.GetString(KeyDialects),
		AuditLog:     v.GetString(KeyAuditLog),
		AuditBackend: v.GetString(KeyAuditBackend),
		RedisAddr:    v.GetString(KeyRedisAddr),
		LockTTL:      v.GetDuration(KeyLockTTL),
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

func readFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var configNotFound viper.ConfigFileNotFoundError
	if errors.As(err, &configNotFound) || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("read settings file: %w", err)
}

// Validate checks the values that have a closed set of choices.
func (s *Settings) Validate() error {
	switch s.AuditBackend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", KeyAuditBackend, BackendFile, BackendSQLite, s.AuditBackend)
	}
	if s.LockTTL <= 0 {
		return fmt.Errorf("%s must be a positive duration", KeyLockTTL)
	}
	return nil
}

// Set stores one setting in the file at path, leaving the other keys as
// they are. Environment overrides and defaults are not written.
func Set(path, key, value string) error {
	if !validKey(key) {
		return fmt.Errorf("unknown setting %q (valid: %v)", key, Keys())
	}
	switch key {
	case KeyAuditBackend:
		if value != BackendFile && value != BackendSQLite {
			return fmt.Errorf("%s must be %q or %q", key, BackendFile, BackendSQLite)
		}
	case KeyLockTTL:
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("%s must be a positive duration: %q", key, value)
		}
	}

	v := viper.New()
	if err := readFile(v, path); err != nil {
		return err
	}
	v.Set(key, value)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}

// Values returns the effective settings as key/value pairs in key order.
func (s *Settings) Values() [][2]string {
	m := map[string]string{
		KeyInventory:    s.Inventory,
		KeyDialects:     s.Dialects,
		KeyAuditLog:     s.AuditLog,
		KeyAuditBackend: s.AuditBackend,
		KeyRedisAddr:    s.RedisAddr,
		KeyLockTTL:      s.LockTTL.String(),
	}
	out := make([][2]string, 0, len(m))
	for _, k := range Keys() {
		out = append(out, [2]string{k, m[k]})
	}
	return out
}

func validKey(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}
