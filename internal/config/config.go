// Package config loads GridCompute's configuration surface: the pointer file
// naming the shared folder, the settings file on the shared folder, and the
// timing parameters governing heartbeat and reclamation.
package config

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/gridcompute/gridcompute/internal/core/griderrors"
)

const (
	pointerFile  = "server.txt"
	settingsFile = "settings.txt"
	settingsDir  = "Settings"
)

// Recommended defaults for the heartbeat interval and reclamation grace.
const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultReclaimGrace      = 120 * time.Second
	DefaultPollInterval      = 5 * time.Second
	DefaultCapacity          = 1
)

// Settings holds the contents of the shared folder's settings.txt.
type Settings struct {
	MongoServer string
	UserGroup   string
	Password    string
	Instance    string
}

// Config is the fully resolved process configuration.
type Config struct {
	ServerRoot string
	Settings   Settings

	Machine string
	User    string

	HeartbeatInterval time.Duration
	ReclaimGrace      time.Duration
	PollInterval      time.Duration
	Capacity          int
}

// SettingsDir returns the shared folder's Settings directory.
func (c *Config) SettingsDir() string {
	return filepath.Join(c.ServerRoot, settingsDir)
}

// Load resolves the full configuration starting from the pointer file in dir
// (typically the executable's directory). Timing fields are set to the
// recommended defaults; callers override them from flags before Validate.
func Load(dir string) (*Config, error) {
	root, err := LoadPointerFile(dir)
	if err != nil {
		return nil, err
	}
	settings, err := LoadSettings(root)
	if err != nil {
		return nil, err
	}

	machine, err := os.Hostname()
	if err != nil {
		return nil, griderrors.New(griderrors.ConfigInvalid, fmt.Errorf("failed to determine hostname: %w", err))
	}

	return &Config{
		ServerRoot:        root,
		Settings:          *settings,
		Machine:           machine,
		User:              currentUser(),
		HeartbeatInterval: DefaultHeartbeatInterval,
		ReclaimGrace:      DefaultReclaimGrace,
		PollInterval:      DefaultPollInterval,
		Capacity:          DefaultCapacity,
	}, nil
}

// LoadPointerFile reads the shared-folder root path from server.txt in dir.
// Whitespace is trimmed; the named path must be an accessible directory.
func LoadPointerFile(dir string) (string, error) {
	path := filepath.Join(dir, pointerFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", griderrors.New(griderrors.ConfigInvalid,
			fmt.Errorf("pointer file %s not found: %w", path, err))
	}
	root := strings.TrimSpace(string(data))
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return "", griderrors.New(griderrors.ConfigInvalid,
			fmt.Errorf("pointer file %s does not name an accessible directory: %q", path, root))
	}
	return root, nil
}

// LoadSettings parses Settings/settings.txt under the shared folder root.
// Format is line-oriented "key: value"; unknown keys are ignored.
func LoadSettings(root string) (*Settings, error) {
	path := filepath.Join(root, settingsDir, settingsFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, griderrors.New(griderrors.ConfigInvalid,
			fmt.Errorf("settings file %s not found: %w", path, err))
	}
	defer f.Close()

	s := &Settings{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "mongodb server":
			s.MongoServer = value
		case "user group":
			s.UserGroup = value
		case "password":
			s.Password = value
		case "instance":
			s.Instance = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, griderrors.New(griderrors.ConfigInvalid,
			fmt.Errorf("failed to read %s: %w", path, err))
	}

	var missing []string
	if s.MongoServer == "" {
		missing = append(missing, "mongodb server")
	}
	if s.UserGroup == "" {
		missing = append(missing, "user group")
	}
	if s.Instance == "" {
		missing = append(missing, "instance")
	}
	if len(missing) > 0 {
		return nil, griderrors.New(griderrors.ConfigInvalid,
			fmt.Errorf("settings file %s is missing keys: %s", path, strings.Join(missing, ", ")))
	}
	return s, nil
}

// Validate checks the timing parameters. The heartbeat interval must be well
// under the reclamation grace or a healthy processor could be reclaimed
// between its own heartbeats.
func (c *Config) Validate() error {
	if c.HeartbeatInterval <= 0 || c.ReclaimGrace <= 0 {
		return griderrors.New(griderrors.ConfigInvalid,
			fmt.Errorf("heartbeat interval and reclaim grace must be positive"))
	}
	if c.HeartbeatInterval >= c.ReclaimGrace/2 {
		return griderrors.New(griderrors.ConfigInvalid,
			fmt.Errorf("heartbeat interval %s must be less than half the reclaim grace %s",
				c.HeartbeatInterval, c.ReclaimGrace))
	}
	if c.PollInterval <= 0 {
		return griderrors.New(griderrors.ConfigInvalid,
			fmt.Errorf("poll interval must be positive"))
	}
	if c.Capacity < 1 {
		return griderrors.New(griderrors.ConfigInvalid,
			fmt.Errorf("capacity must be at least 1"))
	}
	return nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
