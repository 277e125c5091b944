package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeSharedFolder(t *testing.T, settings string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, settingsDir), 0o755); err != nil {
		t.Fatalf("failed to create settings dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, settingsDir, settingsFile), []byte(settings), 0o644); err != nil {
		t.Fatalf("failed to write settings: %v", err)
	}
	return root
}

func TestLoadPointerFileTrimsWhitespace(t *testing.T) {
	root := t.TempDir()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, pointerFile), []byte("  "+root+"\n"), 0o644); err != nil {
		t.Fatalf("failed to write pointer file: %v", err)
	}

	got, err := LoadPointerFile(dir)
	if err != nil {
		t.Fatalf("LoadPointerFile failed: %v", err)
	}
	if got != root {
		t.Errorf("expected %s, got %s", root, got)
	}
}

func TestLoadPointerFileMissing(t *testing.T) {
	if _, err := LoadPointerFile(t.TempDir()); err == nil {
		t.Error("expected error for missing pointer file")
	}
}

func TestLoadPointerFileBadTarget(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, pointerFile), []byte("/no/such/dir"), 0o644); err != nil {
		t.Fatalf("failed to write pointer file: %v", err)
	}
	if _, err := LoadPointerFile(dir); err == nil {
		t.Error("expected error for inaccessible root")
	}
}

func TestLoadSettings(t *testing.T) {
	root := writeSharedFolder(t, strings.Join([]string{
		"mongodb server: dbhost:27017",
		"user group: acoustics",
		"password: hunter2",
		"instance: production",
		"unknown key: ignored",
	}, "\n"))

	s, err := LoadSettings(root)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if s.MongoServer != "dbhost:27017" {
		t.Errorf("unexpected mongodb server: %q", s.MongoServer)
	}
	if s.UserGroup != "acoustics" {
		t.Errorf("unexpected user group: %q", s.UserGroup)
	}
	if s.Password != "hunter2" {
		t.Errorf("unexpected password: %q", s.Password)
	}
	if s.Instance != "production" {
		t.Errorf("unexpected instance: %q", s.Instance)
	}
}

func TestLoadSettingsMissingKeys(t *testing.T) {
	root := writeSharedFolder(t, "mongodb server: dbhost:27017\n")
	_, err := LoadSettings(root)
	if err == nil {
		t.Fatal("expected error for missing keys")
	}
	if !strings.Contains(err.Error(), "user group") || !strings.Contains(err.Error(), "instance") {
		t.Errorf("error should name the missing keys, got: %v", err)
	}
}

func TestValidateTimingBounds(t *testing.T) {
	tests := []struct {
		name    string
		h, g    time.Duration
		wantErr bool
	}{
		{name: "recommended defaults", h: 15 * time.Second, g: 120 * time.Second, wantErr: false},
		{name: "heartbeat at half the grace", h: 60 * time.Second, g: 120 * time.Second, wantErr: true},
		{name: "heartbeat above half the grace", h: 90 * time.Second, g: 120 * time.Second, wantErr: true},
		{name: "heartbeat just under half", h: 59 * time.Second, g: 120 * time.Second, wantErr: false},
		{name: "zero heartbeat", h: 0, g: 120 * time.Second, wantErr: true},
		{name: "zero grace", h: 15 * time.Second, g: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				HeartbeatInterval: tt.h,
				ReclaimGrace:      tt.g,
				PollInterval:      DefaultPollInterval,
				Capacity:          1,
			}
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestValidateCapacity(t *testing.T) {
	cfg := &Config{
		HeartbeatInterval: DefaultHeartbeatInterval,
		ReclaimGrace:      DefaultReclaimGrace,
		PollInterval:      DefaultPollInterval,
		Capacity:          0,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for zero capacity")
	}
}
