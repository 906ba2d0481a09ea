package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		envVars     map[string]string
		expectError bool
		errorSubstr string
	}{
		{
			name: "defaults",
		},
		{
			name: "valid snapshot interval from flag",
			args: []string{"-snapshot-interval", "5s"},
		},
		{
			name:        "zero snapshot interval from flag",
			args:        []string{"-snapshot-interval", "0s"},
			expectError: true,
			errorSubstr: "snapshot interval must be positive",
		},
		{
			name:        "invalid snapshot interval format from flag",
			args:        []string{"-snapshot-interval", "soon"},
			expectError: true,
			errorSubstr: "invalid snapshot interval",
		},
		{
			name:        "negative snapshot interval from env",
			envVars:     map[string]string{"DATAMAP_SNAPSHOT_INTERVAL": "-5s"},
			expectError: true,
			errorSubstr: "DATAMAP_SNAPSHOT_INTERVAL must be positive",
		},
		{
			name:        "invalid snapshot interval format from env",
			envVars:     map[string]string{"DATAMAP_SNAPSHOT_INTERVAL": "invalid"},
			expectError: true,
			errorSubstr: "invalid DATAMAP_SNAPSHOT_INTERVAL",
		},
		{
			name:        "unknown role",
			args:        []string{"-role", "observer"},
			expectError: true,
			errorSubstr: "unsupported role",
		},
		{
			name:        "follower without redis",
			args:        []string{"-role", "follower"},
			expectError: true,
			errorSubstr: "requires redis-addr",
		},
		{
			name: "follower with redis from env",
			args: []string{"-role", "follower"},
			envVars: map[string]string{
				"DATAMAP_REDIS_ADDR": "127.0.0.1:6379",
			},
		},
		{
			name:        "redis lease without redis",
			args:        []string{"-lease", "redis"},
			expectError: true,
			errorSubstr: "lease=redis requires redis-addr",
		},
		{
			name:        "unknown lease backend",
			args:        []string{"-lease", "etcd"},
			expectError: true,
			errorSubstr: "unsupported lease backend",
		},
		{
			name:        "empty addr",
			args:        []string{"-addr", " "},
			expectError: true,
			errorSubstr: "addr cannot be empty",
		},
		{
			name:        "tls cert without key",
			args:        []string{"-tls-cert", "cert.pem"},
			expectError: true,
			errorSubstr: "must be set together",
		},
		{
			name:        "snapshot keep below one",
			args:        []string{"-snapshot-keep", "0"},
			expectError: true,
			errorSubstr: "snapshot-keep",
		},
		{
			name:        "invalid snapshot keep from env",
			envVars:     map[string]string{"DATAMAP_SNAPSHOT_KEEP": "many"},
			expectError: true,
			errorSubstr: "invalid DATAMAP_SNAPSHOT_KEEP",
		},
		{
			name:        "unknown flag",
			args:        []string{"-policy", "x.json"},
			expectError: true,
			errorSubstr: "flag provided but not defined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			_, err := LoadConfig(tt.args)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error containing %q, got nil", tt.errorSubstr)
				} else if !strings.Contains(err.Error(), tt.errorSubstr) {
					t.Errorf("expected error containing %q, got %q", tt.errorSubstr, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig([]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.SnapshotInterval != time.Minute {
		t.Errorf("expected default snapshot interval of 1m, got %v", cfg.SnapshotInterval)
	}
	if cfg.Addr != defaultAddr || cfg.Role != roleWriter || cfg.LeaseBackend != leaseSQLite {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !filepath.IsAbs(cfg.DBPath) || filepath.Base(cfg.DBPath) != "datamap.db" {
		t.Errorf("expected an absolute default db path, got %q", cfg.DBPath)
	}
	if cfg.ArchiveDir != "" {
		t.Errorf("expected archiving to be disabled by default, got %q", cfg.ArchiveDir)
	}
}

func TestLoadConfig_EnvAndFlags(t *testing.T) {
	t.Setenv("DATAMAP_PORT", "9999")
	t.Setenv("DATAMAP_GRAPH_PATH", "graphs/agent.json")
	t.Setenv("DATAMAP_TOKEN", "from-env")

	cfg, err := LoadConfig([]string{"-token", "from-flag", "-archive-dir", "/var/lib/datamap/archive"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9999" {
		t.Errorf("expected addr from DATAMAP_PORT, got %q", cfg.Addr)
	}
	if !strings.HasSuffix(cfg.GraphPath, filepath.Join("graphs", "agent.json")) || !filepath.IsAbs(cfg.GraphPath) {
		t.Errorf("expected the graph path to be resolved against cwd, got %q", cfg.GraphPath)
	}
	if cfg.Token != "from-flag" {
		t.Errorf("expected flags to override env, got %q", cfg.Token)
	}
	if cfg.ArchiveDir != "/var/lib/datamap/archive" || cfg.ArchiveRetention != defaultArchiveRetention {
		t.Errorf("unexpected archive config: %q %v", cfg.ArchiveDir, cfg.ArchiveRetention)
	}
}
