package main

import "testing"

func TestCommandTree(t *testing.T) {
	if rootCmd.Use != "provost" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "provost")
	}

	wanted := map[string]bool{"run": false, "validate": false, "version": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := wanted[cmd.Name()]; ok {
			wanted[cmd.Name()] = true
		}
	}
	for name, found := range wanted {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	if versionCmd.Run == nil {
		t.Error("versionCmd.Run should not be nil")
	}
	if Version == "" {
		t.Error("Version should have a default")
	}
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	// The default config path does not exist in the test directory, so
	// loadConfig should return validated defaults.
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, "sqlite")
	}
	if cfg.Server.ListenAddress == "" {
		t.Error("Server.ListenAddress should have a default")
	}
}
