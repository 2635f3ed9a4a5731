package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hopper/cli/config"
)

// resolveVia runs resolveConfig through a real cli.App so flag parsing
// behaves exactly as in production.
func resolveVia(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()

	var got *config.Config
	var resolveErr error
	app := &cli.App{
		Commands: []*cli.Command{{
			Name:  "run",
			Flags: RunCommand().Flags,
			Action: func(c *cli.Context) error {
				got, resolveErr = resolveConfig(c)
				return nil
			},
		}},
	}

	if err := app.Run(append([]string{"hopper", "run"}, args...)); err != nil {
		t.Fatalf("app.Run() error: %v", err)
	}
	return got, resolveErr
}

func TestResolveConfig_Defaults(t *testing.T) {
	cfg, err := resolveVia(t)
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if cfg.Store.Bucket != "hopper-data" {
		t.Errorf("Bucket = %q, want the default", cfg.Store.Bucket)
	}
}

func TestResolveConfig_FlagsOverrideDefaults(t *testing.T) {
	cfg, err := resolveVia(t,
		"--bucket", "flag-bucket",
		"--max-concurrent", "7",
		"--filter-min", "21",
		"--input", "custom/in",
	)
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}

	if cfg.Store.Bucket != "flag-bucket" {
		t.Errorf("Bucket = %q, want flag-bucket", cfg.Store.Bucket)
	}
	if cfg.Pipeline.MaxConcurrentFiles != 7 {
		t.Errorf("MaxConcurrentFiles = %d, want 7", cfg.Pipeline.MaxConcurrentFiles)
	}
	if cfg.Filter.Min != 21 {
		t.Errorf("Filter.Min = %v, want 21", cfg.Filter.Min)
	}
	if cfg.Folders.Input != "custom/in" {
		t.Errorf("Folders.Input = %q, want custom/in", cfg.Folders.Input)
	}
}

func TestResolveConfig_FlagsBeatEnvironment(t *testing.T) {
	t.Setenv("HOPPER_BUCKET", "env-bucket")

	cfg, err := resolveVia(t, "--bucket", "flag-bucket")
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if cfg.Store.Bucket != "flag-bucket" {
		t.Errorf("Bucket = %q, flags should beat environment", cfg.Store.Bucket)
	}
}

func TestResolveConfig_EnvironmentBeatsFile(t *testing.T) {
	t.Setenv("HOPPER_BUCKET", "env-bucket")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("store:\n  bucket: file-bucket\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := resolveVia(t, "--config", path)
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if cfg.Store.Bucket != "env-bucket" {
		t.Errorf("Bucket = %q, environment should beat the file", cfg.Store.Bucket)
	}
}

func TestResolveConfig_InvalidRejected(t *testing.T) {
	if _, err := resolveVia(t, "--max-concurrent", "0"); err == nil {
		t.Error("resolveConfig() = nil for zero concurrency, want error")
	}
}

func TestCommands_Registered(t *testing.T) {
	for _, c := range []*cli.Command{RunCommand(), GenerateCommand(), VersionCommand("abc")} {
		if c.Name == "" {
			t.Error("command with empty name")
		}
		if c.Action == nil {
			t.Errorf("command %q has no action", c.Name)
		}
	}
}
