// Package initcmder provides the init command for initializing a local
// .branchweave directory in the current working directory.
package initcmder

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/branchweave/branchweave/pkg/cliui"
	"github.com/branchweave/branchweave/pkg/config"
)

const dirName = ".branchweave"

const initLongDesc string = `Initialize a new .branchweave/ directory in the current working directory.

Creates a local .branchweave/ directory that takes precedence over the
default ~/.branchweave/ directory for configuration and other branchweave
operations.

Use --preset to seed config.toml for a known store backend (memory,
sqlite, postgres) or from a remote URL serving a config.toml.

Examples:
  branchweave init
  branchweave init --preset sqlite
  branchweave init --preset https://example.com/branchweave/config.toml`

const initShortDesc string = "Initialize a local .branchweave/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInit(preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Seed config.toml from a named preset (memory, sqlite, postgres) or a remote URL")

	return cmd
}

func runInit(preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	alreadyInitialized := err == nil && info.IsDir()

	if !alreadyInitialized {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .branchweave directory: %w", err)
		}
	}

	cfg, err := resolvePresetConfig(preset)
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("resolving config target: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	if alreadyInitialized {
		fmt.Printf("Already initialized: %s\n", dir)
		return nil
	}

	fmt.Printf("Initialized .branchweave directory: %s\n", dir)
	return nil
}

// resolvePresetConfig returns the config to seed config.toml with: the
// default config when preset is empty, a named backend preset, or a
// config fetched and parsed from a remote URL.
func resolvePresetConfig(preset string) (*config.Config, error) {
	if preset == "" {
		return config.NewDefaultConfig(), nil
	}

	if strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://") {
		return fetchRemoteConfig(preset)
	}

	return config.PresetConfig(preset)
}

// fetchRemoteConfig downloads and parses a config.toml from url, printing a
// spinner while the request is in flight since a remote preset fetch can
// take noticeably longer than the local preset paths.
func fetchRemoteConfig(url string) (*config.Config, error) {
	var cfg *config.Config

	err := cliui.Step(os.Stdout, fmt.Sprintf("fetching config from %s", url), func() error {
		client := &http.Client{Timeout: 10 * time.Second}

		resp, err := client.Get(url)
		if err != nil {
			return fmt.Errorf("fetching remote config: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading remote config: %w", err)
		}

		parsed, err := config.ParseConfigTOML(data)
		if err != nil {
			return err
		}
		cfg = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cfg, nil
}
