package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nimbusai/nimbus/internal/defaults"
)

// runInit initializes a Nimbus working directory. It creates the
// directory structure and writes the starter config. Existing files are
// never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Nimbus workspace in %s\n", dir)

	for _, sub := range []string{"assets"} {
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, defaults.ConfigYAML); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintln(w, "  1. Download the QWeather China-City-List CSV into assets/")
	fmt.Fprintln(w, "  2. Set QWEATHER_API_KEY (or edit weather.api_key)")
	fmt.Fprintln(w, "  3. nimbus serve")
	return nil
}

// writeIfMissing writes content to path unless the file already exists.
func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
