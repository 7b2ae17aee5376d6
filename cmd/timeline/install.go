package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rendis/timeline/internal/config"
)

const mermaidASCIIVersion = "1.1.0"

// SHA-256 checksums of the mermaid-ascii v1.1.0 release assets.
const mermaidASCIIChecksums = `
068d2ff869d4921655cab471500fffd8c3ed28155b100518ed3cf3835d53d3d0  mermaid-ascii_Darwin_arm64.tar.gz
0cd4c9c01a03284fe866f39a1ce1aaee1e6a2fbd91deedc4ec254cb87622eec8  mermaid-ascii_Darwin_x86_64.tar.gz
3b7d0a95141bfbca838e445ea802ffb7fba8873b3c4af498482c84f83526f2db  mermaid-ascii_Linux_arm64.tar.gz
838ea93d561b3bc83aa15531c6ed7d2d261a8edc521d5484f7e91fe831cc4c65  mermaid-ascii_Linux_x86_64.tar.gz
`

func newInstallCmd(g *globalFlags) *cobra.Command {
	var (
		force     bool
		skipTools bool
		cfg       = config.Default()
	)
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Write a settings file and download optional tools",
		Long: `Install writes ~/.timeline/settings.yaml from the given flags, including
the global --db and --log-level, and downloads
mermaid-ascii, which "timeline render --format ascii" uses when present. A
running "timeline serve" picks up the new settings file on its own.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if g.dbPath != "" {
				cfg.DBPath = g.dbPath
			}
			if g.logLevel != "" {
				cfg.LogLevel = g.logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			path := g.configPath
			if path == "" {
				path = filepath.Join(config.Dir(), "settings.yaml")
			}
			if err := writeSettings(path, cfg, force); err != nil {
				return err
			}
			cmd.Printf("Config written to %s\n", path)

			if skipTools {
				return nil
			}
			binDir := filepath.Join(config.Dir(), "bin")
			dest, err := installMermaidASCII(cmd.Context(), &http.Client{Timeout: 60 * time.Second}, binDir)
			if err != nil {
				// Non-fatal: ASCII diagrams fall back to the built-in renderer.
				cmd.PrintErrf("Warning: mermaid-ascii not installed: %v\n", err)
				return nil
			}
			cmd.Printf("mermaid-ascii installed to %s\n", dest)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "TCP listen address")
	f.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "database driver: sqlite or libsql")
	f.StringVar(&cfg.NATSURL, "nats-url", "", "publish events to this NATS server")
	f.BoolVar(&cfg.MetricsEnabled, "metrics", cfg.MetricsEnabled, "serve Prometheus metrics on /metrics")
	f.BoolVar(&cfg.SchedulerEnabled, "scheduler", cfg.SchedulerEnabled, "run cron schedules while serving")
	f.BoolVar(&force, "force", false, "overwrite an existing settings file")
	f.BoolVar(&skipTools, "skip-tools", false, "do not download mermaid-ascii")
	return cmd
}

// writeSettings writes cfg as YAML. An existing file is kept unless force.
func writeSettings(path string, cfg config.Config, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// installMermaidASCII downloads, verifies and unpacks the mermaid-ascii
// binary into binDir. It returns the binary path.
func installMermaidASCII(ctx context.Context, client httpDoer, binDir string) (string, error) {
	destPath := filepath.Join(binDir, "mermaid-ascii")
	if _, err := os.Stat(destPath); err == nil {
		return destPath, nil
	}

	assetName, err := mermaidASCIIAssetName(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}
	sums, err := parseChecksumFile(strings.NewReader(mermaidASCIIChecksums))
	if err != nil {
		return "", err
	}
	expected, ok := sums[assetName]
	if !ok {
		return "", fmt.Errorf("no known checksum for %s", assetName)
	}

	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return "", err
	}
	url := fmt.Sprintf("https://github.com/AlexanderGrooff/mermaid-ascii/releases/download/%s/%s",
		mermaidASCIIVersion, assetName)
	tmpPath, err := downloadToTempFile(ctx, client, url, binDir)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmpPath)

	actual, err := sha256File(tmpPath)
	if err != nil {
		return "", err
	}
	if actual != expected {
		return "", fmt.Errorf("checksum mismatch for %s (expected %s, got %s)", assetName, expected, actual)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := extractTarGz(f, binDir, "mermaid-ascii"); err != nil {
		_ = os.Remove(destPath)
		return "", err
	}
	return destPath, os.Chmod(destPath, 0o755)
}

// mermaidASCIIAssetName returns the release asset name for a platform.
func mermaidASCIIAssetName(goos, goarch string) (string, error) {
	var osName string
	switch goos {
	case "darwin":
		osName = "Darwin"
	case "linux":
		osName = "Linux"
	default:
		return "", fmt.Errorf("mermaid-ascii: unsupported OS %q", goos)
	}

	var archName string
	switch goarch {
	case "amd64":
		archName = "x86_64"
	case "arm64":
		archName = "arm64"
	default:
		return "", fmt.Errorf("mermaid-ascii: unsupported architecture %q", goarch)
	}
	return fmt.Sprintf("mermaid-ascii_%s_%s.tar.gz", osName, archName), nil
}

// extractTarGz extracts the regular file named targetName from a tar.gz
// stream into destDir.
func extractTarGz(r io.Reader, destDir, targetName string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("file %q not found in archive", targetName)
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}
		if filepath.Base(hdr.Name) != targetName || hdr.Typeflag != tar.TypeReg {
			continue
		}

		destPath := filepath.Join(destDir, targetName)
		f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return fmt.Errorf("create %s: %w", destPath, err)
		}
		if _, err := io.Copy(f, tr); err != nil { //nolint:gosec // bounded by tar header size
			f.Close()
			return fmt.Errorf("write %s: %w", destPath, err)
		}
		return f.Close()
	}
}
