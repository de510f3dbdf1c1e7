package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkmapper/internal/app"
	"github.com/JakeFAU/linkmapper/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "linkmapper.yaml")
	body := "downloads:\n  dir: " + filepath.Join(dir, "Downloads") + "\n  executor: log\n" +
		"unsupported:\n  backend: memory\n" +
		"run:\n  poll_interval_ms: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRoutesCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "routes")
	require.NoError(t, err)
	assert.Contains(t, out, "jpg.church")
	assert.Contains(t, out, "29 families")
	assert.NotContains(t, out, "29 FAMILIES")

	out, err = execute(t, "routes", "--crawler", "reddit")
	require.NoError(t, err)
	assert.Contains(t, out, "redd.it")
	assert.NotContains(t, out, "bunkr")
}

//nolint:paralleltest // swaps the package-level app factory
func TestRunCommandPrintsSummary(t *testing.T) {
	orig := newApp
	newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
		return app.New(ctx, cfg, app.WithLogger(zap.NewNop()))
	}
	t.Cleanup(func() { newApp = orig })

	dir := t.TempDir()
	input := filepath.Join(dir, "links.txt")
	require.NoError(t, os.WriteFile(input, []byte("https://unknown.test/page\nhttps://example.com/clip.mp4\n"), 0o600))

	out, err := execute(t, "--config", writeConfig(t, dir), "run", "--input", input, "https://unknown.test/arg")
	require.NoError(t, err)
	assert.Contains(t, out, "DRAINED")
	assert.Contains(t, out, "3 links loaded")
	assert.Contains(t, out, "Unsupported")
	assert.Contains(t, out, "no_crawler")
}

//nolint:paralleltest // swaps the package-level app factory
func TestRunCommandQuiet(t *testing.T) {
	orig := newApp
	newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
		return app.New(ctx, cfg, app.WithLogger(zap.NewNop()))
	}
	t.Cleanup(func() { newApp = orig })

	dir := t.TempDir()
	out, err := execute(t, "--config", writeConfig(t, dir), "run", "-q", "--input", filepath.Join(dir, "missing.txt"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRunCommandRejectsBadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("unsupported:\n  backend: redis\n"), 0o600))

	_, err := execute(t, "--config", path, "routes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported.backend")
}
