package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"draftdrop/internal/config"
	"draftdrop/internal/daemon"
	"draftdrop/internal/logging"
	"draftdrop/internal/queue"
	"draftdrop/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	daemon     *daemon.Daemon
	analyzer   *testsupport.FakeAnalyzer
	catalog    *testsupport.FakeCatalog
	configPath string
}

// setupCLITestEnv starts an in-process daemon on a random port and writes a
// config file pointing the CLI at it.
func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	opts = append([]testsupport.ConfigOption{testsupport.WithAutoProcess(false)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	env := &cliTestEnv{
		cfg:      cfg,
		store:    store,
		analyzer: &testsupport.FakeAnalyzer{Result: testsupport.SunsetAnalysis()},
		catalog:  &testsupport.FakeCatalog{ImageID: "img_123", ListingID: "prod_456"},
	}
	d, err := daemon.New(context.Background(), cfg, store, logging.NewNop(),
		daemon.WithCollaborators(env.analyzer, env.catalog))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
			t.Errorf("daemon did not stop")
		}
	})
	deadline := time.Now().Add(3 * time.Second)
	for d.APIAddress() == "" {
		select {
		case err := <-errCh:
			t.Fatalf("daemon run: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("daemon did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}
	env.daemon = d
	env.configPath = writeCLIConfig(t, cfg, d.APIAddress())
	return env
}

func writeCLIConfig(t *testing.T, cfg *config.Config, bind string) string {
	t.Helper()
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	body := fmt.Sprintf(`[paths]
watch_dir = %q
archive_dir = %q
state_dir = %q
log_dir = %q
api_bind = %q
api_token = %q
`, cfg.Paths.WatchDir, cfg.Paths.ArchiveDir, cfg.Paths.StateDir, cfg.Paths.LogDir, bind, cfg.Paths.APIToken)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}
