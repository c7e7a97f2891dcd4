package daemon

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8080)
	}
	if cfg.Storage.Driver != DriverSQLite {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, DriverSQLite)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Report.DefaultFormat != "json" {
		t.Errorf("Report.DefaultFormat = %q, want %q", cfg.Report.DefaultFormat, "json")
	}
	if !cfg.API.Metrics {
		t.Error("API.Metrics should be true by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)
	t.Setenv(AdminTokenEnv, "")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Storage.DataDir != home {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, home)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFile)
	content := `
[api]
port = 9090
admin_token = "from-file"
rate_limit_rpm = 0

[storage]
driver = "memory"
data_dir = "/var/lib/fundbridge"

[log]
level = "debug"
format = "json"

[report]
default_format = "csv"
default_limit = 5
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(AdminTokenEnv, "from-env")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("unset keys keep defaults: API.Host = %q", cfg.API.Host)
	}
	if cfg.API.AdminToken != "from-env" {
		t.Errorf("API.AdminToken = %q, want env override", cfg.API.AdminToken)
	}
	if cfg.Storage.Driver != DriverMemory || cfg.Storage.DataDir != "/var/lib/fundbridge" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Report.DefaultFormat != "csv" || cfg.Report.DefaultLimit != 5 {
		t.Errorf("Report = %+v", cfg.Report)
	}
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "[api]\nprot = 1\n", "unknown keys"},
		{"bad driver", "[storage]\ndriver = \"postgres\"\n", "storage.driver"},
		{"bad level", "[log]\nlevel = \"loud\"\n", "log.level"},
		{"bad format", "[report]\ndefault_format = \"xlsx\"\n", "report.default_format"},
		{"syntax", "[api\n", "load config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ConfigFile)
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadConfig(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadConfig error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestWriteTOML_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.Port = 7000

	var buf bytes.Buffer
	if err := cfg.WriteTOML(&buf); err != nil {
		t.Fatalf("WriteTOML: %v", err)
	}
	path := filepath.Join(t.TempDir(), ConfigFile)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.API.Port != 7000 {
		t.Errorf("API.Port = %d, want 7000", got.API.Port)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("json output = %q", out)
	}
}

func TestApp_ServeAndShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Driver = DriverMemory
	app, err := Open(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { app.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

func TestOpen_SQLite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	app, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer app.Close()

	if _, err := os.Stat(filepath.Join(cfg.Storage.DataDir, "fundbridge.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}
