package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cuelang.org/go/cue"
	"github.com/sniffpart/sniffpart/pkg/config"
	"github.com/sniffpart/sniffpart/pkg/upload"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadFromFile_ServerConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sniffpart.yaml", `
listen: ":9000"
limits:
  max_request_size: 100MB
  max_part_size: unlimited
  size_threshold: 8k
allow:
  - "image/*"
  - "application/pdf"
storage:
  spool_dir: /var/tmp/sniffpart
  s3:
    - bucket: primary
      region: eu-west-1
      priority: 200
    - bucket: backup
      endpoint: "https://minio.internal:9000"
      path_style: true
`)

	cfg, err := config.LoadFromFile[config.ServerConfig](path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config invalid: %v", err)
	}

	if cfg.Listen != ":9000" {
		t.Errorf("unexpected listen: %s", cfg.Listen)
	}
	limits, err := cfg.Limits.Limits()
	if err != nil {
		t.Fatalf("limits: %v", err)
	}
	want := upload.Limits{
		MaxRequestSize: 100 << 20,
		MaxPartSize:    upload.Unlimited,
		SizeThreshold:  8 << 10,
		ReadBufferSize: upload.DefaultLimits().ReadBufferSize,
	}
	if limits != want {
		t.Errorf("limits = %+v, want %+v", limits, want)
	}
	if len(cfg.Allow) != 2 || cfg.Allow[0] != "image/*" {
		t.Errorf("unexpected allow list: %v", cfg.Allow)
	}
	if len(cfg.Storage.S3) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(cfg.Storage.S3))
	}
	if cfg.Storage.S3[0].Priority != 200 || !cfg.Storage.S3[1].PathStyle {
		t.Errorf("unexpected buckets: %+v", cfg.Storage.S3)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.json", `{"listen": ":8081", "limits": {"max_part_size": 1024}}`)

	cfg, err := config.LoadFromFile[config.ServerConfig](path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Listen != ":8081" || cfg.Limits.MaxPartSize != 1024 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadFromFile_NonexistentFile(t *testing.T) {
	_, err := config.LoadFromFile[config.ServerConfig]("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ServerConfig
		wantErr string
	}{
		{"empty", config.ServerConfig{}, ""},
		{"cert without key", config.ServerConfig{TLS: config.TLSConfig{CertFile: "c.pem"}}, "tls"},
		{"bucket missing", config.ServerConfig{Storage: config.StorageConfig{S3: []config.S3Bucket{{}}}}, "bucket is required"},
		{"negative threshold", config.ServerConfig{Limits: config.LimitsConfig{SizeThreshold: config.Unlimited}}, "size threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadValue_DirectPathLookup(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
verbose: 2
serve:
  listen: ":8080"
  limits:
    max_part_size: 10MB
`)

	val, err := config.LoadValue(path)
	if err != nil {
		t.Fatalf("failed to load value: %v", err)
	}

	// Path lookups are how the CLI resolves flags from config.
	verbose, err := val.LookupPath(cue.ParsePath("verbose")).Int64()
	if err != nil || verbose != 2 {
		t.Errorf("verbose = %d, %v", verbose, err)
	}
	listen, err := val.LookupPath(cue.ParsePath("serve.listen")).String()
	if err != nil || listen != ":8080" {
		t.Errorf("serve.listen = %q, %v", listen, err)
	}
	if val.LookupPath(cue.ParsePath("serve.missing")).Exists() {
		t.Error("expected serve.missing not to exist")
	}
}

func TestLoadValueFromReader(t *testing.T) {
	val, err := config.LoadValueFromReader(strings.NewReader("limits:\n  size_threshold: 2k\n"))
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	cfg, err := config.Decode[config.ServerConfig](val)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if cfg.Limits.SizeThreshold != 2048 {
		t.Errorf("size_threshold = %d", cfg.Limits.SizeThreshold)
	}
}

func TestLoadAndUnifyPaths_MultipleFilesCompatible(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.yaml", `
serve:
  listen: ":8080"
`)
	rules := writeFile(t, dir, "rules.cue", `
serve: {
	deny: ["application/x-msdownload"]
}
`)

	val, err := config.LoadAndUnifyPaths([]string{base, rules})
	if err != nil {
		t.Fatalf("LoadAndUnifyPaths failed: %v", err)
	}
	listen, err := val.LookupPath(cue.ParsePath("serve.listen")).String()
	if err != nil || listen != ":8080" {
		t.Errorf("serve.listen = %q, %v", listen, err)
	}
	iter, err := val.LookupPath(cue.ParsePath("serve.deny")).List()
	if err != nil {
		t.Fatalf("serve.deny: %v", err)
	}
	var deny []string
	for iter.Next() {
		s, _ := iter.Value().String()
		deny = append(deny, s)
	}
	if len(deny) != 1 || deny[0] != "application/x-msdownload" {
		t.Errorf("unexpected deny list: %v", deny)
	}
}

func TestLoadAndUnifyPaths_ConflictingValues(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", "serve:\n  listen: \":1\"\n")
	b := writeFile(t, dir, "b.yaml", "serve:\n  listen: \":2\"\n")

	if _, err := config.LoadAndUnifyPaths([]string{a, b}); err == nil {
		t.Fatal("expected error for conflicting values")
	}
}

func TestLoadAndUnifyPaths_GlobAndMissing(t *testing.T) {
	dir := t.TempDir()
	confDir := filepath.Join(dir, "conf.d")
	if err := os.MkdirAll(confDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, confDir, "a.yaml", "settings:\n  a: true\n")
	writeFile(t, confDir, "b.json", `{"settings": {"b": true}}`)

	val, err := config.LoadAndUnifyPaths([]string{
		filepath.Join(dir, "does-not-exist.yaml"),
		filepath.Join(confDir, "*"),
	})
	if err != nil {
		t.Fatalf("LoadAndUnifyPaths failed: %v", err)
	}
	for _, p := range []string{"settings.a", "settings.b"} {
		b, err := val.LookupPath(cue.ParsePath(p)).Bool()
		if err != nil || !b {
			t.Errorf("%s = %v, %v", p, b, err)
		}
	}
}

func TestLoadAndUnifyPaths_EmptyResult(t *testing.T) {
	val, err := config.LoadAndUnifyPaths([]string{filepath.Join(t.TempDir(), "nothing.yaml")})
	if err != nil {
		t.Fatalf("LoadAndUnifyPaths failed: %v", err)
	}
	if !val.Exists() {
		t.Error("expected an empty struct value")
	}
}
