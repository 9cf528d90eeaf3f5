package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cuelang.org/go/cue/cuecontext"
	"github.com/alecthomas/kong"
	"gotest.tools/assert"
)

func TestConfigPaths(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  string
		want []string
	}{
		{"default", []string{"serve"}, "", []string{"~/.sniffpart/*.yaml", "~/.sniffpart/*.cue"}},
		{"flag", []string{"--config", "a.yaml;b.cue", "serve"}, "", []string{"a.yaml", "b.cue"}},
		{"equals", []string{"--config=a.yaml", "serve"}, "", []string{"a.yaml"}},
		{"short", []string{"-c", "x.json", "parse"}, "env.yaml", []string{"x.json"}},
		{"env", []string{"serve"}, "env.yaml", []string{"env.yaml"}},
		{"after terminator", []string{"parse", "--", "--config"}, "", []string{"~/.sniffpart/*.yaml", "~/.sniffpart/*.cue"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.DeepEqual(t, tt.want, configPaths(tt.args, tt.env))
		})
	}
}

type resolverCLI struct {
	LogFile string `name:"log-file"`
	Serve   struct {
		Listen  string        `default:"0.0.0.0:8080"`
		Timeout time.Duration `default:"5m"`
	} `cmd:""`
	Parse struct {
		Allow []string
	} `cmd:""`
}

func parseWithConfig(t *testing.T, src string, args ...string) *resolverCLI {
	t.Helper()
	unified := cuecontext.New().CompileString(src)
	assert.NilError(t, unified.Err())

	var cli resolverCLI
	parser, err := kong.New(&cli, kong.Resolvers(cueResolver(unified)))
	assert.NilError(t, err)
	_, err = parser.Parse(args)
	assert.NilError(t, err)
	return &cli
}

func TestCueResolver_FillsFlags(t *testing.T) {
	cli := parseWithConfig(t, `
log_file: "/var/log/sniffpart.log"
serve: {
	listen:  "127.0.0.1:9000"
	timeout: "30s"
	storage: dir: "/srv/uploads"
}
`, "serve")

	assert.Equal(t, "/var/log/sniffpart.log", cli.LogFile)
	assert.Equal(t, "127.0.0.1:9000", cli.Serve.Listen)
	assert.Equal(t, 30*time.Second, cli.Serve.Timeout)
}

func TestCueResolver_FlagWins(t *testing.T) {
	cli := parseWithConfig(t, `serve: listen: "127.0.0.1:9000"`, "serve", "--listen", "127.0.0.1:7000")
	assert.Equal(t, "127.0.0.1:7000", cli.Serve.Listen)
}

func TestCueResolver_Lists(t *testing.T) {
	cli := parseWithConfig(t, `parse: allow: ["image/*", "text/plain"]`, "parse")
	assert.DeepEqual(t, []string{"image/*", "text/plain"}, cli.Parse.Allow)
}

func TestCueResolver_DefaultsWithoutConfig(t *testing.T) {
	cli := parseWithConfig(t, `{}`, "serve")
	assert.Equal(t, "0.0.0.0:8080", cli.Serve.Listen)
	assert.Equal(t, 5*time.Minute, cli.Serve.Timeout)
}

func TestSetupLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sniffpart.log")
	logger, closeLog, err := setupLogger(1, path)
	assert.NilError(t, err)

	logger.Debug("hidden")
	logger.Info("shown", "k", "v")
	closeLog()

	data, err := os.ReadFile(path)
	assert.NilError(t, err)
	assert.Assert(t, !strings.Contains(string(data), "hidden"))
	assert.Assert(t, strings.Contains(string(data), "shown"))
}
