package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"
	"github.com/sniffpart/sniffpart/pkg/config"
	"github.com/sniffpart/sniffpart/pkg/tlsconfig"
)

var version = "dev"

const defaultConfig = "~/.sniffpart/*.yaml;~/.sniffpart/*.cue"

var cli struct {
	Verbose   int              `short:"v" type:"counter" help:"Increase log verbosity (-v info, -vv debug)"`
	LogFile   string           `help:"Write logs to this file instead of stderr" name:"log-file"`
	Config    []string         `short:"c" help:"Config files or globs, unified in order" sep:";" default:"${default_config}" env:"SNIFFPART_CONFIG"`
	Insecure  bool             `help:"Allow http:// storage endpoints and skip certificate verification"`
	TLSCACert string           `help:"PEM file with CAs trusted for storage endpoints" name:"tls-ca-cert"`
	Version   kong.VersionFlag `help:"Print version and exit"`

	Serve ServeCLI `cmd:"" help:"Run the upload server"`
	Parse ParseCLI `cmd:"" help:"Parse a multipart body from a file or stdin"`
}

func main() {
	unified, err := config.LoadAndUnifyPaths(configPaths(os.Args[1:], os.Getenv("SNIFFPART_CONFIG")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx := kong.Parse(&cli,
		kong.Name("sniffpart"),
		kong.Description("Streaming multipart upload parser with sniffed sink selection"),
		kong.UsageOnError(),
		kong.Vars{"version": version, "default_config": defaultConfig},
		kong.Resolvers(cueResolver(unified)),
	)

	logger, closeLog, err := setupLogger(cli.Verbose, cli.LogFile)
	if err != nil {
		ctx.FatalIfErrorf(err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	tlsCfg := tlsconfig.Config{
		Insecure:   cli.Insecure,
		CACertFile: cli.TLSCACert,
	}
	err = ctx.Run(logger, tlsCfg, unified)
	ctx.FatalIfErrorf(err)
}

// configPaths finds the --config value before kong runs, since the config
// files feed kong's resolver. The environment is used when no flag is
// given, then the defaults.
func configPaths(args []string, env string) []string {
	value := ""
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			value = v
			continue
		}
		if arg == "--config" || arg == "-c" {
			if i+1 < len(args) {
				value = args[i+1]
				i++
			}
		}
	}
	if value == "" {
		value = env
	}
	if value == "" {
		value = defaultConfig
	}
	var paths []string
	for _, p := range strings.Split(value, ";") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// cueResolver fills flags that were not given on the command line from the
// unified config. Global flags live at the top level ("log_file"), command
// flags under the command name ("serve.listen").
func cueResolver(unified cue.Value) kong.Resolver {
	return kong.ResolverFunc(func(kctx *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
		key := strings.ReplaceAll(flag.Name, "-", "_")
		if parent != nil && parent.Command != nil {
			key = strings.ReplaceAll(parent.Command.Name, "-", "_") + "." + key
		}
		v := unified.LookupPath(cue.ParsePath(key))
		if !v.Exists() {
			return nil, nil
		}
		return flagValue(v, flag)
	})
}

func flagValue(v cue.Value, flag *kong.Flag) (any, error) {
	switch v.Kind() {
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, err
		}
		var items []string
		for iter.Next() {
			s, err := scalar(iter.Value())
			if err != nil {
				return nil, err
			}
			items = append(items, s)
		}
		sep := ","
		if flag.Tag.Sep > 0 {
			sep = string(flag.Tag.Sep)
		}
		return strings.Join(items, sep), nil
	case cue.StructKind:
		// Sections such as serve.storage are read by the commands directly.
		return nil, nil
	default:
		return scalar(v)
	}
}

func scalar(v cue.Value) (string, error) {
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.BoolKind:
		b, err := v.Bool()
		return fmt.Sprint(b), err
	case cue.IntKind:
		n, err := v.Int64()
		return fmt.Sprint(n), err
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		return fmt.Sprint(f), err
	default:
		return "", fmt.Errorf("unsupported config value %s", v)
	}
}

// setupLogger builds a tint logger: 0 = warn, 1 = info, 2+ = debug.
func setupLogger(verbosity int, logFile string) (*slog.Logger, func(), error) {
	level := slog.LevelWarn
	switch {
	case verbosity == 1:
		level = slog.LevelInfo
	case verbosity >= 2:
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	closer := func() {}
	noColor := false
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closer = func() { f.Close() }
		noColor = true
	}

	return slog.New(tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
		NoColor:    noColor,
	})), closer, nil
}
