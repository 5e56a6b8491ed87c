package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/1broseidon/lockin/internal/config"
	"github.com/1broseidon/lockin/internal/daemon"
	"github.com/1broseidon/lockin/internal/platform"
	"gopkg.in/yaml.v3"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "daemon":
		if len(os.Args) > 2 && isHelpArg(os.Args[2]) {
			fmt.Fprintln(os.Stdout, "Usage: lockin daemon")
			os.Exit(0)
		}
		if len(os.Args) > 2 {
			fmt.Fprintln(os.Stderr, "daemon takes no arguments")
			fmt.Fprintln(os.Stderr, "")
			fmt.Fprintln(os.Stderr, "Usage: lockin daemon")
			os.Exit(2)
		}
		runDaemon()
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "launch":
		os.Exit(runLaunch(os.Args[2:]))
	case "focus":
		os.Exit(runFocus(os.Args[2:]))
	case "minimize-all":
		os.Exit(runMinimizeAll(os.Args[2:]))
	case "close-all":
		os.Exit(runCloseAll(os.Args[2:]))
	case "close", "minimize", "restore":
		os.Exit(runAppCommand(os.Args[1], os.Args[2:]))
	case "complete":
		os.Exit(runComplete(os.Args[2:]))
	case "preset":
		os.Exit(runPreset(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: lockin <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon              Start the lockin daemon (foreground)")
	fmt.Fprintln(w, "  status              Show the task desktop and managed applications")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  launch              Launch an application onto the task desktop")
	fmt.Fprintln(w, "  focus               Focus an application or window")
	fmt.Fprintln(w, "  minimize-all        Minimize every window on the task desktop")
	fmt.Fprintln(w, "  close-all           Close every window on the task desktop")
	fmt.Fprintln(w, "  close               Close one application")
	fmt.Fprintln(w, "  minimize            Minimize one application")
	fmt.Fprintln(w, "  restore             Restore one application")
	fmt.Fprintln(w, "  complete            Close everything and remove the task desktop")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  preset list         List configured presets")
	fmt.Fprintln(w, "  preset load         Launch a preset")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config path         Print the default config file path")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'lockin <command> --help' for command-specific options.")
}

func isHelpArg(s string) bool {
	return s == "help" || s == "-h" || s == "--help"
}

func runDaemon() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "presets", len(cfg.Presets), "desktop", cfg.Desktop.Enabled)

	backend, err := platform.NewBackend()
	if err != nil {
		log.Fatalf("Failed to connect to display: %v", err)
	}
	defer backend.Disconnect()

	d, err := daemon.New(cfg, backend, daemon.Options{Logger: logger})
	if err != nil {
		log.Fatalf("Failed to create daemon: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	defer signal.Stop(hupCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hupCh:
				logger.Info("received SIGHUP, reloading presets")
				next, err := config.Load()
				if err != nil {
					logger.Error("config reload failed", "error", err)
					continue
				}
				d.UpdatePresets(next)
				logger.Info("presets reloaded", "presets", len(next.Presets))
			}
		}
	}()

	if err := d.Run(ctx); err != nil {
		log.Fatalf("Daemon error: %v", err)
	}
}

func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadConfigResult(path string) (*config.LoadResult, error) {
	if path == "" {
		return config.LoadWithSources()
	}
	return config.LoadFromPath(path)
}

func runConfig(args []string) int {
	if len(args) == 0 || isHelpArg(args[0]) {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  lockin config validate [--path PATH]")
		fmt.Fprintln(os.Stderr, "  lockin config print [--path PATH] [--defaults] [--sources]")
		fmt.Fprintln(os.Stderr, "  lockin config path")
		return 2
	}

	switch args[0] {
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/lockin/config.yaml)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		res, err := loadConfigResult(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("config: ok (%d presets, %d files)\n", len(res.Config.Presets), len(res.Files))
		return 0

	case "print":
		fs := flag.NewFlagSet("print", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/lockin/config.yaml)")
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		printSources := fs.Bool("sources", false, "Print where each value came from")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		var cfg *config.Config
		var res *config.LoadResult
		if *printDefaults {
			cfg = config.DefaultConfig()
		} else {
			var err error
			res, err = loadConfigResult(*path)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
			cfg = res.Config
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Print(string(data))

		if *printSources && res != nil {
			keys := make([]string, 0, len(res.Sources))
			for k := range res.Sources {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Println("# sources:")
			for _, k := range keys {
				fmt.Printf("#   %s: %s\n", k, formatSource(res.Sources[k]))
			}
		}
		return 0

	case "path":
		p, err := config.DefaultConfigPath()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println(p)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func formatSource(src config.Source) string {
	switch src.Kind {
	case config.SourceFile:
		if src.File == "" {
			return "file"
		}
		if src.Line > 0 {
			return fmt.Sprintf("file:%s:%d:%d", src.File, src.Line, src.Column)
		}
		return "file:" + src.File
	case config.SourceEnv:
		return "env:" + src.Name
	case config.SourceDefault:
		if src.Name != "" {
			return "default:" + src.Name
		}
		return "default"
	default:
		return string(src.Kind)
	}
}
