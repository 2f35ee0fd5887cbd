package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/skyblocks/flightdeck/internal/config"
	"github.com/skyblocks/flightdeck/internal/dispatcher"
	"github.com/skyblocks/flightdeck/internal/handlers"
	"github.com/skyblocks/flightdeck/internal/server"
	"github.com/skyblocks/flightdeck/internal/worker"
)

const usageText = `Usage: flightdeck <command> [flags] [workspace]

Commands:
  compile    validate a workspace and print its instruction sequence
  generate   render the flight script for a workspace
  simulate   fly a workspace through the simulator and print the summary
  send       generate the flight script and post it to the flight backend
  serve      run the HTTP API
  version    print the version

The workspace is read from the named file, or from stdin when it is "-" or
missing. Run "flightdeck <command> --help" for the flags of a command.
`

// exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// command is one subcommand. flags registers its own flags on top of the
// shared ones.
type command struct {
	flags func(fs *pflag.FlagSet)
	opts  func(fs *pflag.FlagSet) appOptions
	run   func(c *cli, ctx context.Context, a *app, fs *pflag.FlagSet) error
}

var commands = map[string]command{
	"compile": {
		run: (*cli).compile,
	},
	"generate": {
		flags: func(fs *pflag.FlagSet) {
			fs.StringP("output", "o", "", "write the script to this file instead of stdout")
			fs.Bool("json", false, "print the script with its final pose as JSON")
			fs.String("uri", "", "connection URI baked into the script")
		},
		run: (*cli).generate,
	},
	"simulate": {
		flags: func(fs *pflag.FlagSet) {
			fs.Bool("fast", false, "advance frames without waiting for the wall clock")
			fs.Float64("grid-size", 0, "side of the square flight area in metres")
		},
		opts: func(fs *pflag.FlagSet) appOptions {
			fast, _ := fs.GetBool("fast")
			return appOptions{fast: fast}
		},
		run: (*cli).simulate,
	},
	"send": {
		flags: func(fs *pflag.FlagSet) {
			fs.String("server-url", "", "base URL of the flight backend")
			fs.String("uri", "", "connection URI baked into the script")
		},
		run: (*cli).send,
	},
	"serve": {
		flags: func(fs *pflag.FlagSet) {
			fs.String("listen", "", "address of the HTTP API")
			fs.Bool("fast", false, "advance frames without waiting for the wall clock")
			fs.String("server-url", "", "base URL of the flight backend")
		},
		opts: func(fs *pflag.FlagSet) appOptions {
			fast, _ := fs.GetBool("fast")
			return appOptions{fast: fast, serve: true}
		},
		run: (*cli).serve,
	},
}

// flagKeys binds command-line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":  "logLevel",
	"logs-dir":   "logsDir",
	"storage":    "storage.type",
	"output-dir": "storage.memory.outputDir",
	"uri":        "connection.uri",
	"grid-size":  "sim.gridSize",
	"listen":     "server.listen",
	"server-url": "api.serverUrl",
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	if len(args) == 0 {
		fmt.Fprint(stderr, usageText)
		return exitUsage
	}

	name, rest := args[0], args[1:]
	switch name {
	case "version", "--version":
		fmt.Fprintf(stdout, "%s %s (built %s)\n", AppName, CurrentVersion, BuildDate)
		return exitOK
	case "help", "--help", "-h":
		fmt.Fprint(stdout, usageText)
		return exitOK
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", name, usageText)
		return exitUsage
	}

	fs := newFlagSet(name, stderr)
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 1 {
		fmt.Fprintf(stderr, "%s takes at most one workspace\n", name)
		return exitUsage
	}

	if err := loadConfig(fs); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}

	var opts appOptions
	if cmd.opts != nil {
		opts = cmd.opts(fs)
	}
	a, err := newApp(ctx, opts)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	defer a.Close()

	if err := cmd.run(c, ctx, a, fs); err != nil {
		a.logger.Debug("Command failed", "command", name, "error", err)
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	return exitOK
}

func newFlagSet(name string, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: flightdeck %s [flags] [workspace]\n\nFlags:\n", name)
		fs.PrintDefaults()
	}
	fs.String("config", "", "directory containing "+config.FileName)
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("logs-dir", "", "directory for log files")
	fs.String("storage", "", "run storage (memory, sqlite, postgres, websocket)")
	fs.String("output-dir", "", "directory for exported runs of the memory storage")
	fs.String("name", "", "program name, overrides the one in the workspace")
	fs.String("format", "", "workspace format (json, yaml); detected when empty")
	return fs
}

// loadConfig reads the config file and lets set flags override it. A missing
// config file is not an error.
func loadConfig(fs *pflag.FlagSet) error {
	var dirs []string
	if dir, _ := fs.GetString("config"); dir != "" {
		dirs = append(dirs, dir)
	} else {
		dirs = append(dirs, ".")
		if exe, err := os.Executable(); err == nil {
			dirs = append(dirs, filepath.Dir(exe))
		}
	}
	if err := config.Load(dirs...); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	for flag, key := range flagKeys {
		if f := fs.Lookup(flag); f != nil && f.Changed {
			if err := viper.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", flag, err)
			}
		}
	}
	return nil
}

// event builds the dispatcher event for the workspace named on the command
// line.
func (c *cli) event(command string, fs *pflag.FlagSet) (dispatcher.Event, error) {
	path := "-"
	if fs.NArg() == 1 {
		path = fs.Arg(0)
	}

	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(io.LimitReader(c.stdin, server.MaxBodyBytes+1))
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return dispatcher.Event{}, fmt.Errorf("failed to read workspace: %w", err)
	}
	if len(raw) > server.MaxBodyBytes {
		return dispatcher.Event{}, fmt.Errorf("workspace is larger than %d bytes", server.MaxBodyBytes)
	}

	name, _ := fs.GetString("name")
	format, _ := fs.GetString("format")
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			format = string(handlers.FormatYAML)
		case ".json":
			format = string(handlers.FormatJSON)
		}
	}
	return dispatcher.Event{
		Command: command,
		Payload: raw,
		Params: map[string]string{
			worker.ParamName:   name,
			worker.ParamFormat: format,
		},
		Timestamp: time.Now(),
	}, nil
}

func (c *cli) dispatch(ctx context.Context, a *app, command string, fs *pflag.FlagSet) (any, error) {
	e, err := c.event(command, fs)
	if err != nil {
		return nil, err
	}
	return a.dispatcher.Dispatch(ctx, e)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) compile(ctx context.Context, a *app, fs *pflag.FlagSet) error {
	res, err := c.dispatch(ctx, a, dispatcher.CmdCompile, fs)
	if err != nil {
		return err
	}
	if out, ok := res.(handlers.CompileResult); ok {
		for _, w := range out.Warnings {
			fmt.Fprintf(c.stderr, "warning: %s %s %s\n", w.Code, w.Path, w.Message)
		}
	}
	return c.printJSON(res)
}

func (c *cli) generate(ctx context.Context, a *app, fs *pflag.FlagSet) error {
	res, err := c.dispatch(ctx, a, dispatcher.CmdGenerate, fs)
	if err != nil {
		return err
	}
	gen, ok := res.(handlers.GenerateResult)
	if !ok {
		return fmt.Errorf("unexpected generate result %T", res)
	}
	if asJSON, _ := fs.GetBool("json"); asJSON {
		return c.printJSON(gen)
	}
	if path, _ := fs.GetString("output"); path != "" {
		if err := os.WriteFile(path, []byte(gen.Code), 0644); err != nil {
			return fmt.Errorf("failed to write script: %w", err)
		}
		fmt.Fprintf(c.stderr, "wrote %s (%d instructions, %.2f s)\n", path, gen.InstructionCount, gen.TotalDuration)
		return nil
	}
	_, err = io.WriteString(c.stdout, gen.Code)
	return err
}

func (c *cli) simulate(ctx context.Context, a *app, fs *pflag.FlagSet) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := c.dispatch(ctx, a, dispatcher.CmdSimulate, fs)
	if err != nil {
		return err
	}
	if path := a.exportedFile(); path != "" {
		fmt.Fprintf(c.stderr, "run exported to %s\n", path)
	}
	return c.printJSON(res)
}

func (c *cli) send(ctx context.Context, a *app, fs *pflag.FlagSet) error {
	res, err := c.dispatch(ctx, a, dispatcher.CmdSend, fs)
	if err != nil {
		return err
	}
	if out, ok := res.(handlers.SendResult); ok {
		fmt.Fprintln(c.stdout, out.Response)
		return nil
	}
	return c.printJSON(res)
}

func (c *cli) serve(ctx context.Context, a *app, _ *pflag.FlagSet) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.checkFlightBackend(ctx)
	srv := server.New(viper.GetString("server.listen"), a.dispatcher, a.logger).WithBaseContext(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return <-errCh
}
