// Command lua51 is a standalone interpreter for the Lua 5.1 runtime:
// it loads chunks from files, command-line statements, and an
// interactive prompt, mirroring the reference lua(1) surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
	"zombiezen.com/go/log"

	"lua51.dev/vm/lua"
	"lua51.dev/vm/lua/stdlib"
)

const versionBanner = "Lua 5.1 (lua51.dev/vm)"

type runOptions struct {
	statements  []string
	libraries   []string
	interactive bool
	showVersion bool

	config *config
}

func main() {
	rootCommand := &cobra.Command{
		Use:                   "lua51 [options] [script [args]]",
		Short:                 "Lua 5.1 interpreter",
		DisableFlagsInUseLine: true,
		Args:                  cobra.ArbitraryArgs,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	opts := new(runOptions)
	addRunFlags(rootCommand.Flags(), opts)
	showDebug := rootCommand.PersistentFlags().Bool("debug", false, "show debugging output")
	rootCommand.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogging(*showDebug)
		return nil
	}
	rootCommand.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		opts.config = cfg
		return run(cmd.Context(), opts, args)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), interruptSignals...)
	err := rootCommand.ExecuteContext(ctx)
	cancel()
	if err != nil {
		initLogging(*showDebug)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}
}

func addRunFlags(flags *pflag.FlagSet, opts *runOptions) {
	flags.StringArrayVarP(&opts.statements, "execute", "e", nil, "execute string `stmt`")
	flags.StringArrayVarP(&opts.libraries, "library", "l", nil, "load library `mod` before running the script")
	flags.BoolVarP(&opts.interactive, "interactive", "i", false, "enter interactive mode after executing the script")
	flags.BoolVarP(&opts.showVersion, "version", "v", false, "show version information")
}

func run(ctx context.Context, opts *runOptions, args []string) error {
	if opts.showVersion {
		fmt.Println(versionBanner)
		if len(args) == 0 && len(opts.statements) == 0 && !opts.interactive {
			return nil
		}
	}

	state := lua.NewState()
	openLibraries(state, opts.config)
	log.Debugf(ctx, "created state %s", state.ID)

	var script string
	var scriptArgs []string
	if len(args) > 0 {
		script, scriptArgs = args[0], args[1:]
	}
	setArgTable(state, script, scriptArgs)

	// LUA_INIT runs before everything else: "@path" names a file to
	// execute, anything else is a statement.
	if init := os.Getenv("LUA_INIT"); init != "" {
		var err error
		if strings.HasPrefix(init, "@") {
			_, err = state.DoFile(init[1:])
		} else {
			_, err = state.DoString(init, "=LUA_INIT")
		}
		if err != nil {
			return err
		}
	}

	for _, mod := range opts.libraries {
		if err := loadLibrary(ctx, state, opts.config, mod); err != nil {
			return err
		}
	}

	for _, stmt := range opts.statements {
		if _, err := state.DoString(stmt, "=(command line)"); err != nil {
			return err
		}
	}

	stdinIsTTY := term.IsTerminal(int(os.Stdin.Fd()))

	if script != "" {
		log.Debugf(ctx, "running script %s", script)
		if _, err := state.DoFile(script); err != nil {
			return err
		}
	} else if !opts.interactive && len(opts.statements) == 0 && !opts.showVersion {
		if stdinIsTTY {
			opts.interactive = true
		} else {
			// Piped input runs as one chunk, like `lua < file`.
			if _, err := state.DoReader(os.Stdin, "=stdin"); err != nil {
				return err
			}
		}
	}

	if opts.interactive {
		if stdinIsTTY {
			fmt.Println(versionBanner)
		}
		return repl(ctx, state)
	}
	return nil
}

// setArgTable installs the standard arg table: the script name at
// index 0 and its arguments from 1.
func setArgTable(state *lua.State, script string, scriptArgs []string) {
	argTable := state.NewTableValue(len(scriptArgs), 1)
	if script != "" {
		argTable.Set(lua.Number(0), lua.String(script))
	}
	for i, a := range scriptArgs {
		argTable.Set(lua.Number(float64(i+1)), lua.String(a))
	}
	state.SetGlobal("arg", argTable)
}

func openLibraries(state *lua.State, cfg *config) {
	if len(cfg.OpenLibraries) == 0 {
		stdlib.OpenAll(state, nil)
		return
	}
	stdlib.Open(state, nil, cfg.OpenLibraries...)
}

// loadLibrary services -l by searching the configured module path for
// mod.lua (or a precompiled mod.luac) and running it.
func loadLibrary(ctx context.Context, state *lua.State, cfg *config, mod string) error {
	for _, dir := range cfg.ModulePath {
		for _, ext := range []string{".lua", ".luac"} {
			path := dir + string(os.PathSeparator) + mod + ext
			if _, err := os.Stat(path); err != nil {
				continue
			}
			log.Debugf(ctx, "loading module %s from %s", mod, path)
			_, err := state.DoFile(path)
			return err
		}
	}
	return fmt.Errorf("module '%s' not found in %s", mod, strings.Join(cfg.ModulePath, ";"))
}

var initLogOnce sync.Once

func initLogging(showDebug bool) {
	initLogOnce.Do(func() {
		minLogLevel := log.Info
		if showDebug {
			minLogLevel = log.Debug
		}
		log.SetDefault(&log.LevelFilter{
			Min:    minLogLevel,
			Output: log.New(os.Stderr, "lua51: ", log.StdFlags, nil),
		})
	})
}
