package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/systemstart/stepwise/pkg/api"
	"github.com/systemstart/stepwise/pkg/build"
	"github.com/systemstart/stepwise/pkg/logging"
	"github.com/systemstart/stepwise/pkg/project"
	"github.com/systemstart/stepwise/pkg/report"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	File            string
	OutputDirectory string
	ContextFile     string
	EnvFile         string
	SearchDepth     int
	Workers         int
	LoggingType     string
	LogLevel        string
	Verbose         bool
}

// NewRootCommand creates the stepwise command. Without a subcommand the
// arguments are read as a directive, so `stepwise rebuild app` and
// `stepwise` (build everything) both work.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "stepwise [build|rebuild|clean|plan] [step...]",
		Short: "Incremental build orchestrator",
		Long: `Runs the steps of a stepwise.yaml build file in dependency order and
skips every step whose inputs did not change since its last success.`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(logging.Types, opts.LoggingType) {
				return withExitCode(exitUsage, fmt.Errorf("invalid logging type %q: must be one of %v", opts.LoggingType, logging.Types))
			}
			if err := logging.Initialize(cmd.ErrOrStderr(), opts.LoggingType, opts.LogLevel); err != nil {
				return withExitCode(exitUsage, err)
			}
			return includeEnv(opts.EnvFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := build.ParseDirective(args)
			if err != nil {
				return withExitCode(exitUsage, err)
			}
			return runDirective(cmd, opts, d)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.File, "file", "f", "", "build file (default: stepwise.yaml in the working directory or a parent)")
	flags.StringVarP(&opts.OutputDirectory, "output-directory", "o", "", "output directory, overriding the build file's output")
	flags.StringVar(&opts.ContextFile, "context-file", "", "global context YAML file")
	flags.StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before building, if present")
	flags.IntVar(&opts.SearchDepth, "search-depth", -1, "parent directories searched for the build file (-1 = unlimited)")
	flags.IntVarP(&opts.Workers, "workers", "j", runtime.NumCPU(), "steps run in parallel")
	flags.StringVar(&opts.LoggingType, "logging-type", logging.Tint, "logging type: json, text or tint")
	flags.StringVar(&opts.LogLevel, "log-level", "info", "logging level: debug, info, warn, error")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "list every planned step in the summary")

	for _, verb := range build.Verbs {
		cmd.AddCommand(newDirectiveCommand(opts, verb))
	}

	return cmd
}

var verbHelp = map[build.Verb]string{
	build.VerbBuild:   "Build stale steps and their dependents",
	build.VerbRebuild: "Rebuild the selected steps and their dependencies regardless of fingerprints",
	build.VerbClean:   "Forget recorded fingerprints of the selected steps, then build",
	build.VerbPlan:    "Show which steps would run without running them",
}

func newDirectiveCommand(opts *RootOptions, verb build.Verb) *cobra.Command {
	return &cobra.Command{
		Use:           string(verb) + " [step...]",
		Short:         verbHelp[verb],
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := build.ParseDirective(append([]string{string(verb)}, args...))
			if err != nil {
				return withExitCode(exitUsage, err)
			}
			return runDirective(cmd, opts, d)
		},
	}
}

// outputOverride resolves the --output-directory flag against the working
// directory. Build files with targets name their own outputs.
func outputOverride(bf *api.BuildFile, dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	if len(bf.Targets) > 0 {
		return "", fmt.Errorf("--output-directory cannot be used with %s, which declares targets", bf.FilePath)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving output directory: %w", err)
	}
	return abs, nil
}

func runDirective(cmd *cobra.Command, opts *RootOptions, d build.Directive) error {
	bf, err := loadBuildFile(opts)
	if err != nil {
		return withExitCode(exitConfiguration, err)
	}

	globalContext, err := loadGlobalContext(opts.ContextFile)
	if err != nil {
		return withExitCode(exitConfiguration, err)
	}

	output, err := outputOverride(bf, opts.OutputDirectory)
	if err != nil {
		return withExitCode(exitUsage, err)
	}

	targets, err := project.NewTargets(bf, globalContext, output)
	if err != nil {
		return withExitCode(exitConfiguration, err)
	}

	reporter := report.Multi{
		report.NewLogReporter(slog.Default()),
		&report.Summary{W: cmd.OutOrStdout(), Verbose: opts.Verbose},
	}

	_, err = project.Build(cmd.Context(), targets, d, project.Options{
		Workers:  opts.Workers,
		Reporter: reporter,
		Logger:   slog.Default(),
	})
	switch {
	case err == nil:
		slog.Debug("done")
		return nil
	case errors.Is(err, build.ErrInterrupted) || cmd.Context().Err() != nil:
		return withExitCode(exitInterrupted, err)
	default:
		return withExitCode(exitBuildFailed, err)
	}
}

func loadBuildFile(opts *RootOptions) (*api.BuildFile, error) {
	file := opts.File
	if file == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		if file, err = project.FindBuildFile(wd, opts.SearchDepth); err != nil {
			return nil, err
		}
	}

	slog.Debug("loading build file", "filename", file)
	return api.LoadBuildFile(file)
}

func loadGlobalContext(contextFile string) (map[string]any, error) {
	if contextFile == "" {
		return nil, nil
	}
	return project.LoadContextFile(contextFile)
}

func includeEnv(envFile string) error {
	if envFile == "" {
		return nil
	}
	err := godotenv.Load(envFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return withExitCode(exitDotenvError, fmt.Errorf("loading %s: %w", envFile, err))
		}
		slog.Debug("no dotenv file found", "filename", envFile)
		return nil
	}
	slog.Info("using dotenv file", "filename", envFile)
	return nil
}
