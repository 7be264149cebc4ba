// Command aiq runs, evaluates, and serves config-driven agent workflows.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/aiqtoolkit/aiq"
	"github.com/aiqtoolkit/aiq/config"
	"github.com/aiqtoolkit/aiq/eval"
	"github.com/aiqtoolkit/aiq/server"
	"github.com/aiqtoolkit/aiq/stores"

	// Registered component providers.
	_ "github.com/aiqtoolkit/aiq/embedders"
	_ "github.com/aiqtoolkit/aiq/functions"
	_ "github.com/aiqtoolkit/aiq/llms/gemini"
	_ "github.com/aiqtoolkit/aiq/llms/nim"
	_ "github.com/aiqtoolkit/aiq/llms/ollama"
	_ "github.com/aiqtoolkit/aiq/retrievers"
)

const version = "1.1.0"

const usage = `Usage: aiq <command> [flags]

Commands:
  run      Run a workflow once and print its output
  eval     Evaluate a workflow against a dataset
  serve    Serve a workflow over HTTP
  version  Print the version

Run 'aiq <command> -h' for command flags.
`

// ExitError carries a specific exit code back to main
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError
func (e *ExitError) Error() string {
	return e.Message
}

func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run dispatches to the subcommands. Split from main for testing.
func run(out io.Writer, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return &ExitError{Code: 2, Message: "a command is required"}
	}

	switch args[0] {
	case "run":
		return runWorkflow(out, args[1:])
	case "eval":
		return runEval(out, args[1:])
	case "serve":
		return runServe(out, args[1:])
	case "version":
		fmt.Fprintf(out, "aiq %s\n", version)
		return nil
	case "-h", "--help", "help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return &ExitError{Code: 2, Message: fmt.Sprintf("unknown command: %s", args[0])}
	}
}

func runWorkflow(out io.Writer, args []string) error {
	flagSet := flag.NewFlagSet("aiq run", flag.ContinueOnError)
	configFile := flagSet.String("config_file", "", "path to the workflow config file")
	input := flagSet.String("input", "", "input message for the workflow")
	useKB := flagSet.Bool("use_knowledge_base", false, "retrieve knowledge base context before running")
	if err := flagSet.Parse(args); err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	if *configFile == "" {
		return &ExitError{Code: 2, Message: "--config_file is required"}
	}
	if *input == "" {
		return &ExitError{Code: 2, Message: "--input is required"}
	}

	ctx := context.Background()
	workflow, store, err := buildWorkflow(ctx, *configFile)
	if err != nil {
		return err
	}
	defer workflow.Close()
	if store != nil {
		defer store.Close()
	}

	runID := uuid.New().String()
	if store != nil {
		if err := store.CreateRun(&stores.Run{
			RunID:            runID,
			Channel:          "cli",
			Input:            *input,
			UseKnowledgeBase: *useKB,
			Status:           "running",
			StartedAt:        time.Now(),
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to record run: %v\n", err)
		}
	}

	output, steps, runErr := workflow.Run(ctx, *input, *useKB)
	if store != nil {
		if err := store.SaveSteps(runID, stores.FromSteps(steps)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to save steps: %v\n", err)
		}
		if err := store.CompleteRun(runID, output, runErr); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to complete run: %v\n", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("workflow failed: %w", runErr)
	}

	fmt.Fprintln(out, output)
	return nil
}

func runEval(out io.Writer, args []string) error {
	flagSet := flag.NewFlagSet("aiq eval", flag.ContinueOnError)
	configFile := flagSet.String("config_file", "", "path to the workflow config file")
	dataset := flagSet.String("dataset", "", "override the configured dataset path")
	if err := flagSet.Parse(args); err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	if *configFile == "" {
		return &ExitError{Code: 2, Message: "--config_file is required"}
	}

	ctx := context.Background()
	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	workflow, store, err := buildFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer workflow.Close()
	if store != nil {
		defer store.Close()
	}

	evalCfg := cfg.Eval
	if *dataset != "" {
		evalCfg.Dataset = *dataset
	}

	runner, err := eval.NewRunner(workflow, evalCfg)
	if err != nil {
		return err
	}
	if store != nil {
		runner.SetStore(store)
	}
	report, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("eval failed: %w", err)
	}
	path, err := runner.WriteReport(report)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Evaluated %d entries (%d failed), report: %s\n", report.Total, report.Failed, path)
	for name, avg := range report.Averages {
		fmt.Fprintf(out, "  %s: %.3f\n", name, avg)
	}
	return nil
}

func runServe(out io.Writer, args []string) error {
	flagSet := flag.NewFlagSet("aiq serve", flag.ContinueOnError)
	configFile := flagSet.String("config_file", "", "path to the workflow config file")
	host := flagSet.String("host", "", "override the configured bind host")
	port := flagSet.Int("port", 0, "override the configured bind port")
	if err := flagSet.Parse(args); err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	if *configFile == "" {
		return &ExitError{Code: 2, Message: "--config_file is required"}
	}

	ctx := context.Background()
	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if *host != "" {
		cfg.General.Host = *host
	}
	if *port != 0 {
		cfg.General.Port = *port
	}

	workflow, store, err := buildFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer workflow.Close()
	if store != nil {
		defer store.Close()
	}

	if err := workflow.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workflow: %w", err)
	}

	fmt.Fprintf(out, "Serving workflow on %s\n", cfg.General.Address())
	return server.New(workflow, store, cfg).Run(ctx)
}

func buildWorkflow(ctx context.Context, configFile string) (*aiq.Workflow, stores.RunStore, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	return buildFromConfig(ctx, cfg)
}

func buildFromConfig(ctx context.Context, cfg *config.Config) (*aiq.Workflow, stores.RunStore, error) {
	workflow, err := aiq.NewBuilder(cfg).Build(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build workflow: %w", err)
	}

	var store stores.RunStore
	if cfg.Store.Type != "" {
		store, err = stores.NewStore(stores.NewStoreConfig(cfg.Store.Type, cfg.Store.Connection))
		if err != nil {
			workflow.Close()
			return nil, nil, fmt.Errorf("failed to open store: %w", err)
		}
	}

	return workflow, store, nil
}
