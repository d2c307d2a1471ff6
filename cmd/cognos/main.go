package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Kubana90/operator-996-cognitive-os/internal/config"
	"github.com/Kubana90/operator-996-cognitive-os/internal/core"
	"github.com/Kubana90/operator-996-cognitive-os/internal/logging"
	"github.com/Kubana90/operator-996-cognitive-os/internal/server"
	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cognos",
	Short: "cognos - behavioral analytics engine",
	Long: `cognos records behavioral events and derives structure from them:
recurring patterns, anomalies and contradictions, scenario predictions, and
ranked semantic search over everything it has seen.

Run "cognos serve" to expose the engine over HTTP and WebSocket.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		// Categorized file logging is gated by .cognos/config.json.
		if cwd, err := os.Getwd(); err == nil {
			if err := logging.Initialize(cwd); err != nil {
				logger.Warn("file logging disabled", zap.Error(err))
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// serveCmd runs the HTTP/WebSocket server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine over HTTP and WebSocket",
	Long: `Starts the API server. Endpoints cover event ingestion, bulk import,
pattern detection, anomaly scanning, scenario simulation, semantic search,
full export, and a live WebSocket feed at /ws/live.`,
	RunE: runServe,
}

// addCmd appends a single event
var addCmd = &cobra.Command{
	Use:   "add [description]",
	Short: "Append a behavioral event",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAdd,
}

// importCmd bulk-imports events from a JSON file
var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Bulk import events from a JSON file",
	Long: `Reads {"events": [...]} from the file and appends every valid item.
Malformed items are reported individually; they never abort the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

// detectCmd runs a pattern detection pass
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect behavioral patterns in the event history",
	RunE:  runDetect,
}

// scanCmd runs an anomaly scan
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the event history for anomalies and contradictions",
	RunE:  runScan,
}

// simulateCmd predicts a decision for a scenario
var simulateCmd = &cobra.Command{
	Use:   "simulate [scenario]",
	Short: "Predict the likely decision for a hypothetical scenario",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSimulate,
}

// searchCmd runs a semantic query
var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search events and patterns semantically",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

// exportCmd dumps the full engine state as JSON
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the full engine state as JSON",
	RunE:  runExport,
}

var (
	addType    string
	addLogic   string
	addOutcome string
	addTags    []string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "cognos.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	addCmd.Flags().StringVar(&addType, "type", "decision", "event type (decision, project, interaction, communication)")
	addCmd.Flags().StringVar(&addLogic, "logic", "", "decision logic behind the event")
	addCmd.Flags().StringVar(&addOutcome, "outcome", "", "outcome of the event")
	addCmd.Flags().StringSliceVar(&addTags, "tags", nil, "tags for the event")

	rootCmd.AddCommand(serveCmd, addCmd, importCmd, detectCmd, scanCmd, simulateCmd, searchCmd, exportCmd)
}

func newEngine() (*core.Engine, *config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	engine, err := core.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return engine, cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	engine, cfg, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("serving", zap.String("addr", cfg.Server.Addr), zap.String("subject", cfg.Subject))
	return server.New(engine, cfg.Server.Addr).ListenAndServe(ctx)
}

func runAdd(cmd *cobra.Command, args []string) error {
	engine, _, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	event, err := engine.AddEvent(cmd.Context(), types.EventSpec{
		EventType:     types.EventType(addType),
		Description:   strings.Join(args, " "),
		DecisionLogic: addLogic,
		Outcome:       addOutcome,
		Tags:          addTags,
	})
	if err != nil {
		return err
	}
	return printJSON(event)
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	var payload struct {
		Events []types.EventSpec `json:"events"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}

	engine, _, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	ids, errs := engine.BulkImport(cmd.Context(), payload.Events)
	fmt.Printf("imported %d of %d events\n", len(ids), len(payload.Events))
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "  %v\n", err)
	}
	return nil
}

func runDetect(cmd *cobra.Command, args []string) error {
	engine, _, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	return printJSON(engine.DetectPatterns(cmd.Context()))
}

func runScan(cmd *cobra.Command, args []string) error {
	engine, _, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	engine.DetectPatterns(cmd.Context())
	return printJSON(engine.DetectAnomalies(cmd.Context()))
}

func runSimulate(cmd *cobra.Command, args []string) error {
	engine, _, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	engine.DetectPatterns(cmd.Context())
	pred, err := engine.Simulate(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	return printJSON(pred)
}

func runSearch(cmd *cobra.Command, args []string) error {
	engine, _, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	results, err := engine.Search(cmd.Context(), strings.Join(args, " "), 10)
	if err != nil {
		return err
	}
	return printJSON(results)
}

func runExport(cmd *cobra.Command, args []string) error {
	engine, _, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	engine.DetectPatterns(cmd.Context())
	engine.DetectAnomalies(cmd.Context())
	return printJSON(engine.Export())
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
