package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"sensor-anomaly/internal/analytics"
	"sensor-anomaly/internal/config"
	"sensor-anomaly/internal/ingest"
	"sensor-anomaly/internal/logging"
)

type app struct {
	input         string
	configPath    string
	output        string
	zThreshold    float64
	iqrMultiplier float64
	minDataPoints int
	daily         bool
	workers       int
	logLevel      string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func NewRootCommand() *cobra.Command {
	return NewRootCommandWithIO(os.Stdin, os.Stdout, os.Stderr)
}

func NewRootCommandWithIO(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{stdin: in, stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:   "anomaly-detect",
		Short: "Detect anomalies in a batch of sensor readings",
		Long: `Reads a JSON array of sensor readings, runs the detection pipeline once
and prints the ranked anomalies, per-entity statistics and summary.

Examples:

  anomaly-detect --input readings.json
  cat readings.json | anomaly-detect --z-threshold 3 --output yaml
  anomaly-detect --input readings.json --config detection.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.runDetect,
	}

	f := cmd.Flags()
	f.StringVarP(&a.input, "input", "i", "-", "readings file, - for stdin")
	f.StringVarP(&a.configPath, "config", "c", "", "YAML file with detection overrides")
	f.StringVarP(&a.output, "output", "o", "json", "output format: json or yaml")
	f.Float64Var(&a.zThreshold, "z-threshold", config.DefaultZScoreThreshold, "z-score threshold")
	f.Float64Var(&a.iqrMultiplier, "iqr-multiplier", config.DefaultIQRMultiplier, "IQR fence multiplier")
	f.IntVar(&a.minDataPoints, "min-data-points", config.DefaultMinDataPoints, "minimum readings per entity")
	f.BoolVar(&a.daily, "require-daily-reporting", false, "judge health by readings in the last 24h")
	f.IntVar(&a.workers, "workers", 0, "entities processed in parallel, 0 for one per CPU")
	f.StringVar(&a.logLevel, "log-level", "warn", "log level written to stderr")

	cmd.AddCommand(newDefaultsCmd(a))
	return cmd
}

func newDefaultsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Print the default detection config as YAML",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			enc := yaml.NewEncoder(a.stdout)
			if err := enc.Encode(config.DefaultDetectionConfig()); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func (a *app) runDetect(cmd *cobra.Command, _ []string) error {
	if a.output != "json" && a.output != "yaml" {
		return fmt.Errorf("unsupported output format %q", a.output)
	}

	logger, err := logging.NewConsole(a.logLevel, a.stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := a.detectionConfig(cmd)
	if err != nil {
		return err
	}

	data, err := a.readInput()
	if err != nil {
		return err
	}
	readings, err := ingest.DecodeReadings(data)
	if err != nil {
		return fmt.Errorf("decoding readings: %w", err)
	}

	pipeline := analytics.NewPipeline(analytics.WithLogger(logger), analytics.WithWorkers(a.workers))
	result, report := pipeline.Run(readings, cfg)
	logger.Info("detection finished",
		zap.Int("received", report.Received),
		zap.Int("dropped", report.Dropped),
		zap.Int("anomalies", len(result.Anomalies)),
		zap.Duration("duration", report.Duration),
	)

	return a.write(result)
}

// detectionConfig layers the defaults, the --config file and explicitly set
// flags, in that order.
func (a *app) detectionConfig(cmd *cobra.Command) (config.DetectionConfig, error) {
	cfg := config.DefaultDetectionConfig()

	if a.configPath != "" {
		raw, err := os.ReadFile(a.configPath)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		var patch config.DetectionPatch
		if err := yaml.Unmarshal(raw, &patch); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", a.configPath, err)
		}
		cfg = cfg.Apply(patch)
	}

	var patch config.DetectionPatch
	f := cmd.Flags()
	if f.Changed("z-threshold") {
		patch.ZScoreThreshold = &a.zThreshold
	}
	if f.Changed("iqr-multiplier") {
		patch.IQRMultiplier = &a.iqrMultiplier
	}
	if f.Changed("min-data-points") {
		patch.MinDataPoints = &a.minDataPoints
	}
	if f.Changed("require-daily-reporting") {
		patch.RequireDailyReporting = &a.daily
	}
	cfg = cfg.Apply(patch)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (a *app) readInput() ([]byte, error) {
	if a.input == "" || a.input == "-" {
		return io.ReadAll(a.stdin)
	}
	data, err := os.ReadFile(a.input)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return data, nil
}

func (a *app) write(v interface{}) error {
	if a.output == "json" {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	// Round-trip through JSON so YAML keys match the JSON field names.
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(a.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}
