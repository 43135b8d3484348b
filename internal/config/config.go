// Package config loads server configuration from, in increasing order
// of precedence, built-in defaults, a YAML file, environment variables
// (GRIDSRV_*), and CLI flags (C12) — following the teacher's pack's use
// of spf13/cobra for CLI plumbing and gopkg.in/yaml.v3 for file parsing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"gridserver/internal/interp"
)

// Config is the immutable, fully-resolved server configuration handed to
// main.go's wiring step.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Workers is a hint for the underlying HTTP server's worker pool
	// sizing; the core itself spawns no additional goroutines per
	// request (spec.md §5).
	Workers int `yaml:"workers"`

	DataFile             string            `yaml:"data_file"`
	DefaultInterpolation string            `yaml:"default_interpolation"`
	Aliases              map[string]string `yaml:"aliases"` // canonical -> file-specific

	MaxDataPoints  int64 `yaml:"max_data_points"`
	ArrowBatchRows int   `yaml:"arrow_batch_rows"`

	DiscoveryURL string `yaml:"discovery_url"`

	RedisURL string `yaml:"redis_url"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	WasmColormapPaths []string `yaml:"wasm_colormap_paths"`

	PostgresDSN string `yaml:"postgres_dsn"`

	// FlightPort, when non-zero, starts an Arrow Flight gRPC listener
	// alongside the HTTP server, serving /data's extraction semantics
	// over DoGet (C17).
	FlightPort int `yaml:"flight_port"`
}

// defaults returns the built-in configuration baseline.
func defaults() Config {
	return Config{
		Host:                 "0.0.0.0",
		Port:                 8080,
		Workers:              0,
		DefaultInterpolation: string(interp.Bilinear),
		Aliases:              map[string]string{},
		MaxDataPoints:        10_000_000,
		ArrowBatchRows:       10_000,
	}
}

// Load resolves configuration from args (a CLI flag set compatible with
// os.Args[1:]), the process environment, and an optional YAML file.
func Load(args []string) (*Config, error) {
	cfg := defaults()

	var (
		flagConfigPath   string
		flagHost         string
		flagPort         int
		flagWorkers      int
		flagDataFile     string
		flagInterp       string
		flagMaxPoints    int64
		flagBatchRows    int
		flagDiscoveryURL string
		flagRedisURL     string
		flagKafkaBrokers string
		flagKafkaTopic   string
		flagWasmPlugins  string
		flagPostgresDSN  string
		flagFlightPort   int
	)

	root := &cobra.Command{
		Use:           "gridserver",
		Short:         "Serves a multi-dimensional scientific grid file as an HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flagConfigPath != "" {
				fileCfg, err := loadYAMLFile(flagConfigPath)
				if err != nil {
					return err
				}
				mergeFile(&cfg, fileCfg)
			}

			applyEnv(&cfg)

			applyFlagIfChanged(cmd, "host", &cfg.Host, flagHost)
			applyFlagIfChangedInt(cmd, "port", &cfg.Port, flagPort)
			applyFlagIfChangedInt(cmd, "workers", &cfg.Workers, flagWorkers)
			applyFlagIfChanged(cmd, "data-file", &cfg.DataFile, flagDataFile)
			applyFlagIfChanged(cmd, "interpolation", &cfg.DefaultInterpolation, flagInterp)
			applyFlagIfChanged(cmd, "discovery-url", &cfg.DiscoveryURL, flagDiscoveryURL)
			applyFlagIfChanged(cmd, "redis-url", &cfg.RedisURL, flagRedisURL)
			applyFlagIfChanged(cmd, "kafka-topic", &cfg.KafkaTopic, flagKafkaTopic)
			applyFlagIfChanged(cmd, "postgres-dsn", &cfg.PostgresDSN, flagPostgresDSN)
			applyFlagIfChangedInt(cmd, "flight-port", &cfg.FlightPort, flagFlightPort)
			if cmd.Flags().Changed("max-data-points") {
				cfg.MaxDataPoints = flagMaxPoints
			}
			if cmd.Flags().Changed("arrow-batch-rows") {
				cfg.ArrowBatchRows = flagBatchRows
			}
			if cmd.Flags().Changed("kafka-brokers") {
				cfg.KafkaBrokers = splitNonEmpty(flagKafkaBrokers, ",")
			}
			if cmd.Flags().Changed("wasm-colormap") {
				cfg.WasmColormapPaths = splitNonEmpty(flagWasmPlugins, ",")
			}
			return nil
		},
	}

	root.SetArgs(args)
	flags := root.Flags()
	flags.StringVar(&flagConfigPath, "config", os.Getenv("GRIDSRV_CONFIG"), "path to a YAML config file")
	flags.StringVar(&flagHost, "host", cfg.Host, "listen host")
	flags.IntVar(&flagPort, "port", cfg.Port, "listen port")
	flags.IntVar(&flagWorkers, "workers", cfg.Workers, "worker pool size hint")
	flags.StringVar(&flagDataFile, "data-file", "", "path to the NetCDF data file")
	flags.StringVar(&flagInterp, "interpolation", cfg.DefaultInterpolation, "default interpolation method")
	flags.Int64Var(&flagMaxPoints, "max-data-points", cfg.MaxDataPoints, "maximum points per /data request")
	flags.IntVar(&flagBatchRows, "arrow-batch-rows", cfg.ArrowBatchRows, "arrow record batch row count")
	flags.StringVar(&flagDiscoveryURL, "discovery-url", "", "optional service discovery registration URL")
	flags.StringVar(&flagRedisURL, "redis-url", "", "optional redis URL for the image cache second tier")
	flags.StringVar(&flagKafkaBrokers, "kafka-brokers", "", "comma-separated kafka broker addresses")
	flags.StringVar(&flagKafkaTopic, "kafka-topic", "", "kafka usage-event topic")
	flags.StringVar(&flagWasmPlugins, "wasm-colormap", "", "comma-separated paths to WASM colormap plugins")
	flags.StringVar(&flagPostgresDSN, "postgres-dsn", "", "optional postgres DSN for the alias-table backend")
	flags.IntVar(&flagFlightPort, "flight-port", 0, "optional Arrow Flight gRPC listen port (0 disables)")

	if err := root.Execute(); err != nil {
		return nil, err
	}
	if cfg.DataFile == "" {
		return nil, fmt.Errorf("config: data file is required (--data-file or GRIDSRV_DATA_FILE)")
	}
	return &cfg, nil
}

func loadYAMLFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(b, &fileCfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &fileCfg, nil
}

// mergeFile overlays non-zero fields from file onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if file.Host != "" {
		cfg.Host = file.Host
	}
	if file.Port != 0 {
		cfg.Port = file.Port
	}
	if file.Workers != 0 {
		cfg.Workers = file.Workers
	}
	if file.DataFile != "" {
		cfg.DataFile = file.DataFile
	}
	if file.DefaultInterpolation != "" {
		cfg.DefaultInterpolation = file.DefaultInterpolation
	}
	if len(file.Aliases) > 0 {
		cfg.Aliases = file.Aliases
	}
	if file.MaxDataPoints != 0 {
		cfg.MaxDataPoints = file.MaxDataPoints
	}
	if file.ArrowBatchRows != 0 {
		cfg.ArrowBatchRows = file.ArrowBatchRows
	}
	if file.DiscoveryURL != "" {
		cfg.DiscoveryURL = file.DiscoveryURL
	}
	if file.RedisURL != "" {
		cfg.RedisURL = file.RedisURL
	}
	if len(file.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = file.KafkaBrokers
	}
	if file.KafkaTopic != "" {
		cfg.KafkaTopic = file.KafkaTopic
	}
	if len(file.WasmColormapPaths) > 0 {
		cfg.WasmColormapPaths = file.WasmColormapPaths
	}
	if file.PostgresDSN != "" {
		cfg.PostgresDSN = file.PostgresDSN
	}
	if file.FlightPort != 0 {
		cfg.FlightPort = file.FlightPort
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GRIDSRV_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("GRIDSRV_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("GRIDSRV_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("GRIDSRV_DATA_FILE"); v != "" {
		cfg.DataFile = v
	}
	if v := os.Getenv("GRIDSRV_INTERPOLATION"); v != "" {
		cfg.DefaultInterpolation = v
	}
	if v := os.Getenv("GRIDSRV_MAX_DATA_POINTS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxDataPoints = n
		}
	}
	if v := os.Getenv("GRIDSRV_ARROW_BATCH_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ArrowBatchRows = n
		}
	}
	if v := os.Getenv("GRIDSRV_DISCOVERY_URL"); v != "" {
		cfg.DiscoveryURL = v
	}
	if v := os.Getenv("GRIDSRV_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("GRIDSRV_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitNonEmpty(v, ",")
	}
	if v := os.Getenv("GRIDSRV_KAFKA_TOPIC"); v != "" {
		cfg.KafkaTopic = v
	}
	if v := os.Getenv("GRIDSRV_WASM_COLORMAP"); v != "" {
		cfg.WasmColormapPaths = splitNonEmpty(v, ",")
	}
	if v := os.Getenv("GRIDSRV_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("GRIDSRV_FLIGHT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FlightPort = n
		}
	}
}

func applyFlagIfChanged(cmd *cobra.Command, name string, dst *string, val string) {
	if cmd.Flags().Changed(name) {
		*dst = val
	}
}

func applyFlagIfChangedInt(cmd *cobra.Command, name string, dst *int, val int) {
	if cmd.Flags().Changed(name) {
		*dst = val
	}
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
