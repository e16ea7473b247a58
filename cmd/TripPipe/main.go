package main

import (
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/BTreeMap/TripPipe/internal/api"
	"github.com/BTreeMap/TripPipe/internal/booking"
	"github.com/BTreeMap/TripPipe/internal/flow"
	"github.com/BTreeMap/TripPipe/internal/lockfile"
	"github.com/BTreeMap/TripPipe/internal/nlu"
	"github.com/BTreeMap/TripPipe/internal/store"
	"github.com/BTreeMap/TripPipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for TripPipe state data
	DefaultStateDir = "/var/lib/trippipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "trippipe.db"
)

func main() {
	// Initialize structured logger
	initializeLogger(os.Getenv("TRIPPIPE_LOG_LEVEL"), os.Getenv("TRIPPIPE_LOG_FILE"))

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// One process per state directory
	lock, err := lockfile.AcquireLock(*flags.stateDir, *flags.apiAddr)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}

	modules := api.Modules{
		Store:   buildStoreOptions(flags),
		Booking: buildBookingOptions(config, flags),
		Flow:    []flow.Option{flow.WithCallTimeout(config.CallTimeout)},
		Session: buildSessionOptions(config),
		NLU:     buildNLUOptions(config, flags),
		API:     buildAPIOptions(config, flags),
	}

	slog.Info("Bootstrapping TripPipe with configured modules")
	slog.Debug("Module options counts", "store", len(modules.Store), "booking", len(modules.Booking),
		"session", len(modules.Session), "nlu", len(modules.NLU), "api", len(modules.API))
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	err = api.Run(modules)
	lock.Release()
	if err != nil {
		slog.Error("TripPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("TripPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL    string
	StateDir       string
	APIAddr        string
	OpenAIKey      string
	OpenAIModel    string
	NLUDebug       bool
	FlightProvider string
	FlightBaseURL  string
	FlightAPIKey   string
	CarProvider    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	CacheTTL       time.Duration
	CallTimeout    time.Duration
	SessionIdleTTL time.Duration
	SelectionHold  time.Duration
	APIRateLimit   int
	DedupRetention time.Duration
	JanitorSpec    string
}

// Flags holds command line flag values
type Flags struct {
	stateDir       *string
	dbDSN          *string
	apiAddr        *string
	openaiKey      *string
	flightProvider *string
	redisAddr      *string
}

// parseLevel maps a level name to a slog level, defaulting to debug.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// newLogHandler writes text to stdout, or JSON to a rotating file when logFile is set.
func newLogHandler(level, logFile string, stdout io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if logFile == "" {
		return slog.NewTextHandler(stdout, opts)
	}
	w := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    64, // MB
		MaxBackups: 3,
		MaxAge:     14,
		Compress:   true,
	}
	return slog.NewJSONHandler(w, opts)
}

// initializeLogger sets up structured logging
func initializeLogger(level, logFile string) {
	slog.SetDefault(slog.New(newLogHandler(level, logFile, os.Stdout)))
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StateDir:       os.Getenv("TRIPPIPE_STATE_DIR"),
		APIAddr:        os.Getenv("API_ADDR"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    os.Getenv("OPENAI_MODEL"),
		NLUDebug:       util.ParseBoolEnv("TRIPPIPE_NLU_DEBUG", false),
		FlightProvider: os.Getenv("FLIGHT_API_PROVIDER"),
		FlightBaseURL:  os.Getenv("FLIGHT_API_BASE_URL"),
		FlightAPIKey:   os.Getenv("FLIGHT_API_KEY"),
		CarProvider:    os.Getenv("CAR_RENTAL_API_PROVIDER"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        util.ParseIntEnv("REDIS_DB", 0),
		CacheTTL:       util.ParseDurationEnv("CACHE_TTL", booking.DefaultCacheTTL),
		CallTimeout:    util.ParseDurationEnv("EXTERNAL_CALL_TIMEOUT", flow.DefaultCallTimeout),
		SessionIdleTTL: util.ParseDurationEnv("SESSION_IDLE_TTL", flow.DefaultIdleTimeout),
		SelectionHold:  util.ParseDurationEnv("SELECTION_HOLD_TTL", flow.DefaultHoldTimeout),
		APIRateLimit:   util.ParseIntEnv("API_RATE_LIMIT", 0),
		DedupRetention: util.ParseDurationEnv("TURN_DEDUP_RETENTION", store.DefaultDedupRetention),
		JanitorSpec:    os.Getenv("TURN_DEDUP_PRUNE_SCHEDULE"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No TRIPPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("TRIPPIPE_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"TRIPPIPE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"FLIGHT_API_PROVIDER", config.FlightProvider,
		"CAR_RENTAL_API_PROVIDER", config.CarProvider,
		"REDIS_ADDR", config.RedisAddr,
		"CACHE_TTL", config.CacheTTL,
		"EXTERNAL_CALL_TIMEOUT", config.CallTimeout,
		"SESSION_IDLE_TTL", config.SessionIdleTTL,
		"SELECTION_HOLD_TTL", config.SelectionHold)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := newFlags(flag.CommandLine, config)
	flag.Parse()
	applyStateDirDefault(config, flags)
	return flags
}

func newFlags(fs *flag.FlagSet, config Config) Flags {
	return Flags{
		stateDir:       fs.String("state-dir", config.StateDir, "state directory for TripPipe data (overrides $TRIPPIPE_STATE_DIR)"),
		dbDSN:          fs.String("db-dsn", config.DatabaseURL, "database DSN, PostgreSQL URL or SQLite path (overrides $DATABASE_URL)"),
		apiAddr:        fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		openaiKey:      fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		flightProvider: fs.String("flight-provider", config.FlightProvider, "flight provider, mock or http (overrides $FLIGHT_API_PROVIDER)"),
		redisAddr:      fs.String("redis-addr", config.RedisAddr, "Redis address for the search cache (overrides $REDIS_ADDR)"),
	}
}

// applyStateDirDefault moves the default SQLite file along with a changed state directory.
func applyStateDirDefault(config Config, flags Flags) {
	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"openaiKeySet", *flags.openaiKey != "",
		"flightProvider", *flags.flightProvider,
		"redisAddr", *flags.redisAddr)

	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if *flags.dbDSN != "" && store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", *flags.stateDir)
		return err
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildBookingOptions constructs booking provider options
func buildBookingOptions(config Config, flags Flags) []booking.Option {
	var opts []booking.Option
	if *flags.flightProvider != "" {
		opts = append(opts, booking.WithFlightProvider(*flags.flightProvider))
	}
	if config.FlightBaseURL != "" {
		opts = append(opts, booking.WithHTTPEndpoint(config.FlightBaseURL, config.FlightAPIKey))
	}
	if config.CarProvider != "" {
		opts = append(opts, booking.WithCarProvider(config.CarProvider))
	}
	if config.CallTimeout > 0 {
		opts = append(opts, booking.WithHTTPTimeout(config.CallTimeout))
	}
	if *flags.redisAddr != "" {
		opts = append(opts, booking.WithRedisCache(*flags.redisAddr, config.RedisPassword, config.RedisDB))
		opts = append(opts, booking.WithCacheTTL(config.CacheTTL))
	}
	return opts
}

// buildSessionOptions constructs session manager options
func buildSessionOptions(config Config) []flow.SessionOption {
	var opts []flow.SessionOption
	if config.SessionIdleTTL > 0 {
		opts = append(opts, flow.WithIdleTimeout(config.SessionIdleTTL))
	}
	if config.SelectionHold > 0 {
		opts = append(opts, flow.WithHoldTimeout(config.SelectionHold))
	}
	return opts
}

// buildNLUOptions constructs language understanding options
func buildNLUOptions(config Config, flags Flags) []nlu.Option {
	var opts []nlu.Option
	if *flags.openaiKey != "" {
		opts = append(opts, nlu.WithAPIKey(*flags.openaiKey))
	}
	if config.OpenAIModel != "" {
		opts = append(opts, nlu.WithModel(config.OpenAIModel))
	}
	if config.NLUDebug {
		opts = append(opts, nlu.WithDebugMode(true), nlu.WithStateDir(*flags.stateDir))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(config Config, flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if config.APIRateLimit > 0 {
		apiOpts = append(apiOpts, api.WithRateLimit(float64(config.APIRateLimit), 2*config.APIRateLimit))
	}
	if config.DedupRetention > 0 {
		apiOpts = append(apiOpts, api.WithDedupRetention(config.DedupRetention))
	}
	if config.JanitorSpec != "" {
		apiOpts = append(apiOpts, api.WithJanitorSchedule(config.JanitorSpec))
	}
	if config.CallTimeout > 0 {
		// a turn may chain a resolver call, a search and a confirmation
		apiOpts = append(apiOpts, api.WithRequestTimeout(3*config.CallTimeout))
	}
	return apiOpts
}
