package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clinichat/clinichat/internal/api"
	"github.com/clinichat/clinichat/internal/genai"
	"github.com/clinichat/clinichat/internal/intake"
	"github.com/clinichat/clinichat/internal/store"
	"github.com/clinichat/clinichat/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for clinichat state data
	DefaultStateDir = "/var/lib/clinichat"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "clinichat.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	history, err := buildHistoryStore(flags)
	if err != nil {
		slog.Error("Failed to initialize history store", "error", err)
		os.Exit(1)
	}
	defer history.Close()

	gaClient, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		slog.Error("Failed to initialize GenAI client", "error", err)
		os.Exit(1)
	}

	sessions := intake.NewSessionStore(buildSessionOptions(flags)...)
	defer sessions.Close()

	collector := intake.NewCollector(intake.DefaultFields())

	srv := api.NewServer(collector, sessions, gaClient, history, buildAPIOptions(flags)...)

	slog.Info("Bootstrapping clinichat with configured modules")
	if err := srv.Run(); err != nil {
		slog.Error("clinichat failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("clinichat exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL    string
	StateDir       string
	OpenAIKey      string
	OpenAIModel    string
	APIAddr        string
	SessionTTLMin  int
	GatewayTimeout int
}

// Flags holds command line flag values
type Flags struct {
	stateDir       *string
	dbDSN          *string
	openaiKey      *string
	openaiModel    *string
	apiAddr        *string
	sessionTTLMin  *int
	gatewayTimeout *int
}

// initializeLogger sets up structured logging with the level taken from
// $LOG_LEVEL. $LOG_JSON switches the handler to JSON output for log shippers.
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if util.ParseBoolEnv("LOG_JSON", false) {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
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
		StateDir:       os.Getenv("CLINICHAT_STATE_DIR"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    os.Getenv("OPENAI_MODEL"),
		APIAddr:        os.Getenv("API_ADDR"),
		SessionTTLMin:  util.ParseIntEnv("SESSION_TTL", 0),
		GatewayTimeout: util.ParseIntEnv("GATEWAY_TIMEOUT", 0),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CLINICHAT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CLINICHAT_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"API_ADDR", config.APIAddr,
		"SESSION_TTL", config.SessionTTLMin,
		"GATEWAY_TIMEOUT", config.GatewayTimeout)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:       flag.String("state-dir", config.StateDir, "state directory for clinichat data (overrides $CLINICHAT_STATE_DIR)"),
		dbDSN:          flag.String("db-dsn", config.DatabaseURL, "history database DSN, Postgres URL or SQLite path (overrides $DATABASE_URL)"),
		openaiKey:      flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:    flag.String("openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)"),
		apiAddr:        flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		sessionTTLMin:  flag.Int("session-ttl", config.SessionTTLMin, "idle intake session TTL in minutes, 0 disables eviction (overrides $SESSION_TTL)"),
		gatewayTimeout: flag.Int("gateway-timeout", config.GatewayTimeout, "model gateway timeout in seconds (overrides $GATEWAY_TIMEOUT)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"openaiModel", *flags.openaiModel,
		"apiAddr", *flags.apiAddr,
		"sessionTTL", *flags.sessionTTLMin,
		"gatewayTimeout", *flags.gatewayTimeout)

	// Follow the state directory when the DSN was left at its derived default
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildHistoryStore selects and constructs the history store backend from the DSN.
func buildHistoryStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory history store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL history store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite history store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	return genaiOpts
}

// buildSessionOptions constructs intake session store configuration options
func buildSessionOptions(flags Flags) []intake.Option {
	var sessionOpts []intake.Option
	if *flags.sessionTTLMin > 0 {
		sessionOpts = append(sessionOpts, intake.WithTTL(time.Duration(*flags.sessionTTLMin)*time.Minute))
	}
	return sessionOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.gatewayTimeout > 0 {
		apiOpts = append(apiOpts, api.WithGatewayTimeout(time.Duration(*flags.gatewayTimeout)*time.Second))
	}
	return apiOpts
}
