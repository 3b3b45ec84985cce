package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/api"
	"github.com/BTreeMap/InterviewPipe/internal/flow"
	"github.com/BTreeMap/InterviewPipe/internal/genai"
	"github.com/BTreeMap/InterviewPipe/internal/lockfile"
	"github.com/BTreeMap/InterviewPipe/internal/messaging"
	"github.com/BTreeMap/InterviewPipe/internal/metrics"
	"github.com/BTreeMap/InterviewPipe/internal/store"
	"github.com/BTreeMap/InterviewPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/InterviewPipe/internal/util"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default configuration constants
const (
	// DefaultStateDir holds the SQLite database and its lock file.
	DefaultStateDir = "/var/lib/interviewpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "interviewpipe.db"

	defaultAssistantTimeout  = 25 * time.Second
	defaultSessionTTL        = 10 * time.Minute
	defaultSessionStoreLimit = 3 * time.Second
	mediaDownloadTimeout     = 60 * time.Second
)

func main() {
	// Load environment configuration
	config := loadEnvironmentConfig()

	// Initialize structured logger
	initializeLogger(os.Stdout, config.LogLevel, config.LogFormat)

	// Parse command line flags
	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping InterviewPipe")
	slog.Debug("Final configuration", "state_dir", flags.StateDir, "dsn_type", store.DetectDSNType(flags.DBDSN),
		"api_addr", flags.APIAddr, "redis", flags.RedisURL != "", "assistant", flags.OpenAIKey != "")
	if err := run(ctx, config, flags); err != nil {
		slog.Error("InterviewPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("InterviewPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	APIAddr              string
	DatabaseURL          string
	StateDir             string
	DBDSN                string
	RedisURL             string
	OpenAIKey            string
	OpenAIModel          string
	AssistantPromptFile  string
	AssistantTimeout     time.Duration
	MaxCompletionTokens  int
	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioFromNumber     string
	ValidateSignature    bool
	PublicWebhookURL     string
	AdminNumber          string
	SessionTTL           time.Duration
	SessionStoreTimeout  time.Duration
	SessionSweepInterval time.Duration
	BookingTimezone      string
	LogLevel             string
	LogFormat            string
}

// Flags holds the values that may be overridden on the command line.
type Flags struct {
	StateDir    string
	DBDSN       string
	APIAddr     string
	RedisURL    string
	OpenAIKey   string
	OpenAIModel string
	PromptFile  string
}

// initializeLogger installs the default slog logger. Unknown levels fall back to debug.
func initializeLogger(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
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

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		APIAddr:              util.GetEnvOrDefault("API_ADDR", api.DefaultServerAddress),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		StateDir:             util.GetEnvOrDefault("INTERVIEWPIPE_STATE_DIR", DefaultStateDir),
		RedisURL:             os.Getenv("REDIS_URL"),
		OpenAIKey:            os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:          util.GetEnvOrDefault("OPENAI_MODEL", genai.DefaultModel),
		AssistantPromptFile:  os.Getenv("ASSISTANT_SYSTEM_PROMPT_FILE"),
		AssistantTimeout:     util.ParseDurationEnv("ASSISTANT_TIMEOUT", defaultAssistantTimeout),
		MaxCompletionTokens:  util.ParseIntEnv("OPENAI_MAX_COMPLETION_TOKENS", 0),
		TwilioAccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:     os.Getenv("TWILIO_FROM_NUMBER"),
		ValidateSignature:    util.ParseBoolEnv("TWILIO_VALIDATE_SIGNATURE", false),
		PublicWebhookURL:     os.Getenv("PUBLIC_WEBHOOK_URL"),
		AdminNumber:          os.Getenv("ADMIN_WHATSAPP_NUMBER"),
		SessionTTL:           util.ParseDurationEnv("SESSION_TTL", defaultSessionTTL),
		SessionStoreTimeout:  util.ParseDurationEnv("SESSION_STORE_TIMEOUT", defaultSessionStoreLimit),
		SessionSweepInterval: util.ParseDurationEnv("SESSION_SWEEP_INTERVAL", 0),
		BookingTimezone:      util.GetEnvOrDefault("BOOKING_TIMEZONE", "UTC"),
		LogLevel:             util.GetEnvOrDefault("LOG_LEVEL", "debug"),
		LogFormat:            util.GetEnvOrDefault("LOG_FORMAT", "text"),
	}

	// If no database URL is provided, default to SQLite in the state directory
	config.DBDSN = config.DatabaseURL
	if config.DBDSN == "" {
		config.DBDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DBDSN)
	}

	slog.Debug("environment variables loaded",
		"API_ADDR", config.APIAddr,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"INTERVIEWPIPE_STATE_DIR", config.StateDir,
		"REDIS_URL_SET", config.RedisURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"TWILIO_VALIDATE_SIGNATURE", config.ValidateSignature,
		"ADMIN_WHATSAPP_NUMBER_SET", config.AdminNumber != "",
		"SESSION_TTL", config.SessionTTL,
		"BOOKING_TIMEZONE", config.BookingTimezone)

	return config
}

// parseCommandLineFlags parses args with environment defaults.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	var flags Flags
	fs.StringVar(&flags.StateDir, "state-dir", config.StateDir, "state directory for InterviewPipe data (overrides $INTERVIEWPIPE_STATE_DIR)")
	fs.StringVar(&flags.DBDSN, "db-dsn", config.DBDSN, "database DSN or SQLite path (overrides $DATABASE_URL)")
	fs.StringVar(&flags.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&flags.RedisURL, "redis-url", config.RedisURL, "Redis URL for session storage (overrides $REDIS_URL)")
	fs.StringVar(&flags.OpenAIKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&flags.OpenAIModel, "openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)")
	fs.StringVar(&flags.PromptFile, "assistant-prompt-file", config.AssistantPromptFile, "assistant system prompt file (overrides $ASSISTANT_SYSTEM_PROMPT_FILE)")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	slog.Debug("flags parsed",
		"stateDir", flags.StateDir,
		"dbDSN_set", flags.DBDSN != "",
		"apiAddr", flags.APIAddr,
		"redisURL_set", flags.RedisURL != "",
		"openaiKeySet", flags.OpenAIKey != "",
		"openaiModel", flags.OpenAIModel,
		"promptFile", flags.PromptFile)

	// Follow a -state-dir override when the DSN is still the default SQLite path
	if flags.DBDSN == filepath.Join(config.StateDir, DefaultDBFileName) && flags.StateDir != config.StateDir {
		flags.DBDSN = filepath.Join(flags.StateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", flags.StateDir)
	}

	return flags, nil
}

// ensureDirectoriesExist creates the directory of a file-based DSN.
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(flags.DBDSN) == "postgres" {
		return nil
	}
	dir := filepath.Dir(flags.DBDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return nil
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags, maxTokens int) []genai.Option {
	var opts []genai.Option
	if flags.OpenAIKey != "" {
		opts = append(opts, genai.WithAPIKey(flags.OpenAIKey))
	}
	if flags.OpenAIModel != "" {
		opts = append(opts, genai.WithModel(flags.OpenAIModel))
	}
	if maxTokens > 0 {
		opts = append(opts, genai.WithMaxCompletionTokens(maxTokens))
	}
	if util.ParseBoolEnv("GENAI_DEBUG", false) {
		opts = append(opts, genai.WithDebugMode(true), genai.WithStateDir(flags.StateDir))
	}
	return opts
}

// buildTwilioOptions constructs Twilio client options
func buildTwilioOptions(config Config) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if config.TwilioAccountSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(config.TwilioAccountSID))
	}
	if config.TwilioAuthToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(config.TwilioAuthToken))
	}
	if config.TwilioFromNumber != "" {
		opts = append(opts, twiliowhatsapp.WithFromWhats(config.TwilioFromNumber))
	}
	return opts
}

// buildConversationOptions constructs booking flow options
func buildConversationOptions(config Config, loc *time.Location, m *metrics.Metrics) []flow.Option {
	opts := []flow.Option{
		flow.WithLocation(loc),
		flow.WithSessionTTL(config.SessionTTL),
		flow.WithStoreTimeout(config.SessionStoreTimeout),
		flow.WithMetrics(m),
	}
	if config.AdminNumber != "" {
		opts = append(opts, flow.WithAdminNumber(config.AdminNumber))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(config Config, flags Flags) ([]api.Option, error) {
	var opts []api.Option
	if flags.APIAddr != "" {
		opts = append(opts, api.WithAddr(flags.APIAddr))
	}
	if config.ValidateSignature {
		if config.TwilioAuthToken == "" {
			return nil, errors.New("TWILIO_VALIDATE_SIGNATURE requires TWILIO_AUTH_TOKEN")
		}
		opts = append(opts, api.WithSignatureValidator(messaging.NewSignatureValidator(config.TwilioAuthToken), config.PublicWebhookURL))
	}
	return opts, nil
}

func run(ctx context.Context, config Config, flags Flags) error {
	loc, err := time.LoadLocation(config.BookingTimezone)
	if err != nil {
		return fmt.Errorf("failed to load BOOKING_TIMEZONE %q: %w", config.BookingTimezone, err)
	}

	apiOpts, err := buildAPIOptions(config, flags)
	if err != nil {
		return err
	}

	if store.DetectDSNType(flags.DBDSN) == "sqlite3" {
		lock, err := lockfile.AcquireLock(filepath.Dir(flags.DBDSN))
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := store.New(flags.DBDSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if flags.RedisURL != "" {
		rdb, err := store.NewRedisClient(ctx, flags.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
		st = store.WithSessionRepo(st, store.NewRedisSessionStore(rdb))
		slog.Info("Sessions stored in Redis")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	apiOpts = append(apiOpts, api.WithMetrics(m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	convOpts := buildConversationOptions(config, loc, m)

	var gen *genai.Client
	if flags.OpenAIKey != "" {
		gen, err = genai.NewClient(buildGenAIOptions(flags, config.MaxCompletionTokens)...)
		if err != nil {
			return fmt.Errorf("failed to create genai client: %w", err)
		}
		caps := flow.NewStoreCapabilities(st, loc, m).WithAdminNumber(config.AdminNumber)
		convOpts = append(convOpts, flow.WithAssistant(flow.NewLLMAssistant(gen, caps, flags.PromptFile, config.AssistantTimeout, m)))
	} else {
		slog.Warn("OPENAI_API_KEY not set, using the static assistant and rejecting voice notes")
	}

	if config.TwilioAccountSID != "" && config.TwilioAuthToken != "" {
		if gen != nil {
			media := messaging.NewMediaFetcher(&http.Client{Timeout: mediaDownloadTimeout}, config.TwilioAccountSID, config.TwilioAuthToken)
			apiOpts = append(apiOpts, api.WithVoiceTranscriber(messaging.NewVoiceTranscriber(media, gen, messaging.DefaultTranscriptionTimeout, m)))
		}
		tw, err := twiliowhatsapp.NewClient(buildTwilioOptions(config)...)
		if err != nil {
			slog.Warn("Twilio client unavailable, outbound notifications stay queued", "error", err)
		} else {
			sender := store.NewOutboxSender(st, messaging.NewOutboxSendFunc(tw, m), 0)
			if err := sender.RecoverStaleMessages(ctx); err != nil {
				slog.Warn("Outbox recovery failed", "error", err)
			}
			go sender.Run(ctx)
		}
	}

	conv := flow.NewConversation(st, convOpts...)
	if config.SessionSweepInterval > 0 {
		go conv.RunSessionSweeper(ctx, config.SessionSweepInterval)
	}

	return api.NewServer(st, conv, apiOpts...).Run(ctx)
}
