package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/askely/concierge/internal/api"
	"github.com/askely/concierge/internal/genai"
	"github.com/askely/concierge/internal/lockfile"
	"github.com/askely/concierge/internal/store"
	"github.com/askely/concierge/internal/util"
	"github.com/askely/concierge/internal/whatsapp"
	"github.com/joho/godotenv"
)

const (
	// DefaultStateDir is the default directory for Askely state data.
	DefaultStateDir = "/var/lib/askely"
	// DefaultDBFileName is the default SQLite database filename.
	DefaultDBFileName = "askely.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	// One instance per state directory; the flock dies with the process.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	waOpts := buildWhatsAppOptions(flags)
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping Askely concierge")
	slog.Debug("Final configuration",
		"state_dir", *flags.stateDir,
		"dsn_set", *flags.dbDSN != "",
		"api_addr", *flags.apiAddr,
		"channel", *flags.channel)
	if err := api.Run(waOpts, storeOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("Askely failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("Askely exited successfully")
}

// Config holds environment configuration.
type Config struct {
	DatabaseURL      string
	WhatsAppDSN      string
	StateDir         string
	OpenAIKey        string
	APIAddr          string
	Channel          string
	MaintenanceCron  string
	EngagementPoints int
	Debug            bool
}

// Flags holds command line flag values.
type Flags struct {
	qrOutput         *string
	numeric          *bool
	stateDir         *string
	dbDSN            *string
	waDSN            *string
	openaiKey        *string
	apiAddr          *string
	channel          *string
	maintenanceCron  *string
	engagementPoints *int
}

// initializeLogger sets up structured logging. ASKELY_DEBUG=true enables
// debug level output.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("ASKELY_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and
// an optional .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		WhatsAppDSN:      os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:         os.Getenv("ASKELY_STATE_DIR"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		APIAddr:          os.Getenv("API_ADDR"),
		Channel:          os.Getenv("ASKELY_CHANNEL"),
		MaintenanceCron:  os.Getenv("MAINTENANCE_SCHEDULE"),
		EngagementPoints: util.ParseIntEnv("ENGAGEMENT_POINTS", 0),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No ASKELY_STATE_DIR set, using default", "state_dir", config.StateDir)
	}

	// No database URL means SQLite in the state directory.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	// The whatsmeow session store defaults to its own file next to ours.
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, "whatsmeow.db")
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"ASKELY_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"ASKELY_CHANNEL", config.Channel)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:         flag.String("qr-output", "", "path to write login QR code"),
		numeric:          flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:         flag.String("state-dir", config.StateDir, "state directory for Askely data (overrides $ASKELY_STATE_DIR)"),
		dbDSN:            flag.String("db-dsn", config.DatabaseURL, "database DSN for the concierge store (overrides $DATABASE_URL)"),
		waDSN:            flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the whatsmeow session (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:        flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:          flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		channel:          flag.String("channel", config.Channel, "outbound channel: none, whatsapp or twilio (overrides $ASKELY_CHANNEL)"),
		maintenanceCron:  flag.String("maintenance-cron", config.MaintenanceCron, "cron schedule for dialogue maintenance (overrides $MAINTENANCE_SCHEDULE)"),
		engagementPoints: flag.Int("engagement-points", config.EngagementPoints, "points awarded per free-text interaction, 0 disables (overrides $ENGAGEMENT_POINTS)"),
	}

	flag.Parse()

	// Follow a moved state directory when the DSNs were left at defaults.
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		}
		if *flags.waDSN == filepath.Join(config.StateDir, "whatsmeow.db") {
			*flags.waDSN = filepath.Join(*flags.stateDir, "whatsmeow.db")
		}
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"channel", *flags.channel,
		"maintenanceCron", *flags.maintenanceCron,
		"engagementPoints", *flags.engagementPoints)

	return flags
}

// buildWhatsAppOptions constructs WhatsApp client options.
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.waDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
	}
	return waOpts
}

// buildStoreOptions constructs store options.
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return storeOpts
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI options.
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server options.
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.channel != "" {
		apiOpts = append(apiOpts, api.WithChannel(*flags.channel))
	}
	if *flags.maintenanceCron != "" {
		apiOpts = append(apiOpts, api.WithMaintenanceCron(*flags.maintenanceCron))
	}
	if *flags.engagementPoints > 0 {
		apiOpts = append(apiOpts, api.WithEngagementPoints(*flags.engagementPoints))
	}
	return apiOpts
}
