package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/CivicForms/FormPilot/internal/api"
	"github.com/CivicForms/FormPilot/internal/dialogue"
	"github.com/CivicForms/FormPilot/internal/extract"
	"github.com/CivicForms/FormPilot/internal/genai"
	"github.com/CivicForms/FormPilot/internal/lockfile"
	"github.com/CivicForms/FormPilot/internal/messaging"
	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/pdffill"
	"github.com/CivicForms/FormPilot/internal/recovery"
	"github.com/CivicForms/FormPilot/internal/scheduler"
	"github.com/CivicForms/FormPilot/internal/schema"
	"github.com/CivicForms/FormPilot/internal/store"
	"github.com/CivicForms/FormPilot/internal/translate"
	"github.com/CivicForms/FormPilot/internal/twiliowhatsapp"
	"github.com/CivicForms/FormPilot/internal/util"
	"github.com/CivicForms/FormPilot/internal/validate"
	"github.com/CivicForms/FormPilot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for FormPilot state data
	DefaultStateDir = "/var/lib/formpilot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "formpilot.db"
	// DefaultFormsDir is the default directory holding form schema documents
	DefaultFormsDir = "forms"
	// DefaultExportDirName is the directory under the state dir where export
	// payloads for the PDF filler are written
	DefaultExportDirName = "exports"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// One instance per state directory; the lock also guards the SQLite files
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err, "state_dir", *flags.stateDir)
		os.Exit(1)
	}
	defer lock.Release()

	slog.Info("Bootstrapping FormPilot with configured modules")
	slog.Debug("Final configuration",
		"state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "",
		"forms_dir", *flags.formsDir, "export_dir", *flags.exportDir,
		"channel", *flags.channel, "api_addr", *flags.apiAddr)

	if err := run(flags); err != nil {
		slog.Error("FormPilot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("FormPilot exited successfully")
}

// run wires the modules together and serves until SIGINT or SIGTERM.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	genaiClient, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		return err
	}

	validators := validate.Provider{
		"base":                  validate.NewBaseSet(),
		"business_registration": validate.NewBusinessRegistrationSet(genaiClient),
	}
	forms, err := schema.LoadDir(*flags.formsDir, validators)
	if err != nil {
		return err
	}

	backend := dialogue.NewGenAIWizardBackend(genaiClient)
	translator := translate.NewGenAITranslator(genaiClient)
	engine := dialogue.NewEngine(dialogue.EngineOpts{
		Forms:      forms,
		Processor:  dialogue.NewProcessor(validate.NewDefaultMatcher(genaiClient), translator),
		Edits:      dialogue.NewEditController(dialogue.NewGenAIEditClassifier(genaiClient), lockPolicy()),
		Translator: translator,
		Detector:   backend,
		Approver:   backend,
		Localizer:  backend,
		Extractor:  extract.NewOpenAIExtractor(genaiClient),
	})
	sessions := dialogue.NewSessionManager(st, engine)

	// Completed dialogues hand their payload to the PDF filling side as a
	// JSON file in the export directory.
	exportDir := *flags.exportDir
	sessions.OnComplete(func(session *models.DialogueSession) {
		form, err := forms.Get(session.State.FormType)
		if err != nil {
			slog.Error("Export skipped: form not loaded", "sessionID", session.SessionID, "form", session.State.FormType, "error", err)
			return
		}
		export := pdffill.BuildExport(form, &session.State)
		path := filepath.Join(exportDir, util.GenerateExportID()+".json")
		if err := pdffill.WriteJSON(export, path); err != nil {
			slog.Error("Export write failed", "sessionID", session.SessionID, "error", err)
		}
	})

	if _, err := recovery.NewManager(st, forms).RecoverSessions(ctx); err != nil {
		return err
	}

	apiOpts := buildAPIOptions(flags)
	msgService, apiOpts, err := buildMessagingService(flags, apiOpts)
	if err != nil {
		return err
	}
	if msgService != nil {
		if err := msgService.Start(ctx); err != nil {
			return err
		}
		defer msgService.Stop()
		messaging.NewDialogueRouter(*flags.channel, msgService, sessions, st).Start(ctx)

		// Stalled dialogues get a periodic nudge over the same channel
		if expr := os.Getenv("REMINDER_CRON"); expr != "" {
			sched := scheduler.NewScheduler()
			defer sched.Stop()
			nudger := messaging.NewReminderNudger(*flags.channel, msgService, st, messaging.DefaultReminderIdle)
			if err := sched.AddJob(expr, func() { nudger.Run(ctx) }); err != nil {
				return fmt.Errorf("invalid REMINDER_CRON %q: %w", expr, err)
			}
			slog.Info("Reminder nudges scheduled", "cron", expr)
		}
	}

	return api.NewServer(sessions, forms, apiOpts...).Start(ctx)
}

// Config holds environment configuration
type Config struct {
	WhatsAppDSN string
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
	FormsDir    string
	ExportDir   string
	Channel     string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput  *string
	numeric   *bool
	stateDir  *string
	dbDSN     *string
	openaiKey *string
	apiAddr   *string
	formsDir  *string
	exportDir *string
	channel   *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("FORMPILOT_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		FormsDir:    os.Getenv("FORMS_DIR"),
		ExportDir:   os.Getenv("EXPORT_DIR"),
		Channel:     os.Getenv("MESSAGING_CHANNEL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No FORMPILOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.FormsDir == "" {
		config.FormsDir = DefaultFormsDir
	}
	if config.ExportDir == "" {
		config.ExportDir = filepath.Join(config.StateDir, DefaultExportDirName)
	}

	// The dialogue store and the whatsmeow store share the DATABASE_URL
	// unless a WhatsApp-specific DSN is given
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = config.DatabaseURL
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"FORMPILOT_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"FORMS_DIR", config.FormsDir,
		"EXPORT_DIR", config.ExportDir,
		"MESSAGING_CHANNEL", config.Channel)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:  flag.String("qr-output", "", "path to write login QR code"),
		numeric:   flag.Bool("numeric-code", util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false), "use numeric login code instead of QR code"),
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for FormPilot data (overrides $FORMPILOT_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN for the dialogue store (overrides $DATABASE_URL)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		formsDir:  flag.String("forms-dir", config.FormsDir, "directory with form schema documents (overrides $FORMS_DIR)"),
		exportDir: flag.String("export-dir", config.ExportDir, "directory for export payloads (overrides $EXPORT_DIR)"),
		channel:   flag.String("channel", config.Channel, "messaging channel: whatsapp, twilio, or empty for API only (overrides $MESSAGING_CHANNEL)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"formsDir", *flags.formsDir,
		"exportDir", *flags.exportDir,
		"channel", *flags.channel)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(*flags.exportDir, 0755); err != nil {
		return err
	}
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		dbDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating directory for file-based database", "dir", dbDir)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// buildStore opens the dialogue store matching the configured DSN.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}

// buildMessagingService constructs the configured chat channel service. The
// Twilio channel additionally mounts its inbound webhook on the API mux.
func buildMessagingService(flags Flags, apiOpts []api.Option) (messaging.Service, []api.Option, error) {
	switch *flags.channel {
	case "whatsapp":
		waClient, err := whatsapp.NewClient(buildWhatsAppOptions(flags)...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(waClient), apiOpts, nil
	case "twilio":
		twClient, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, err
		}
		service := messaging.NewTwilioService(twClient)
		apiOpts = append(apiOpts, api.WithWebhook("POST /webhook/twilio", service.TwilioWebhookHandler))
		return service, apiOpts, nil
	case "":
		slog.Info("No messaging channel configured, serving the HTTP API only")
		return nil, apiOpts, nil
	default:
		return nil, nil, fmt.Errorf("unknown messaging channel %q (expected whatsapp or twilio)", *flags.channel)
	}
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if dsn := os.Getenv("WHATSAPP_DB_DSN"); dsn != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(dsn))
	} else if *flags.dbDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.dbDSN))
	}
	return waOpts
}

// lockPolicy reads the edit lock policy from the environment. Keeping locked
// answers is the conservative default; reevaluation re-asks dependent slots
// after their source is edited.
func lockPolicy() dialogue.LockPolicy {
	if util.ParseBoolEnv("EDIT_REEVALUATE_LOCKED", false) {
		return dialogue.LockPolicyReevaluateOnEdit
	}
	return dialogue.LockPolicyKeepLocked
}
