// Package config loads bot settings from the environment, an optional
// .env file, command-line flags and an optional JSONC settings file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"modmail-bot/internal/modmail"
	"modmail-bot/internal/pager"
	"modmail-bot/internal/store"
)

// Config holds every setting the bot needs.
type Config struct {
	DiscordToken  string
	GuildID       string
	LogChannelID  string
	StaffRole     string
	Category      string
	MongoURI      string
	MongoDatabase string
	Port          string
	StoreKind     store.Kind
	StorePath     string
	LogLevel      slog.Level
	LogFormat     string
	SettingsPath  string
	Environment   string

	FlushDelay    time.Duration
	DeleteDelay   time.Duration
	PageTimeout   time.Duration
	PageChunk     int
	CannedNotices []modmail.CannedNotice
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		StaffRole:     "Staff",
		Category:      "modmails",
		MongoDatabase: "modmail_db",
		Port:          "10000",
		StoreKind:     store.KindFile,
		StorePath:     "tickets.json",
		LogLevel:      slog.LevelInfo,
		LogFormat:     "text",
		FlushDelay:    store.DefaultFlushDelay,
		DeleteDelay:   modmail.DefaultDeleteDelay,
		PageTimeout:   pager.DefaultTimeout,
		PageChunk:     pager.DefaultChunk,
	}
}

// Load builds the configuration. Precedence, lowest first: defaults,
// settings file, .env in the working directory (skipped when ENV is
// production), getenv, flags. The .env values are layered under getenv
// and never written into the process environment.
func Load(args []string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if !strings.EqualFold(getenv("ENV"), "production") {
		getenv = withDotenv(getenv, ".env")
	}

	cfg := Default()
	cfg.Environment = getenv("ENV")

	fs := pflag.NewFlagSet("modmail", pflag.ContinueOnError)
	settings := fs.String("settings", getenv("MODMAIL_SETTINGS"), "path to a JSONC settings file")
	guild := fs.String("guild", "", "guild id (default: first guild the bot is in)")
	storeKind := fs.String("store", "", "snapshot backend: file, sqlite or memory")
	storePath := fs.String("store-path", "", "snapshot file or database path")
	port := fs.String("port", "", "liveness endpoint port")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	logFormat := fs.String("log-format", "", "text or json")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *settings != "" {
		file, err := ReadSettings(*settings)
		if err != nil {
			return Config{}, err
		}
		if err := file.apply(&cfg); err != nil {
			return Config{}, fmt.Errorf("settings %s: %w", *settings, err)
		}
		cfg.SettingsPath = *settings
	}

	cfg.DiscordToken = getenv("DISCORD_TOKEN")
	cfg.MongoURI = getenv("MONGO_URI")
	overrideString(&cfg.GuildID, getenv("GUILD_ID"), *guild)
	overrideString(&cfg.LogChannelID, getenv("LOG_CHANNEL_ID"))
	overrideString(&cfg.StaffRole, getenv("STAFF_ROLE"))
	overrideString(&cfg.Category, getenv("MODMAIL_CATEGORY"))
	overrideString(&cfg.MongoDatabase, getenv("MONGO_DATABASE"))
	overrideString(&cfg.Port, getenv("PORT"), *port)
	overrideString(&cfg.StorePath, getenv("STORE_PATH"), *storePath)
	overrideString(&cfg.LogFormat, getenv("LOG_FORMAT"), *logFormat)

	kind := string(cfg.StoreKind)
	overrideString(&kind, getenv("STORE"), *storeKind)
	cfg.StoreKind = store.Kind(strings.ToLower(kind))

	if lvl := firstNonEmpty(*logLevel, getenv("LOG_LEVEL")); lvl != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return Config{}, fmt.Errorf("log level %q: %w", lvl, err)
		}
	}
	if v := getenv("DELETE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("DELETE_DELAY: %w", err)
		}
		cfg.DeleteDelay = d
	}
	if v := getenv("PAGE_CHUNK"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("PAGE_CHUNK: %w", err)
		}
		cfg.PageChunk = n
	}

	return cfg, cfg.Validate()
}

// Validate reports missing or inconsistent settings.
func (c Config) Validate() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is required"))
	}
	switch c.StoreKind {
	case store.KindFile, store.KindSQLite, store.KindMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.StoreKind))
	}
	if c.StoreKind != store.KindMemory && c.StorePath == "" {
		errs = append(errs, errors.New("store path is required"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.DeleteDelay <= 0 || c.PageTimeout <= 0 || c.FlushDelay <= 0 {
		errs = append(errs, errors.New("delays must be positive"))
	}
	if c.PageChunk <= 0 {
		errs = append(errs, errors.New("page chunk must be positive"))
	}
	return errors.Join(errs...)
}

// RouterConfig returns the subset of settings the router uses.
func (c Config) RouterConfig() modmail.Config {
	return modmail.Config{
		Category:      c.Category,
		LogChannelID:  c.LogChannelID,
		CannedNotices: c.CannedNotices,
		DeleteDelay:   c.DeleteDelay,
		PageTimeout:   c.PageTimeout,
		PageChunk:     c.PageChunk,
	}
}

// withDotenv returns a lookup that falls back to the values in path. A
// missing or unreadable file leaves getenv unchanged.
func withDotenv(getenv func(string) string, path string) func(string) string {
	values, err := godotenv.Read(path)
	if err != nil || len(values) == 0 {
		return getenv
	}
	return func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return values[key]
	}
}

// overrideString sets *dst to the last non-empty value.
func overrideString(dst *string, values ...string) {
	for _, v := range values {
		if v != "" {
			*dst = v
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
