package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"storm-truck-count/internal/domain"
	"storm-truck-count/internal/platform/db"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is loaded once at startup and passed to each stage of the run.
type Config struct {
	Database DatabaseConfig
	AGOL     AGOLConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds the count source connection and query.
type DatabaseConfig struct {
	Driver        string
	Host          string
	Port          string
	Name          string
	User          string
	Password      string
	SSLMode       string
	DSN           string
	TruckCountSQL string
}

// AGOLConfig holds the hosted-data service endpoint, credentials and target record.
type AGOLConfig struct {
	RootURL      string
	User         string
	Password     string
	Target       domain.TargetSpec
	FieldName    string
	Timeout      time.Duration
	ReadAttempts int
}

type LoggingConfig struct {
	Level  string
	Format string
}

const (
	sectionDatabase = "DATABASE"
	sectionAGOL     = "AGOL"
	sectionLogging  = "LOGGING"
)

// LoadEnv loads a dotenv file into the process environment.
// A missing file is only an error when required is set.
func LoadEnv(path string, required bool) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: load env file %s: %w", domain.ErrConfig, path, err)
	}
	return nil
}

// Load reads the credentials file, applies STORM_* environment overrides and
// resolves interpolation.
func Load(path string) (*Config, error) {
	sections, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	sections.ApplyEnv(os.Environ(), defaultSection, sectionDatabase, sectionAGOL, sectionLogging)

	return FromSections(sections)
}

// FromSections builds a validated Config from raw sections.
func FromSections(s Sections) (*Config, error) {
	r := &reader{s: s}

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:        r.optional(sectionDatabase, "DRIVER", db.DriverPostgres),
			Host:          r.optional(sectionDatabase, "HOST", "localhost"),
			Port:          r.optional(sectionDatabase, "PORT", "5432"),
			Name:          r.required(sectionDatabase, "DB_NAME"),
			User:          r.required(sectionDatabase, "USER_NAME"),
			Password:      r.required(sectionDatabase, "PASSWORD"),
			SSLMode:       r.optional(sectionDatabase, "SSL_MODE", "disable"),
			DSN:           r.optional(sectionDatabase, "DSN", ""),
			TruckCountSQL: r.required(sectionDatabase, "TRUCK_COUNT_SQL"),
		},
		AGOL: AGOLConfig{
			RootURL:   strings.TrimRight(r.required(sectionAGOL, "ROOT_URL"), "/"),
			User:      r.required(sectionAGOL, "USER_NAME"),
			Password:  r.required(sectionAGOL, "PASSWORD"),
			FieldName: r.optional(sectionAGOL, "FIELD_NAME", "TRUCK_COUNT"),
		},
		Logging: LoggingConfig{
			Level:  r.optional(sectionLogging, "LEVEL", "info"),
			Format: r.optional(sectionLogging, "FORMAT", "console"),
		},
	}

	if cfg.Database.Driver == "postgres" {
		cfg.Database.Driver = db.DriverPostgres
	}

	cfg.AGOL.Target = r.target()

	timeout := r.optional(sectionAGOL, "TIMEOUT", "30s")
	if d, err := time.ParseDuration(timeout); err != nil {
		r.fail(fmt.Errorf("%w: [AGOL] TIMEOUT %q: %w", domain.ErrConfig, timeout, err))
	} else {
		cfg.AGOL.Timeout = d
	}

	attempts := r.optional(sectionAGOL, "READ_ATTEMPTS", "1")
	if n, err := strconv.Atoi(attempts); err != nil {
		r.fail(fmt.Errorf("%w: [AGOL] READ_ATTEMPTS %q: %w", domain.ErrConfig, attempts, err))
	} else {
		cfg.AGOL.ReadAttempts = n
	}

	if r.err != nil {
		return nil, r.err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("%w: unsupported database driver %q (must be pgx or sqlite)", domain.ErrConfig, c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.TruckCountSQL) == "" {
		return fmt.Errorf("%w: [DATABASE] TRUCK_COUNT_SQL must be non-empty", domain.ErrConfig)
	}

	u, err := url.Parse(c.AGOL.RootURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%w: [AGOL] ROOT_URL %q must be an http(s) URL", domain.ErrConfig, c.AGOL.RootURL)
	}
	if err := c.AGOL.Target.Validate(); err != nil {
		return fmt.Errorf("%w: [AGOL] %w", domain.ErrConfig, err)
	}
	if strings.TrimSpace(c.AGOL.FieldName) == "" {
		return fmt.Errorf("%w: [AGOL] FIELD_NAME must be non-empty", domain.ErrConfig)
	}
	if c.AGOL.Timeout <= 0 {
		return fmt.Errorf("%w: [AGOL] TIMEOUT must be positive", domain.ErrConfig)
	}
	if c.AGOL.ReadAttempts < 1 {
		return fmt.Errorf("%w: [AGOL] READ_ATTEMPTS must be at least 1", domain.ErrConfig)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("%w: [LOGGING] FORMAT %q must be json or console", domain.ErrConfig, c.Logging.Format)
	}

	return nil
}

// ConnString returns the explicit DSN or one built from the discrete settings.
func (d DatabaseConfig) ConnString() (string, error) {
	if d.DSN != "" {
		return d.DSN, nil
	}

	dsn, err := db.BuildDSN(db.DSNParams{
		Driver:   d.Driver,
		Host:     d.Host,
		Port:     d.Port,
		Name:     d.Name,
		User:     d.User,
		Password: d.Password,
		SSLMode:  d.SSLMode,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrConfig, err)
	}
	return dsn, nil
}

// reader keeps the first lookup error so FromSections reads like a listing of keys.
type reader struct {
	s   Sections
	err error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) lookup(section, key string) (string, bool) {
	v, ok, err := r.s.Get(section, key)
	if err != nil {
		r.fail(err)
		return "", false
	}
	return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
}

func (r *reader) required(section, key string) string {
	v, ok := r.lookup(section, key)
	if !ok {
		r.fail(fmt.Errorf("%w: [%s] %s is required", domain.ErrConfig, section, key))
	}
	return v
}

func (r *reader) optional(section, key, fallback string) string {
	if v, ok := r.lookup(section, key); ok {
		return v
	}
	return fallback
}

// target picks the locator strategy. LOCATOR wins; otherwise LAYER_ID selects
// lookup by id and TABLE_TITLE/TABLE_OWNER select catalog search.
func (r *reader) target() domain.TargetSpec {
	t := domain.TargetSpec{
		ItemID:   r.optional(sectionAGOL, "LAYER_ID", ""),
		Title:    r.optional(sectionAGOL, "TABLE_TITLE", ""),
		Owner:    r.optional(sectionAGOL, "TABLE_OWNER", ""),
		ItemType: r.optional(sectionAGOL, "ITEM_TYPE", "Feature Service"),
	}

	switch locator := strings.ToLower(r.optional(sectionAGOL, "LOCATOR", "")); {
	case locator != "":
		t.Strategy = domain.Strategy(locator)
	case t.ItemID != "":
		t.Strategy = domain.StrategyByID
	case t.Title != "" || t.Owner != "":
		t.Strategy = domain.StrategyBySearch
	default:
		r.fail(fmt.Errorf("%w: [AGOL] LAYER_ID or TABLE_TITLE and TABLE_OWNER is required", domain.ErrConfig))
		return t
	}

	switch t.Strategy {
	case domain.StrategyByID:
		if t.ItemID == "" {
			r.required(sectionAGOL, "LAYER_ID")
		}
	case domain.StrategyBySearch:
		if t.Title == "" {
			r.required(sectionAGOL, "TABLE_TITLE")
		}
		if t.Owner == "" {
			r.required(sectionAGOL, "TABLE_OWNER")
		}
	}

	return t
}
