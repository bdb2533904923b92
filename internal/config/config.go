package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

var defaultDBPorts = map[string]string{
	"mysql":    "3306",
	"postgres": "5432",
}

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr     string
		LogLevel string
	}
	Database struct {
		Driver   string
		Path     string
		Name     string
		User     string
		Password string
		Host     string
		Port     string
		SSLMode  string
	}
	KeyDB struct {
		Host     string
		Port     int
		Password string
		DB       int
	}
	Session struct {
		Secret     string
		CookieName string
		MaxAge     int
		Secure     bool
	}
	Auth struct {
		JWTSecret       string
		TokenTTLMinutes int
		BcryptCost      int
	}
	Admin struct {
		Username string
		Password string
	}
	Storage struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
}

// legacyEnv maps config keys to the unprefixed variable names used by
// existing deployments. Prefixed PHREAKMAIL_* names take precedence.
var legacyEnv = map[string]string{
	"database.name":     "DB_NAME",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"keydb.host":        "KEYDB_HOST",
	"keydb.port":        "KEYDB_PORT",
	"keydb.password":    "KEYDB_PASSWORD",
	"keydb.db":          "KEYDB_DB",
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	// a missing .env is fine; variables already set win over the file
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PHREAKMAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8000")
	v.SetDefault("server.loglevel", "info")
	v.SetDefault("database.driver", defaultDriver())
	v.SetDefault("database.path", "data/phreakmail.db")
	v.SetDefault("database.name", "phreakmail")
	v.SetDefault("database.user", "phreakmail")
	v.SetDefault("database.password", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("keydb.host", "keydb-phreakmail")
	v.SetDefault("keydb.port", 6379)
	v.SetDefault("keydb.password", "")
	v.SetDefault("keydb.db", 1)
	v.SetDefault("session.secret", "")
	v.SetDefault("session.cookiename", "sessionid")
	v.SetDefault("session.maxage", 1209600)
	v.SetDefault("session.secure", false)
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttlminutes", 60)
	v.SetDefault("auth.bcryptcost", 0)
	v.SetDefault("admin.username", "")
	v.SetDefault("admin.password", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "phreakmail/exports")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")

	for key, env := range legacyEnv {
		prefixed := "PHREAKMAIL_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = defaultDBPorts[cfg.Database.Driver]
	}

	return cfg, nil
}

// defaultDriver keeps deployments configured only through DB_HOST/DB_NAME
// on MySQL; everything else starts on a local sqlite file.
func defaultDriver() string {
	for _, env := range []string{"DB_HOST", "DB_NAME"} {
		if _, ok := os.LookupEnv(env); ok {
			return "mysql"
		}
	}
	return "sqlite"
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Session.Secret) == "" {
		errs = append(errs, errors.New("session secret is required"))
	} else if len(c.Session.Secret) < 32 {
		errs = append(errs, errors.New("session secret must be at least 32 bytes"))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth jwt secret is required"))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Admin.Username != "" {
		switch {
		case len(c.Admin.Password) < 8:
			errs = append(errs, errors.New("admin password must be at least 8 characters"))
		case len(c.Admin.Password) > maxPasswordBytes:
			errs = append(errs, fmt.Errorf("admin password must be at most %d bytes", maxPasswordBytes))
		}
	}
	return errors.Join(errs...)
}

// KeyDBAddr returns host:port of the session store.
func (c Config) KeyDBAddr() string {
	return fmt.Sprintf("%s:%d", c.KeyDB.Host, c.KeyDB.Port)
}

// String returns a representation with secrets masked.
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Addr: %s, DB: %s, KeyDB: %s/%d, Session: %s (secret masked), JWT: masked, ExportBucket: %q}",
		c.Server.Addr, c.databaseLabel(), c.KeyDBAddr(), c.KeyDB.DB, c.Session.CookieName, c.Storage.Bucket,
	)
}

func (c Config) databaseLabel() string {
	switch c.Database.Driver {
	case "postgres", "mysql":
		return fmt.Sprintf("%s://%s@%s:%s/%s", c.Database.Driver, c.Database.User, c.Database.Host, c.Database.Port, c.Database.Name)
	}
	return "sqlite:" + c.Database.Path
}
