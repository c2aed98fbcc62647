package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// SysConfig system settings
type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
}

// WebConfig web server settings
type WebConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	PublicDir    string `yaml:"public_dir"`
	SecureCookie bool   `yaml:"secure_cookie"`
	CookieSecret string `yaml:"cookie_secret"`
	MaxUploadMB  int    `yaml:"max_upload_mb"`
}

// DBConfig database settings
type DBConfig struct {
	Type     string `yaml:"type"` // postgres or sqlite
	URL      string `yaml:"url"`
	SSL      bool   `yaml:"ssl"`
	MaxConn  int    `yaml:"max_conn"`
	IdleConn int    `yaml:"idle_conn"`
	Debug    bool   `yaml:"debug"`
}

// AdminConfig holds the single administrator secret.
type AdminConfig struct {
	Password string `yaml:"password"`
}

// SessionConfig admin session registry settings
type SessionConfig struct {
	Backend       string        `yaml:"backend"` // memory, redis or bolt
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	BoltPath      string        `yaml:"bolt_path"`
}

// UploadConfig product image storage settings
type UploadConfig struct {
	Dir        string        `yaml:"dir"`
	URLPrefix  string        `yaml:"url_prefix"`
	ImagesOnly bool          `yaml:"images_only"`
	GCEnabled  bool          `yaml:"gc_enabled"`
	GCSchedule string        `yaml:"gc_schedule"`
	GCGrace    time.Duration `yaml:"gc_grace"`
}

// MailConfig enquiry notification settings
type MailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// LogConfig logging settings
type LogConfig struct {
	Mode       string `yaml:"mode"`
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

type AppConfig struct {
	System   SysConfig     `yaml:"system"`
	Web      WebConfig     `yaml:"web"`
	Database DBConfig      `yaml:"database"`
	Admin    AdminConfig   `yaml:"admin"`
	Session  SessionConfig `yaml:"session"`
	Upload   UploadConfig  `yaml:"upload"`
	Mail     MailConfig    `yaml:"mail"`
	Logger   LogConfig     `yaml:"logger"`
}

// DefaultAppConfig returns the settings used when no config file is present.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Appid:    "craftsite",
			Location: "Asia/Kolkata",
			Workdir:  "./data",
		},
		Web: WebConfig{
			Host:        "0.0.0.0",
			Port:        3000,
			PublicDir:   "./public",
			MaxUploadMB: 10,
		},
		Database: DBConfig{
			Type:     "postgres",
			SSL:      true,
			MaxConn:  20,
			IdleConn: 5,
		},
		Session: SessionConfig{
			Backend:       "memory",
			TTL:           12 * time.Hour,
			SweepInterval: 10 * time.Minute,
			BoltPath:      "sessions.db",
		},
		Upload: UploadConfig{
			URLPrefix:  "/uploads",
			ImagesOnly: true,
			GCSchedule: "@daily",
			GCGrace:    24 * time.Hour,
		},
		Mail: MailConfig{
			Port: 587,
		},
		Logger: LogConfig{
			Mode:     "development",
			Filename: "craftsite.log",
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults and applies
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", path)
			}
		case os.IsNotExist(err):
		default:
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) applyEnv() {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := cast.ToIntE(strings.TrimSpace(v)); err == nil {
			c.Web.Port = port
		}
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := cast.ToIntE(strings.TrimSpace(v)); err == nil {
			c.Mail.Port = port
		}
	}
	if v, ok := os.LookupEnv("DATABASE_SSL"); ok {
		// only an explicit "false" disables TLS
		c.Database.SSL = !strings.EqualFold(strings.TrimSpace(v), "false")
	}
	if v := os.Getenv("MAIL_ENABLED"); v != "" {
		c.Mail.Enabled = cast.ToBool(strings.TrimSpace(v))
	}
	if v, ok := os.LookupEnv("ADMIN_PASSWORD"); ok {
		// compared verbatim at login, surrounding spaces included
		c.Admin.Password = v
	}
	setString("DATABASE_URL", &c.Database.URL)
	setString("DATABASE_TYPE", &c.Database.Type)
	setString("SESSION_BACKEND", &c.Session.Backend)
	setString("REDIS_ADDR", &c.Session.RedisAddr)
	setString("REDIS_PASSWORD", &c.Session.RedisPassword)
	setString("COOKIE_SECRET", &c.Web.CookieSecret)
	setString("SMTP_HOST", &c.Mail.Host)
	setString("SMTP_USER", &c.Mail.Username)
	setString("SMTP_PASSWORD", &c.Mail.Password)
	setString("ENQUIRY_NOTIFY_TO", &c.Mail.To)
	setString("LOG_MODE", &c.Logger.Mode)
}

func (c *AppConfig) normalize() {
	c.Database.Type = strings.ToLower(strings.TrimSpace(c.Database.Type))
	if c.Database.Type == "" {
		c.Database.Type = "postgres"
	}
	c.Session.Backend = strings.ToLower(strings.TrimSpace(c.Session.Backend))
	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Web.PublicDir == "" {
		c.Web.PublicDir = "./public"
	}
	if c.Upload.Dir == "" {
		c.Upload.Dir = filepath.Join(c.Web.PublicDir, "uploads")
	}
	c.Upload.URLPrefix = "/" + strings.Trim(c.Upload.URLPrefix, "/")
	if c.Upload.URLPrefix == "/" {
		c.Upload.URLPrefix = "/uploads"
	}
	if c.Session.BoltPath != "" && !filepath.IsAbs(c.Session.BoltPath) {
		c.Session.BoltPath = filepath.Join(c.System.Workdir, c.Session.BoltPath)
	}
	if c.Logger.FileEnable && !filepath.IsAbs(c.Logger.Filename) {
		c.Logger.Filename = filepath.Join(c.System.Workdir, c.Logger.Filename)
	}
}

// Validate reports settings the service cannot start with. A missing admin
// password is deliberately not one of them.
func (c *AppConfig) Validate() error {
	switch c.Database.Type {
	case "postgres", "sqlite":
	default:
		return errors.Errorf("unsupported database type %q", c.Database.Type)
	}
	switch c.Session.Backend {
	case "memory", "bolt":
	case "redis":
		if c.Session.RedisAddr == "" {
			return errors.New("session backend redis requires redis_addr")
		}
	default:
		return errors.Errorf("unsupported session backend %q", c.Session.Backend)
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return errors.Errorf("invalid web port %d", c.Web.Port)
	}
	if c.Session.TTL < 0 {
		return errors.New("session ttl must not be negative")
	}
	return nil
}

// Configured reports whether an administrator secret has been provided.
func (a AdminConfig) Configured() bool {
	return a.Password != ""
}

// DSN returns the connection string handed to the gorm driver. For postgres
// URLs without an explicit sslmode the ssl flag decides.
func (d DBConfig) DSN() string {
	if d.Type != "postgres" || d.URL == "" {
		return d.URL
	}
	u, err := url.Parse(d.URL)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return d.URL
	}
	q := u.Query()
	if q.Get("sslmode") != "" {
		return d.URL
	}
	if d.SSL {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
