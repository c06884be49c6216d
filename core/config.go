package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                          string        `mapstructure:"host"`
		DebugHost                     string        `mapstructure:"debug_host"`
		ShutdownTimeout               time.Duration `mapstructure:"shutdown_timeout"`
		DisableReqLogs                bool          `mapstructure:"disable_req_logs"`
		JWTExpirationDelta            time.Duration `mapstructure:"jwt_expiration_delta"`
		JWTRefreshExpirationDelta     time.Duration `mapstructure:"jwt_refresh_expiration_delta"`
		PasswordResetTimeoutDelta     time.Duration `mapstructure:"password_reset_timeout_delta"`
		EmailVerificationTimeoutDelta time.Duration `mapstructure:"email_verification_timeout_delta"`
		MaxUploadSize                 int64         `mapstructure:"max_upload_size"`
	}

	DatabaseConfig struct {
		Engine        string `mapstructure:"engine"`
		User          string `mapstructure:"user"`
		Password      string `mapstructure:"password"`
		AdminUser     string `mapstructure:"admin_user"`
		AdminPassword string `mapstructure:"admin_password"`
		Host          string `mapstructure:"host"`
		Port          string `mapstructure:"port"`
		Name          string `mapstructure:"name"`
		DisableTLS    bool   `mapstructure:"disable_tls"`
	}

	FeedsConfig struct {
		UserAgent             string        `mapstructure:"user_agent"`
		Timeout               time.Duration `mapstructure:"timeout"`
		MaxEntriesPerFeed     int           `mapstructure:"max_entries_per_feed"`
		DefaultFrequencyHours int           `mapstructure:"default_frequency_hours"`
		MinFrequencyHours     int           `mapstructure:"min_frequency_hours"`
		MaxFrequencyHours     int           `mapstructure:"max_frequency_hours"`
		MinRefreshInterval    time.Duration `mapstructure:"min_refresh_interval"`
		PollerEnabled         bool          `mapstructure:"poller_enabled"`
		PollInterval          time.Duration `mapstructure:"poll_interval"`
		PollWorkers           int           `mapstructure:"poll_workers"`
		ArticleRetentionDays  int           `mapstructure:"article_retention_days"`
	}

	ChatConfig struct {
		MessageQueueSize  int           `mapstructure:"message_queue_size"`
		HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	}

	OAuthProviderConfig struct {
		Enabled     bool   `mapstructure:"enabled"`
		UserInfoURL string `mapstructure:"userinfo_url"`
	}

	OAuthConfig struct {
		Google    OAuthProviderConfig `mapstructure:"google"`
		Microsoft OAuthProviderConfig `mapstructure:"microsoft"`
		Github    OAuthProviderConfig `mapstructure:"github"`
	}

	LogConfig struct {
		Level    string `mapstructure:"level"`
		Encoding string `mapstructure:"encoding"`
	}

	Config struct {
		AppName          string `mapstructure:"app_name"`
		Build            string `mapstructure:"build"`
		Env              string `mapstructure:"-"`
		Debug            bool   `mapstructure:"debug"`
		TestMode         bool   `mapstructure:"test_mode"`
		WorkDir          string `mapstructure:"-"`
		SecretKey        string `mapstructure:"secret_key"`
		DefaultFromEmail string `mapstructure:"default_from_email"`
		FrontendBaseURL  string `mapstructure:"frontend_base_url"`
		RollbarToken     string `mapstructure:"rollbar_token"`
		SendgridApiKey   string `mapstructure:"sendgrid_api_key"`

		Server   ServerConfig   `mapstructure:"server"`
		Database DatabaseConfig `mapstructure:"database"`
		Feeds    FeedsConfig    `mapstructure:"feeds"`
		Chat     ChatConfig     `mapstructure:"chat"`
		OAuth    OAuthConfig    `mapstructure:"oauth"`
		Log      LogConfig      `mapstructure:"log"`
	}
)

// Address returns the host:port of the database server.
func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

// FromAddress returns the sender address of the app emails, named after the app.
func (c *Config) FromAddress() mail.Address {
	addr, err := mail.ParseAddress(c.DefaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.DefaultFromEmail}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

// OAuthProvider returns the configuration of the named identity provider.
func (oc OAuthConfig) OAuthProvider(name string) (OAuthProviderConfig, bool) {
	switch name {
	case "google":
		return oc.Google, oc.Google.Enabled
	case "microsoft":
		return oc.Microsoft, oc.Microsoft.Enabled
	case "github":
		return oc.Github, oc.Github.Enabled
	}
	return OAuthProviderConfig{}, false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "SUPRSS")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("test_mode", false)
	v.SetDefault("secret_key", "q3x9-fe)rt2$+71=dk&uoph5(w!z)#*e9(#ab4h^$rsso2nwz")
	v.SetDefault("default_from_email", "noreply@suprss.local")
	v.SetDefault("frontend_base_url", "http://localhost:3000")
	v.SetDefault("rollbar_token", "")
	v.SetDefault("sendgrid_api_key", "")

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debug_host", "0.0.0.0:4000")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.disable_req_logs", false)
	v.SetDefault("server.jwt_expiration_delta", 30*time.Minute)
	v.SetDefault("server.jwt_refresh_expiration_delta", 7*24*time.Hour)
	v.SetDefault("server.password_reset_timeout_delta", time.Hour)
	v.SetDefault("server.email_verification_timeout_delta", 24*time.Hour)
	v.SetDefault("server.max_upload_size", 10<<20)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.user", "suprss")
	v.SetDefault("database.password", "suprss")
	v.SetDefault("database.admin_user", "postgres")
	v.SetDefault("database.admin_password", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "suprss")
	v.SetDefault("database.disable_tls", true)

	v.SetDefault("feeds.user_agent", "SUPRSS/1.0 (+https://github.com/suprss/suprss)")
	v.SetDefault("feeds.timeout", 30*time.Second)
	v.SetDefault("feeds.max_entries_per_feed", 100)
	v.SetDefault("feeds.default_frequency_hours", 6)
	v.SetDefault("feeds.min_frequency_hours", 1)
	v.SetDefault("feeds.max_frequency_hours", 168)
	v.SetDefault("feeds.min_refresh_interval", 5*time.Minute)
	v.SetDefault("feeds.poller_enabled", true)
	v.SetDefault("feeds.poll_interval", 15*time.Minute)
	v.SetDefault("feeds.poll_workers", 4)
	v.SetDefault("feeds.article_retention_days", 90)

	v.SetDefault("chat.message_queue_size", 100)
	v.SetDefault("chat.heartbeat_interval", 30*time.Second)

	v.SetDefault("oauth.google.enabled", false)
	v.SetDefault("oauth.google.userinfo_url", "https://www.googleapis.com/oauth2/v1/userinfo")
	v.SetDefault("oauth.microsoft.enabled", false)
	v.SetDefault("oauth.microsoft.userinfo_url", "https://graph.microsoft.com/v1.0/me")
	v.SetDefault("oauth.github.enabled", false)
	v.SetDefault("oauth.github.userinfo_url", "https://api.github.com/user")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
}

// NewConfig loads the app configuration.
// Values are read from `config/.env.<env>` (if present) and environment variables prefixed with SUPRSS_,
// `ENV` being one of DEV (default), TEST, QA or PROD.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("test_mode", true)
	}

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix("suprss")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := new(Config)
	if err := v.Unmarshal(conf); err != nil {
		log.Fatalf("config.Unmarshal: %v", err)
	}
	conf.Env = env
	conf.WorkDir = wd
	return conf
}
