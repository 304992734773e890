package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// HTTP
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	FrontendURL string `mapstructure:"FRONTEND_URL"`

	// PostgreSQL
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`
	DBMaxConns int32  `mapstructure:"DB_MAX_CONNS"`

	// Redis
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// Pipeline
	StateChannelSize    int           `mapstructure:"STATE_CHANNEL_SIZE"`
	StateBatchSize      int           `mapstructure:"STATE_BATCH_SIZE"`
	StateFlushInterval  time.Duration `mapstructure:"STATE_FLUSH_INTERVAL"`
	MirrorChannelSize   int           `mapstructure:"MIRROR_CHANNEL_SIZE"`
	MirrorBatchSize     int           `mapstructure:"MIRROR_BATCH_SIZE"`
	MirrorFlushInterval time.Duration `mapstructure:"MIRROR_FLUSH_INTERVAL"`
	NotifyWorkers       int           `mapstructure:"NOTIFY_WORKERS"`
	NotifyTimeout       time.Duration `mapstructure:"NOTIFY_TIMEOUT"`
	AlertKeepAlive      time.Duration `mapstructure:"ALERT_KEEPALIVE"`

	// Auth
	JWTSecret    string        `mapstructure:"JWT_SECRET"`
	JWTExpiresIn time.Duration `mapstructure:"JWT_EXPIRES_IN"`
	JWTIssuer    string        `mapstructure:"JWT_ISSUER"`
	DeviceAPIKey string        `mapstructure:"ESP32_API_KEY"`

	// Email
	SMTPHost  string `mapstructure:"SMTP_HOST"`
	SMTPPort  int    `mapstructure:"SMTP_PORT"`
	EmailUser string `mapstructure:"EMAIL_USER"`
	EmailPass string `mapstructure:"EMAIL_PASS"`

	// Push
	FirebaseServiceAccount     string `mapstructure:"FIREBASE_SERVICE_ACCOUNT"`
	FirebaseServiceAccountFile string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_FILE"`

	// MQTT, optional
	MQTTBrokerURL string `mapstructure:"MQTT_BROKER_URL"`
	MQTTClientID  string `mapstructure:"MQTT_CLIENT_ID"`
	MQTTUsername  string `mapstructure:"MQTT_USERNAME"`
	MQTTPassword  string `mapstructure:"MQTT_PASSWORD"`

	// InfluxDB mirror, optional
	InfluxURL    string `mapstructure:"INFLUX_URL"`
	InfluxToken  string `mapstructure:"INFLUX_TOKEN"`
	InfluxOrg    string `mapstructure:"INFLUX_ORG"`
	InfluxBucket string `mapstructure:"INFLUX_BUCKET"`

	// Firmware
	S3Endpoint            string `mapstructure:"S3_ENDPOINT"`
	S3AccessKey           string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey           string `mapstructure:"S3_SECRET_KEY"`
	S3UseSSL              bool   `mapstructure:"S3_USE_SSL"`
	FirmwareBucket        string `mapstructure:"FIRMWARE_BUCKET"`
	LatestFirmwareVersion string `mapstructure:"LATEST_FIRMWARE_VERSION"`

	// Logging
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

// Load reads an optional .env file, then the environment. Environment
// variables win over the file, and a variable set to an empty value
// overrides its default.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "5000")
	v.SetDefault("FRONTEND_URL", "")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "stick_user")
	v.SetDefault("DB_PASSWORD", "stick_password")
	v.SetDefault("DB_NAME", "smart_stick")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 15)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("STATE_CHANNEL_SIZE", 10000)
	v.SetDefault("STATE_BATCH_SIZE", 200)
	v.SetDefault("STATE_FLUSH_INTERVAL", "200ms")
	v.SetDefault("MIRROR_CHANNEL_SIZE", 10000)
	v.SetDefault("MIRROR_BATCH_SIZE", 500)
	v.SetDefault("MIRROR_FLUSH_INTERVAL", "1s")
	v.SetDefault("NOTIFY_WORKERS", 3)
	v.SetDefault("NOTIFY_TIMEOUT", "15s")
	v.SetDefault("ALERT_KEEPALIVE", "5m")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_EXPIRES_IN", "24h")
	v.SetDefault("JWT_ISSUER", "smart-stick")
	v.SetDefault("ESP32_API_KEY", "")

	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 465)
	v.SetDefault("EMAIL_USER", "")
	v.SetDefault("EMAIL_PASS", "")

	v.SetDefault("FIREBASE_SERVICE_ACCOUNT", "")
	v.SetDefault("FIREBASE_SERVICE_ACCOUNT_FILE", "")

	v.SetDefault("MQTT_BROKER_URL", "")
	v.SetDefault("MQTT_CLIENT_ID", "smart-stick-tracker")
	v.SetDefault("MQTT_USERNAME", "")
	v.SetDefault("MQTT_PASSWORD", "")

	v.SetDefault("INFLUX_URL", "")
	v.SetDefault("INFLUX_TOKEN", "")
	v.SetDefault("INFLUX_ORG", "")
	v.SetDefault("INFLUX_BUCKET", "stick_telemetry")

	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")
	v.SetDefault("S3_USE_SSL", false)
	v.SetDefault("FIRMWARE_BUCKET", "firmware")
	v.SetDefault("LATEST_FIRMWARE_VERSION", "1.0.0")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func (c *Config) Validate() error {
	var missing []string
	if c.HTTPPort == "" {
		missing = append(missing, "HTTP_PORT")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.DeviceAPIKey == "" {
		missing = append(missing, "ESP32_API_KEY")
	}
	if c.DBHost == "" || c.DBName == "" {
		missing = append(missing, "DB_HOST/DB_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.NotifyWorkers < 1 {
		return errors.New("config: NOTIFY_WORKERS must be at least 1")
	}
	return nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%d",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode, c.DBMaxConns,
	)
}

// MigrateURL is DatabaseURL without pool parameters, which the migrate
// driver rejects.
func (c *Config) MigrateURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

func (c *Config) AllowedOrigins() []string {
	origins := []string{"http://localhost:3000"}
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if s := strings.TrimSpace(o); s != "" {
			origins = append(origins, s)
		}
	}
	return origins
}

func (c *Config) EmailEnabled() bool {
	return c.EmailUser != "" && c.EmailPass != ""
}

func (c *Config) PushEnabled() bool {
	return c.FirebaseServiceAccount != "" || c.FirebaseServiceAccountFile != ""
}

// RedisEnabled is false when REDIS_ADDR is set empty. The tracker then runs
// as a single instance without the state cache or the alert queue.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func (c *Config) MQTTEnabled() bool {
	return c.MQTTBrokerURL != ""
}

func (c *Config) MirrorEnabled() bool {
	return c.InfluxURL != "" && c.InfluxToken != ""
}

func (c *Config) FirmwareStorageEnabled() bool {
	return c.S3Endpoint != ""
}
