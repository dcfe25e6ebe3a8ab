package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Training  TrainingConfig  `mapstructure:"training"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	FileOnly   bool   `mapstructure:"file_only"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type JobsConfig struct {
	// Dir holds one <job_id>.json and one <job_id>.log per job.
	Dir string `mapstructure:"dir"`
	// WorkDir is where the training command runs inside the session.
	WorkDir      string        `mapstructure:"work_dir"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// SentinelFallbackStatus is applied when the completion sentinel carries
	// no parsable exit code: "completed" (historic behavior) or "error".
	SentinelFallbackStatus string `mapstructure:"sentinel_fallback_status"`
}

// TrainingConfig carries the documented defaults for unset job parameters.
type TrainingConfig struct {
	Script       string `mapstructure:"script"`
	PolicyPath   string `mapstructure:"policy_path"`
	BatchSize    int    `mapstructure:"batch_size"`
	Steps        int    `mapstructure:"steps"`
	OutputDir    string `mapstructure:"output_dir"`
	JobName      string `mapstructure:"job_name"`
	PolicyDevice string `mapstructure:"policy_device"`
	WandbEnable  bool   `mapstructure:"wandb_enable"`
}

type ProviderConfig struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	DockerImage string `mapstructure:"docker_image"`
	// AppPort is the port the embedded job runner listens on inside pods.
	AppPort int `mapstructure:"app_port"`
}

// Enabled reports whether the pod management surface should be served.
func (c ProviderConfig) Enabled() bool {
	return c.APIKey != ""
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type ArtifactsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("provider.api_key", "PROVIDER_API_KEY")
	v.BindEnv("provider.docker_image", "DOCKER_IMAGE")
	v.BindEnv("database.path", "DB_PATH")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("artifacts.access_key", "S3_ACCESS_KEY")
	v.BindEnv("artifacts.secret_key", "S3_SECRET_KEY")
	v.BindEnv("artifacts.endpoint", "S3_ENDPOINT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("jobs.dir", "./jobs")
	v.SetDefault("jobs.work_dir", "/app")
	v.SetDefault("jobs.poll_interval", 5*time.Second)
	v.SetDefault("jobs.sentinel_fallback_status", "completed")

	v.SetDefault("training.script", "python -m lerobot.scripts.train")
	v.SetDefault("training.policy_path", "lerobot/smolvla_base")
	v.SetDefault("training.batch_size", 64)
	v.SetDefault("training.steps", 20000)
	v.SetDefault("training.output_dir", "outputs/train/my_smolvla")
	v.SetDefault("training.job_name", "my_smolvla_training")
	v.SetDefault("training.policy_device", "cuda")
	v.SetDefault("training.wandb_enable", true)

	v.SetDefault("provider.base_url", "https://rest.runpod.io/v1")
	v.SetDefault("provider.app_port", 8000)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/trainerd.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("artifacts.enabled", false)
	v.SetDefault("artifacts.region", "us-east-1")
	v.SetDefault("artifacts.bucket", "trainerd-artifacts")
}

func (c *Config) validate() error {
	switch c.Jobs.SentinelFallbackStatus {
	case "completed", "error":
	default:
		return fmt.Errorf("jobs.sentinel_fallback_status must be \"completed\" or \"error\", got %q",
			c.Jobs.SentinelFallbackStatus)
	}
	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("jobs.poll_interval must be positive, got %s", c.Jobs.PollInterval)
	}
	return nil
}
