package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type EngineConfig struct {
	BaseStartChance     float64       `mapstructure:"base_start_chance"`
	RecentWindow        time.Duration `mapstructure:"recent_window"`
	RecentDamping       float64       `mapstructure:"recent_damping"`
	MinTurnDelay        time.Duration `mapstructure:"min_turn_delay"`
	StaleAfter          time.Duration `mapstructure:"stale_after"`
	SoftEndTurn         int           `mapstructure:"soft_end_turn"`
	SoftEndChance       float64       `mapstructure:"soft_end_chance"`
	MaxTurns            int           `mapstructure:"max_turns"`
	RandomSpeakerChance float64       `mapstructure:"random_speaker_chance"`
	RunawayThreshold    int           `mapstructure:"runaway_threshold"`
	RunawayChance       float64       `mapstructure:"runaway_chance"`
}

type DaemonConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "chatlings")
	v.SetDefault("redis.ttl", 24*time.Hour)
	v.SetDefault("engine.base_start_chance", 0.001)
	v.SetDefault("engine.recent_window", 6*time.Hour)
	v.SetDefault("engine.recent_damping", 0.1)
	v.SetDefault("engine.min_turn_delay", 5*time.Second)
	v.SetDefault("engine.stale_after", 5*time.Minute)
	v.SetDefault("engine.soft_end_turn", 4)
	v.SetDefault("engine.soft_end_chance", 0.5)
	v.SetDefault("engine.max_turns", 12)
	v.SetDefault("engine.random_speaker_chance", 0.3)
	v.SetDefault("engine.runaway_threshold", 3)
	v.SetDefault("engine.runaway_chance", 0.1)
	v.SetDefault("daemon.poll_interval", time.Second)

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		dbConfig.UseInMemory = config.Database.UseInMemory
		config.Database = dbConfig
	}

	// Get other environment variables
	if addr := v.GetString("REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
		config.Redis.Enabled = true
	}

	return &config, nil
}
