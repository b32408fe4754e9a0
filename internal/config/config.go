package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=memory badger sqlite"`
	Path   string `mapstructure:"path" validate:"required_unless=Driver memory"`
}

type Config struct {
	Mode            string        `mapstructure:"mode" validate:"oneof=debug release"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	StaticPath      string        `mapstructure:"static_path"`
	ReadLimit       int64         `mapstructure:"read_limit" validate:"min=512"`
	PingPeriod      time.Duration `mapstructure:"ping_period" validate:"min=1000000000"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"min=1000000"`
	SendBuffer      int           `mapstructure:"send_buffer" validate:"min=1"`
	Secret          string        `mapstructure:"secret" validate:"min=16"`
	Room            string        `mapstructure:"room" validate:"required,alphanum"`
	Passkey         string        `mapstructure:"passkey"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	EphemeralTTL    time.Duration `mapstructure:"ephemeral_ttl" validate:"min=1000000000"`
	EphemeralMaxTTL time.Duration `mapstructure:"ephemeral_max_ttl" validate:"gtefield=EphemeralTTL"`
	FloodLimit      int           `mapstructure:"flood_limit" validate:"min=0"`
	FloodInterval   time.Duration `mapstructure:"flood_interval"`
	Store           StoreConfig   `mapstructure:"store"`
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults. CHAT_* environment variables
// override both (CHAT_PASSKEY, CHAT_STORE_DRIVER, ...).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("chat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	return decode(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("secret", "change-me-please-0123")
	v.SetDefault("room", "main")
	v.SetDefault("passkey", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("ephemeral_ttl", "10s")
	v.SetDefault("ephemeral_max_ttl", "5m")
	v.SetDefault("flood_limit", 5)
	v.SetDefault("flood_interval", "3s")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "")
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("room", cfg.Room).Str("store", cfg.Store.Driver).Bool("passkey", cfg.Passkey != "").Msg("config ready")
	return &cfg, nil
}
