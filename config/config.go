package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Library    LibraryConfig    `mapstructure:"library"`
	Conversion ConversionConfig `mapstructure:"conversion"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds library database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LibraryConfig holds scanner settings
type LibraryConfig struct {
	Extensions      []string `mapstructure:"extensions"`
	ConvertedDir    string   `mapstructure:"converted_dir"`
	ScanConcurrency int      `mapstructure:"scan_concurrency"`
}

// ConversionConfig holds transcoder settings
type ConversionConfig struct {
	FFmpegPath  string        `mapstructure:"ffmpeg_path"`
	FFprobePath string        `mapstructure:"ffprobe_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultExtensions are the file extensions treated as playable audio
var DefaultExtensions = []string{".mp3", ".flac", ".alac", ".opus", ".m4a", ".ogg", ".wav", ".aiff", ".aif", ".aac"}

// Load reads configuration from defaults, an optional config file and
// CADENCE_ prefixed environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cadence")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "cadence"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("CADENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Library.Extensions = normalizeExtensions(cfg.Library.Extensions)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Library.ScanConcurrency <= 0 {
		return errors.New("library.scan_concurrency must be positive")
	}
	if c.Conversion.Timeout < 0 {
		return errors.New("conversion.timeout must not be negative")
	}
	if len(c.Library.Extensions) == 0 {
		return errors.New("library.extensions must not be empty")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173", "http://localhost:5174"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.path", defaultDatabasePath())

	v.SetDefault("library.extensions", DefaultExtensions)
	v.SetDefault("library.converted_dir", "converted")
	v.SetDefault("library.scan_concurrency", 4)

	v.SetDefault("conversion.ffmpeg_path", "ffmpeg")
	v.SetDefault("conversion.ffprobe_path", "ffprobe")
	v.SetDefault("conversion.timeout", 30*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// defaultDatabasePath places the database in the user's home directory,
// falling back to the working directory.
func defaultDatabasePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "cadence.db")
	}
	return filepath.Join(homeDir, ".cadence", "library.db")
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		// env values arrive as one space separated string
		for _, e := range strings.FieldsFunc(ext, func(r rune) bool { return r == ',' || r == ' ' }) {
			e = strings.ToLower(e)
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			out = append(out, e)
		}
	}
	return out
}
