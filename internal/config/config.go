package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Library
	ScanPath      string // Default scan root when no --dir flags are given
	VideoFilename string // Name of the .strm file written under backdrops/

	// Resolution
	TMDBAPIKey     string // Optional; enables language-catalog lookups
	Language       string // Preferred trailer language (ISO 639-1)
	VideoStartTime int    // Seconds skipped at playback start (#t= fragment)
	YtdlpPath      string // Binary used to resolve YouTube handles

	// Scheduling
	ScheduleDays int // Days between passes in --schedule mode (default: 1)
	Workers      int // Concurrent resolution workers (default: 4)

	// Server
	ServerPort string

	// Paths
	ExpirationFile string // $DATA_DIR/trailer_expirations.json
	IgnoreFile     string // $DATA_DIR/ignored_titles.json
	DatabaseFile   string // $DATA_DIR/library.db

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		viper.AddConfigPath(dataDir)
	}
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("VIDEO_FILENAME", "video1.strm")
	viper.SetDefault("LANGUAGE", "en")
	viper.SetDefault("VIDEO_START_TIME", 10)
	viper.SetDefault("YTDLP_PATH", "yt-dlp")
	viper.SetDefault("SCHEDULE_DAYS", 1)
	viper.SetDefault("WORKERS", 4)
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")

	// NOW read DATA_DIR from viper (which has loaded .env file)
	dataDir := viper.GetString("DATA_DIR")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".config", "trailerfin")
	} else {
		// Convert relative path to absolute path
		absPath, err := filepath.Abs(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for DATA_DIR: %w", err)
		}
		dataDir = absPath
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	config := &Config{
		// Library
		ScanPath:      viper.GetString("SCAN_PATH"),
		VideoFilename: viper.GetString("VIDEO_FILENAME"),

		// Resolution
		TMDBAPIKey:     viper.GetString("TMDB_API_KEY"),
		Language:       viper.GetString("LANGUAGE"),
		VideoStartTime: viper.GetInt("VIDEO_START_TIME"),
		YtdlpPath:      viper.GetString("YTDLP_PATH"),

		// Scheduling
		ScheduleDays: viper.GetInt("SCHEDULE_DAYS"),
		Workers:      viper.GetInt("WORKERS"),

		// Server
		ServerPort: viper.GetString("SERVER_PORT"),

		// Paths
		ExpirationFile: filepath.Join(dataDir, "trailer_expirations.json"),
		IgnoreFile:     filepath.Join(dataDir, "ignored_titles.json"),
		DatabaseFile:   filepath.Join(dataDir, "library.db"),

		// Logging
		LogLevel:  viper.GetString("LOG_LEVEL"),
		LogFormat: viper.GetString("LOG_FORMAT"),
	}

	// Nothing is hard-required: a missing TMDB key only disables the
	// language catalog, and scan roots may come from --dir flags instead
	// of SCAN_PATH. Numeric settings are clamped to sane minimums.
	if config.Workers < 1 {
		config.Workers = 4
	}
	if config.ScheduleDays < 1 {
		config.ScheduleDays = 1
	}
	if config.VideoStartTime < 0 {
		config.VideoStartTime = 0
	}

	return config, nil
}

// ScanRoots returns the directories a run should scan: the --dir flags when
// given, otherwise the configured SCAN_PATH. An empty result means the run
// cannot proceed.
func (c *Config) ScanRoots(dirs []string) ([]string, error) {
	if len(dirs) > 0 {
		return dirs, nil
	}
	if c.ScanPath != "" {
		return []string{c.ScanPath}, nil
	}
	return nil, fmt.Errorf("no scan paths provided and SCAN_PATH is not set")
}
