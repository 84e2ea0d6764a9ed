package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds the defaults of the command line tools. The values come from
// the environment, which main may populate from a .env file first.
type Config struct {
	BPM        float64 // 0 means the tempo of the score
	SampleRate int
	RPCAddress string
	Tuning     string
	Frets      int
	LogLevel   slog.Level
}

func Load() *Config {
	return &Config{
		BPM:        getEnvFloat("TABSTEP_BPM", 0),
		SampleRate: getEnvInt("TABSTEP_SAMPLE_RATE", 44100),
		RPCAddress: getEnv("TABSTEP_RPC_ADDR", "127.0.0.1:31337"),
		Tuning:     getEnv("TABSTEP_TUNING", "E4 B3 G3 D3 A2 E2"),
		Frets:      getEnvInt("TABSTEP_FRETS", 24),
		LogLevel:   parseLevel(getEnv("TABSTEP_LOG_LEVEL", "info")),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultValue
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
