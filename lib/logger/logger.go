package logger

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"

	logFileName = "invitetrack.log"
)

// SetupLogger returns a text logger: stdout at debug for local, a file in
// logDir at debug for dev and at info for prod.
func SetupLogger(env, logDir string) *slog.Logger {
	var out io.Writer = os.Stdout
	if env != envLocal {
		logPath := filepath.Join(logDir, logFileName)
		logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("error opening log file: ", err)
		}
		log.Printf("env: %s; log file: %s", env, logPath)
		out = logFile
	}

	level, ok := levelForEnv(env)
	if !ok {
		log.Fatal("invalid environment: ", env)
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func levelForEnv(env string) (slog.Level, bool) {
	switch env {
	case envLocal, envDev:
		return slog.LevelDebug, true
	case envProd:
		return slog.LevelInfo, true
	}
	return 0, false
}

// ParseLevel maps a config string to a level; unknown values give warn.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelWarn
	}
	return level
}
