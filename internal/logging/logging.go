// Package logging configures the process-wide logger.
package logging

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init configures the global logger. An empty path and the special value
// "console" log to stderr; anything else is a file path with rotation, so
// repeated updater runs cannot grow the log without bound.
func Init(level, path string) error {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(parsed)

	if path != "" && path != "console" {
		log.SetOutput(io.Writer(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    5,
			MaxBackups: 4,
			MaxAge:     30,
			Compress:   true,
		}))
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			DisableColors:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
		return nil
	}

	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return nil
}
