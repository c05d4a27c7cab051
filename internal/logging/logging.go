package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	LevelKey   = "log.level"
	FormatKey  = "log.format"
	NoColorKey = "log.no_color"
)

// InitDefault sets up a usable console logger before flags and config are
// parsed, so early failures are still readable.
func InitDefault() {
	log.Logger = zerolog.New(consoleWriter(false)).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init configures the global logger from viper settings.
func Init() {
	level, err := zerolog.ParseLevel(viper.GetString(LevelKey))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	switch viper.GetString(FormatKey) {
	case "json":
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	default:
		log.Logger = zerolog.New(consoleWriter(viper.GetBool(NoColorKey))).
			With().Timestamp().Logger()
	}
}

func consoleWriter(noColor bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	}
}
