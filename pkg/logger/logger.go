// Package logx configures the process-global zerolog logger. Components
// derive their own loggers from it with a "component" field.
package logx

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug bool `split_words:"true" default:"false"`

	// PrettyFormat switches to the console writer for local runs; JSON
	// lines otherwise.
	PrettyFormat bool `split_words:"true" default:"false"`
}

var DefaultConfig = &Config{}

func pick(opts ...Config) *Config {
	if len(opts) == 0 {
		return DefaultConfig
	}
	return &opts[0]
}

// Init installs the global logger. Call once at process start; the autoload
// subpackage does it as an import side effect.
func Init(opts ...Config) {
	conf := pick(opts...)

	if conf.PrettyFormat {
		log.Logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	level := zerolog.InfoLevel
	if conf.Debug {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Logger.Level(level).With().Caller().Stack().Logger()
}
