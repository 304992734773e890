package log

import (
	"github.com/spf13/pflag"
)

// Options contains configuration settings for the logger.
type Options struct {
	Name string `mapstructure:"LOG_NAME"`

	// Level is the minimum log level: debug, info, warn or error.
	Level string `mapstructure:"LOG_LEVEL"`

	// Format is either json or console.
	Format string `mapstructure:"LOG_FORMAT"`

	DisableCaller bool `mapstructure:"LOG_DISABLE_CALLER"`

	// CallerSkip is 2 for calls through the package-level helpers.
	CallerSkip int

	OutputPaths []string
}

func NewOptions() *Options {
	return &Options{
		Level:       "info",
		Format:      "json",
		CallerSkip:  2,
		OutputPaths: []string{"stdout"},
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Name, "log.name", o.Name, "An optional name for the logger.")
	fs.StringVar(&o.Level, "log.level", o.Level, "The minimum log level to output (debug, info, warn, error).")
	fs.StringVar(&o.Format, "log.format", o.Format, "The log output format (json or console).")
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, "Disable the caller field in logs.")
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths, "Log output paths (stdout, stderr or a file).")
}
