package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/perceptual/internal/logger"
	"github.com/samcharles93/perceptual/internal/nlpd"
	"github.com/samcharles93/perceptual/internal/pim"
)

// globalOptions holds the flags shared by every command and the config file
// loaded for this invocation.
type globalOptions struct {
	configPath   string
	weightsCache string
	urlPrefix    string
	logLevel     string
	logFormat    string
	debug        bool

	cfg Config
}

func globalFlags(o *globalOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml",
			Value:       configPath(),
			Sources:     cli.EnvVars(envConfig),
			Destination: &o.configPath,
		},
		&cli.StringFlag{
			Name:        "weights-cache",
			Usage:       "directory trained PIM models are cached in",
			Sources:     cli.EnvVars(envWeightsCache),
			Destination: &o.weightsCache,
		},
		&cli.StringFlag{
			Name:        "url-prefix",
			Usage:       "base URL PIM archives are downloaded from (\"test\" loads untrained models)",
			Sources:     cli.EnvVars(envURLPrefix),
			Destination: &o.urlPrefix,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &o.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text); pretty on a terminal by default",
			Destination: &o.logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &o.debug,
		},
	}
}

// before loads the config file, fills unset global flags from it and puts the
// configured logger on the context.
func (o *globalOptions) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(o.configPath)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	o.cfg = cfg
	applyGlobalConfig(cmd, cfg, o)

	level := logger.ParseLevel(o.logLevel)
	if o.debug {
		level = slog.LevelDebug
	}
	format := o.logFormat
	if format == "" {
		format = "text"
		if isTerminal(os.Stderr) {
			format = "pretty"
		}
	}
	log := logger.ForFormat(format, stderr(cmd), level)
	return logger.WithContext(ctx, log), nil
}

// loader returns a PIM loader for the configured URL prefix.
func (o *globalOptions) loader(log logger.Logger) *pim.Loader {
	return pim.NewLoader(
		pim.WithURLPrefix(resolveURLPrefix(o.urlPrefix)),
		pim.WithLogger(log),
	)
}

// transformOptions selects the NLP for commands that run the transform.
type transformOptions struct {
	numLevels  int64
	gamma      float64
	dataFormat string
	gray       bool
}

func transformFlags(t *transformOptions) []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "num-levels",
			Aliases:     []string{"levels", "l"},
			Usage:       "number of pyramid levels",
			Value:       nlpd.DefaultNumLevels,
			Destination: &t.numLevels,
		},
		&cli.Float64Flag{
			Name:        "gamma",
			Usage:       "exponent of the initial power nonlinearity",
			Value:       nlpd.DefaultGamma,
			Destination: &t.gamma,
		},
		&cli.StringFlag{
			Name:        "data-format",
			Usage:       "tensor layout (channels_last, channels_first)",
			Value:       string(nlpd.DefaultDataFormat),
			Destination: &t.dataFormat,
		},
		&cli.BoolFlag{
			Name:        "gray",
			Usage:       "convert images to a single luma channel",
			Destination: &t.gray,
		},
	}
}

func (t transformOptions) build() (*nlpd.NLP, error) {
	return nlpd.New(
		nlpd.WithNumLevels(int(t.numLevels)),
		nlpd.WithGamma(t.gamma),
		nlpd.WithDataFormat(t.dataFormat),
	)
}

func (t transformOptions) config() nlpd.Config {
	return nlpd.Config{
		NumLevels:  int(t.numLevels),
		Gamma:      t.gamma,
		DataFormat: t.dataFormat,
	}
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}
