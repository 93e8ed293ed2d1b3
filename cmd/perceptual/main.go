package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	opts := &globalOptions{}
	app := &cli.Command{
		Name:  "perceptual",
		Usage: "Perceptual image-quality transforms and PIM model tooling",
		Flags: globalFlags(opts),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			subbandsCmd(opts),
			nlpdCmd(opts),
			pimCmd(opts),
			serveCmd(opts),
			versionCmd(),
		},
	}
	// Global flags may follow the subcommand name, so setup runs once the
	// leaf command has parsed its flags.
	setBefore(app.Commands, opts.before)
	return app
}

func setBefore(cmds []*cli.Command, fn cli.BeforeFunc) {
	for _, c := range cmds {
		if len(c.Commands) > 0 {
			setBefore(c.Commands, fn)
			continue
		}
		c.Before = fn
	}
}
