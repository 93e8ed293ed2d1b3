package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/perceptual/internal/logger"
	"github.com/samcharles93/perceptual/internal/pim"
)

type modelReport struct {
	Name          string     `json:"name"`
	Params        pim.Params `json:"params"`
	Frontend      string     `json:"frontend"`
	NumParameters int        `json:"num_parameters"`
	Weights       []string   `json:"weights"`
	Source        string     `json:"source,omitempty"`
}

func pimCmd(o *globalOptions) *cli.Command {
	return &cli.Command{
		Name:  "pim",
		Usage: "Fetch and inspect trained PIM models",
		Commands: []*cli.Command{
			pimFetchCmd(o),
			pimInfoCmd(o),
			pimListCmd(o),
		},
	}
}

func modelArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", cli.Exit(fmt.Sprintf("error: %s needs exactly one model name", cmd.Name), 1)
	}
	name := cmd.Args().First()
	if err := pim.ValidateName(name); err != nil {
		return "", cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return name, nil
}

func pimFetchCmd(o *globalOptions) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download a trained model into the weights cache",
		ArgsUsage: "<model>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			name, err := modelArg(cmd)
			if err != nil {
				return err
			}
			loader := o.loader(log)
			if loader.TestMode() {
				return cli.Exit("error: nothing to fetch with the test URL prefix", 1)
			}
			dir, err := loader.Ensure(ctx, name, resolveWeightsCache(o.weightsCache))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			_, _ = fmt.Fprintln(stdout(cmd), dir)
			return nil
		},
	}
}

func pimInfoCmd(o *globalOptions) *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:      "info",
		Usage:     "Load a model and print its parameters",
		ArgsUsage: "<model>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			name, err := modelArg(cmd)
			if err != nil {
				return err
			}
			model, err := o.loader(log).LoadTrained(ctx, name, resolveWeightsCache(o.weightsCache))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			report := modelReport{
				Name:          name,
				Params:        model.Params(),
				Frontend:      model.Frontend().String(),
				NumParameters: model.NumParameters(),
				Weights:       model.WeightNames(),
				Source:        model.WeightsSource(),
			}

			w := stdout(cmd)
			if asJSON {
				return writeJSON(w, report)
			}
			p := report.Params
			_, _ = fmt.Fprintf(w, "Model: %s\n", report.Name)
			_, _ = fmt.Fprintf(w, "  frontend:       %s\n", report.Frontend)
			_, _ = fmt.Fprintf(w, "  num_filters:    %d\n", p.NumFilters)
			_, _ = fmt.Fprintf(w, "  kernel_size:    %d\n", p.KernelSize)
			_, _ = fmt.Fprintf(w, "  num_components: %d\n", p.NumComponents)
			_, _ = fmt.Fprintf(w, "  embedding_dim:  %d\n", p.EmbeddingDim)
			_, _ = fmt.Fprintf(w, "  parameters:     %d in %d variables\n", report.NumParameters, len(report.Weights))
			if report.Source != "" {
				_, _ = fmt.Fprintf(w, "  weights:        %s\n", report.Source)
			}
			return nil
		},
	}
}

func pimListCmd(o *globalOptions) *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List models in the weights cache",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			dir := resolveWeightsCache(o.weightsCache)
			models, err := pim.ListCached(dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			w := stdout(cmd)
			if asJSON {
				if models == nil {
					models = []pim.CachedModel{}
				}
				return writeJSON(w, models)
			}
			if len(models) == 0 {
				log.Info("no cached models", "path", dir)
				return nil
			}
			_, _ = fmt.Fprintf(w, "Models in %s:\n\n", dir)
			for _, m := range models {
				_, _ = fmt.Fprintf(w, "  %-24s %10s  %s\n", m.Name, formatModelSize(m.Size), m.ModTime.Format("2006-01-02 15:04"))
			}
			_, _ = fmt.Fprintf(w, "\n%d model(s) found\n", len(models))
			return nil
		},
	}
}

func formatModelSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
