package main

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/perceptual/internal/imageio"
	"github.com/samcharles93/perceptual/internal/logger"
	"github.com/samcharles93/perceptual/internal/nlpd"
	"github.com/samcharles93/perceptual/internal/tensor"
)

type subbandReport struct {
	Level int      `json:"level"`
	Shape []int    `json:"shape"`
	RMS   *float64 `json:"rms,omitempty"`
}

func subbandsCmd(o *globalOptions) *cli.Command {
	var (
		t      transformOptions
		shape  string
		asJSON bool
	)

	return &cli.Command{
		Name:      "subbands",
		Usage:     "Print the subband shapes of the NLP for an image or a shape",
		ArgsUsage: "[image]",
		Flags: append(transformFlags(&t),
			&cli.StringFlag{
				Name:        "shape",
				Usage:       "input shape instead of an image (e.g. 1x256x256x3)",
				Destination: &shape,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print JSON",
				Destination: &asJSON,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyTransformConfig(cmd, o.cfg, &t)

			n, err := t.build()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			var reports []subbandReport
			switch {
			case shape != "" && cmd.Args().Len() > 0:
				return cli.Exit("error: give either an image or --shape, not both", 1)
			case shape != "":
				reports, err = shapeReports(n, shape)
			case cmd.Args().Len() == 1:
				reports, err = imageReports(n, cmd.Args().First(), t.gray)
			default:
				return cli.Exit("error: subbands needs an image or --shape", 1)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Debug("subbands computed", "nlp", n.String(), "levels", len(reports))

			w := stdout(cmd)
			if asJSON {
				return writeJSON(w, reports)
			}
			_, _ = fmt.Fprintln(w, n)
			for _, r := range reports {
				line := fmt.Sprintf("  level %d  %s", r.Level, tensor.Shape(r.Shape))
				if r.RMS != nil {
					line += fmt.Sprintf("  rms=%.6f", *r.RMS)
				}
				_, _ = fmt.Fprintln(w, line)
			}
			return nil
		},
	}
}

func shapeReports(n *nlpd.NLP, text string) ([]subbandReport, error) {
	shape, err := tensor.ParseShape(strings.TrimSpace(text))
	if err != nil {
		return nil, err
	}
	shapes, err := n.SubbandShapes(shape)
	if err != nil {
		return nil, err
	}
	reports := make([]subbandReport, len(shapes))
	for i, s := range shapes {
		reports[i] = subbandReport{Level: i, Shape: []int(s)}
	}
	return reports, nil
}

// imageReports transforms the image at path and reports each subband's RMS.
func imageReports(n *nlpd.NLP, path string, gray bool) ([]subbandReport, error) {
	img, err := imageio.Load(path, imageio.Options{Gray: gray, Format: n.DataFormat()})
	if err != nil {
		return nil, err
	}
	bands, err := n.Transform(img)
	if err != nil {
		return nil, err
	}
	reports := make([]subbandReport, len(bands))
	for i, b := range bands {
		rms := bandRMS(b.Data)
		reports[i] = subbandReport{Level: i, Shape: []int(b.Shape()), RMS: &rms}
	}
	return reports, nil
}

func bandRMS(x []float32) float64 {
	if len(x) == 0 {
		return 0
	}
	var sq float64
	for _, v := range x {
		sq += float64(v) * float64(v)
	}
	return math.Sqrt(sq / float64(len(x)))
}
