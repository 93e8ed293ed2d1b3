package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/perceptual/internal/api"
	"github.com/samcharles93/perceptual/internal/logger"
)

func serveCmd(o *globalOptions) *cli.Command {
	var (
		t           transformOptions
		addr        string
		readTimeout time.Duration
		rateLimit   float64
		rateBurst   int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the REST API",
		Flags: append(transformFlags(&t),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Float64Flag{
				Name:        "rate-limit",
				Usage:       "requests per second across all clients (0 disables)",
				Destination: &rateLimit,
			},
			&cli.Int64Flag{
				Name:        "rate-burst",
				Usage:       "burst size for --rate-limit",
				Value:       10,
				Destination: &rateBurst,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyTransformConfig(cmd, o.cfg, &t)
			applyServeConfig(cmd, o.cfg, &addr, &rateLimit, &rateBurst)

			// Fail on a bad default transform before listening.
			if _, err := t.build(); err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}

			cache := resolveWeightsCache(o.weightsCache)
			provider := api.NewCachedModelProvider(o.loader(log), cache)
			server := api.NewServer(t.config(), provider, log)

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			e.Use(api.RateLimit(rateLimit, int(rateBurst)))
			server.Register(e)

			log.Info("starting server", "address", addr, "weights_cache", cache, "url_prefix", resolveURLPrefix(o.urlPrefix))
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
