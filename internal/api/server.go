// Package api serves the perceptual transforms and PIM model metadata over
// HTTP.
package api

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/perceptual/internal/logger"
	"github.com/samcharles93/perceptual/internal/nlpd"
	"github.com/samcharles93/perceptual/internal/pim"
	"github.com/samcharles93/perceptual/internal/tensor"
)

// Server holds the handlers of the HTTP API.
type Server struct {
	defaults nlpd.Config
	models   ModelProvider
	log      logger.Logger
}

// NewServer returns a Server whose transforms default to defaults. models may
// be nil, in which case the model endpoints answer 404.
func NewServer(defaults nlpd.Config, models ModelProvider, log logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		defaults: defaults,
		models:   models,
		log:      log,
	}
}

// Register mounts the API routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)

	e.POST("/v1/subbands", s.handleSubbands)
	e.POST("/v1/nlpd", s.handleDistance)

	e.GET("/v1/models", s.handleListModels)
	e.GET("/v1/models/:name", s.handleGetModel)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// transform builds the NLP for a request from the server defaults and the
// request's overrides.
func (s *Server) transform(opts TransformOptions) (*nlpd.NLP, error) {
	cfg := s.defaults
	if opts.NumLevels != nil {
		cfg.NumLevels = *opts.NumLevels
		if cfg.NumLevels == 0 {
			return nil, newInvalidRequest("num_levels", "num_levels must be positive")
		}
	}
	if opts.Gamma != nil {
		cfg.Gamma = *opts.Gamma
		if cfg.Gamma == 0 {
			return nil, newInvalidRequest("gamma", "gamma must be positive")
		}
	}
	if opts.DataFormat != nil {
		cfg.DataFormat = *opts.DataFormat
		if cfg.DataFormat == "" {
			return nil, newInvalidRequest("data_format", "data_format must not be empty")
		}
	}
	return nlpd.NewFromConfig(cfg)
}

func (s *Server) handleSubbands(c *echo.Context) error {
	req, err := decodeJSON[SubbandsRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if len(req.Shape) == 0 {
		return writeDomainError(c, newInvalidRequest("shape", "shape is required"))
	}
	n, err := s.transform(req.TransformOptions)
	if err != nil {
		return writeDomainError(c, err)
	}
	shapes, err := n.SubbandShapes(tensor.Shape(req.Shape))
	if err != nil {
		return writeDomainError(c, err)
	}

	resp := SubbandsResponse{
		ID:         newSubbandsID(),
		Object:     "subbands",
		NumLevels:  n.NumLevels(),
		Gamma:      n.Gamma(),
		DataFormat: string(n.DataFormat()),
		Shapes:     make([][]int, len(shapes)),
	}
	for i, sh := range shapes {
		resp.Shapes[i] = []int(sh)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDistance(c *echo.Context) error {
	req, err := decodeJSON[DistanceRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	n, err := s.transform(req.TransformOptions)
	if err != nil {
		return writeDomainError(c, err)
	}
	a, err := req.A.tensor()
	if err != nil {
		return writeDomainError(c, newInvalidRequest("a", err.Error()))
	}
	b, err := req.B.tensor()
	if err != nil {
		return writeDomainError(c, newInvalidRequest("b", err.Error()))
	}
	d, err := n.Distance(a, b)
	if err != nil {
		return writeDomainError(c, err)
	}
	s.log.Debug("nlpd computed", "shape", a.Shape().String(), "levels", n.NumLevels(), "distance", d)
	return c.JSON(http.StatusOK, DistanceResponse{
		ID:       newDistanceID(),
		Object:   "distance",
		Metric:   "nlpd",
		Distance: d,
	})
}

func (s *Server) handleListModels(c *echo.Context) error {
	list := ModelList{Object: "list", Data: []pim.CachedModel{}}
	if s.models != nil {
		models, err := s.models.List()
		if err != nil {
			return writeDomainError(c, err)
		}
		if models != nil {
			list.Data = models
		}
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetModel(c *echo.Context) error {
	name := c.Param("name")
	if s.models == nil {
		return writeNotFound(c, "model "+name+" not found")
	}
	model, err := s.models.Model(c.Request().Context(), name)
	if err != nil {
		s.log.Warn("model load failed", "model", name, "error", err)
		return writeDomainError(c, err)
	}
	weights := model.WeightNames()
	return c.JSON(http.StatusOK, ModelInfo{
		ID:            name,
		Object:        "model",
		Params:        model.Params(),
		Frontend:      model.Frontend().String(),
		NumParameters: model.NumParameters(),
		Weights:       weights,
	})
}
