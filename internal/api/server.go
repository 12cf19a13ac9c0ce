// Package api serves quantized tensors over HTTP: upload, inspect, decode
// and multiply them against a vector.
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/qtensor/internal/backend"
	"github.com/samcharles93/qtensor/internal/logger"
	"github.com/samcharles93/qtensor/internal/tensor"
	"github.com/samcharles93/qtensor/pkg/quant"
)

type Server struct {
	store    *TensorStore
	disp     *backend.Dispatcher
	gatherer prometheus.Gatherer
	log      logger.Logger
	clock    func() time.Time
}

type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func NewServer(store *TensorStore, disp *backend.Dispatcher, opts ...Option) *Server {
	if store == nil {
		store = NewTensorStore()
	}
	if disp == nil {
		disp = backend.Default()
	}
	s := &Server{
		store: store,
		disp:  disp,
		log:   logger.Discard(),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/formats", s.handleListFormats)
	e.GET("/v1/capabilities", s.handleCapabilities)

	e.GET("/v1/tensors", s.handleListTensors)
	e.POST("/v1/tensors", s.handleCreateTensor)
	e.GET("/v1/tensors/:id", s.handleGetTensor)
	e.DELETE("/v1/tensors/:id", s.handleDeleteTensor)
	e.GET("/v1/tensors/:id/values", s.handleTensorValues)
	e.GET("/v1/tensors/:id/raw", s.handleTensorRaw)
	e.POST("/v1/tensors/:id/matvec", s.handleMatVec)

	if s.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

func (s *Server) handleListFormats(c *echo.Context) error {
	formats := quant.Formats()
	out := FormatList{Object: "list", Data: make([]FormatInfo, 0, len(formats))}
	for _, f := range formats {
		out.Data = append(out.Data, formatInfo(f))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleCapabilities(c *echo.Context) error {
	caps := s.disp.Capabilities()
	return c.JSON(http.StatusOK, CapabilitiesResponse{
		Object:       "capabilities",
		Capabilities: caps,
		Features:     caps.Features(),
		Backends:     caps.Backends(),
		Threads:      caps.Threads,
	})
}

func (s *Server) handleListTensors(c *echo.Context) error {
	recs := s.store.List()
	data := make([]TensorResponse, 0, len(recs))
	for _, rec := range recs {
		data = append(data, tensorResponse(rec))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"data":   data,
	})
}

func (s *Server) handleCreateTensor(c *echo.Context) error {
	req, err := decodeJSON[CreateTensorRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	t, err := s.buildTensor(&req)
	if err != nil {
		return writeErr(c, err)
	}
	rec := s.store.Create(req.Name, t, s.clock())
	s.log.Debug("tensor stored", "id", rec.ID, "format", t.Format().String(), "shape", t.Shape().String())
	return c.JSON(http.StatusCreated, tensorResponse(rec))
}

func (s *Server) buildTensor(req *CreateTensorRequest) (*quant.Tensor, error) {
	if strings.TrimSpace(req.Format) == "" {
		return nil, newInvalidRequest("format is required")
	}
	f, err := quant.ParseFormat(req.Format)
	if err != nil {
		return nil, newInvalidRequest(err.Error())
	}
	if len(req.Shape) == 0 {
		return nil, newInvalidRequest("shape is required")
	}
	hasValues, hasData := req.Values != nil, req.Data != nil
	if hasValues == hasData {
		return nil, newInvalidRequest("exactly one of values or data is required")
	}
	shape := quant.Shape(req.Shape)
	if hasData {
		return quant.FromBytes(req.Data, shape, f)
	}
	kind, err := parseBackend(req.Backend)
	if err != nil {
		return nil, err
	}
	return s.disp.Quantize(req.Values, shape, f, kind)
}

func (s *Server) lookup(c *echo.Context) (*tensorRecord, error) {
	id := c.Param("id")
	rec, ok := s.store.Get(id)
	if !ok {
		return nil, writeNotFound(c, fmt.Sprintf("tensor %q not found", id))
	}
	return rec, nil
}

func (s *Server) handleGetTensor(c *echo.Context) error {
	rec, err := s.lookup(c)
	if rec == nil {
		return err
	}
	return c.JSON(http.StatusOK, tensorResponse(rec))
}

func (s *Server) handleDeleteTensor(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, fmt.Sprintf("tensor %q not found", id))
	}
	return c.JSON(http.StatusOK, DeleteResponse{ID: id, Object: "tensor.deleted", Deleted: true})
}

func (s *Server) handleTensorValues(c *echo.Context) error {
	rec, err := s.lookup(c)
	if rec == nil {
		return err
	}
	kind, err := parseBackend(c.QueryParam("backend"))
	if err != nil {
		return writeErr(c, err)
	}
	resolved, err := s.disp.Resolve(kind, rec.Tensor.Blocks())
	if err != nil {
		return writeErr(c, err)
	}

	precision := strings.ToLower(strings.TrimSpace(c.QueryParam("precision")))
	var values []float32
	switch precision {
	case "", "f32":
		precision = "f32"
		values, err = s.disp.Dequantize(rec.Tensor, resolved)
	case "f16":
		h, herr := s.disp.DequantizeF16(rec.Tensor, resolved)
		err = herr
		if err == nil {
			values = make([]float32, len(h))
			for i, v := range h {
				values[i] = v.Float32()
			}
		}
	default:
		return writeBadRequest(c, fmt.Sprintf("unknown precision %q (want f32 or f16)", precision))
	}
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, ValuesResponse{
		ID:        rec.ID,
		Object:    "tensor.values",
		Precision: precision,
		Backend:   resolved,
		Values:    values,
	})
}

func (s *Server) handleTensorRaw(c *echo.Context) error {
	rec, err := s.lookup(c)
	if rec == nil {
		return err
	}
	c.Response().Header().Set("X-Qtensor-Format", rec.Tensor.Format().String())
	c.Response().Header().Set("X-Qtensor-Shape", rec.Tensor.Shape().String())
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, rec.Tensor.View())
}

func (s *Server) handleMatVec(c *echo.Context) error {
	rec, err := s.lookup(c)
	if rec == nil {
		return err
	}
	req, err := decodeJSON[MatVecRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	shape := rec.Tensor.Shape()
	if shape.Rank() != 2 {
		return writeBadRequest(c, fmt.Sprintf("matvec needs a rank 2 tensor, got %s", shape))
	}
	y := make([]float32, shape[0])
	if err := tensor.MatVecQuant(y, rec.Tensor, req.X, s.disp.Capabilities().Threads); err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, MatVecResponse{ID: rec.ID, Object: "tensor.matvec", Y: y})
}
