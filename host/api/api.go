// Package api exposes the coupler over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/inconshreveable/log15"

	"gocoupler/host/link"
	"gocoupler/host/network"
	"gocoupler/host/tuner"
	"gocoupler/protocol"
)

// Coupler is the device surface the API drives. *link.Link implements it.
type Coupler interface {
	SendMatrix(ctx context.Context, m [][]bool) (*link.Applied, error)
	StartFrequency(ctx context.Context) error
	StopFrequency(ctx context.Context) error
	Latest() (link.Reading, bool)
	FrequencyMode() bool
}

// MatrixRequest is the body of POST /api/v1/matrix
type MatrixRequest struct {
	Matrix [][]int `json:"matrix" binding:"required"`
}

// MatrixResponse confirms an applied matrix
type MatrixResponse struct {
	Ack  bool      `json:"ack"`
	Echo [][]int   `json:"echo"`
	At   time.Time `json:"ts"`
}

// ModeRequest is the body of POST /api/v1/mode
type ModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// ModeResponse reports the device mode
type ModeResponse struct {
	Mode string `json:"mode"`
}

const (
	modeMatrix    = "matrix"
	modeFrequency = "frequency"
)

// Server holds the API dependencies
type Server struct {
	coupler  Coupler
	onMatrix func(*link.Applied)
	log      log.Logger
}

// NewServer builds a server. onMatrix, if set, is called after every
// applied matrix (the MQTT bridge hooks in here).
func NewServer(c Coupler, onMatrix func(*link.Applied), logger log.Logger) *Server {
	if logger == nil {
		logger = log.New("pkg", "api")
	}
	return &Server{coupler: c, onMatrix: onMatrix, log: logger}
}

// Router returns the gin engine with all routes
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.logErrors)

	r.POST("/api/v1/matrix", s.postMatrix)
	r.GET("/api/v1/mode", s.getMode)
	r.POST("/api/v1/mode", s.postMode)
	r.GET("/api/v1/frequency", s.getFrequency)
	r.POST("/api/v1/network", s.postNetwork)
	r.GET("/api/v1/tune", s.getTune)
	return r
}

// Run serves on addr and blocks
func (s *Server) Run(addr string) error {
	s.log.Info("HTTP API listening", "addr", addr)
	return s.Router().Run(addr)
}

func (s *Server) logErrors(c *gin.Context) {
	c.Next()
	for _, err := range c.Errors {
		s.log.Warn("Request failed", "path", c.Request.URL.Path, "status", c.Writer.Status(), "error", err.Err)
	}
}

func (s *Server) postMatrix(c *gin.Context) {
	var req MatrixRequest
	if err := c.BindJSON(&req); err != nil {
		return
	}

	m := make([][]bool, len(req.Matrix))
	for i, row := range req.Matrix {
		m[i] = make([]bool, len(row))
		for j, v := range row {
			if v != 0 && v != 1 {
				c.AbortWithError(http.StatusBadRequest, protocol.ErrMatrixText)
				return
			}
			m[i][j] = v == 1
		}
	}
	s.apply(c, m)
}

// postNetwork takes a saved .net document and applies its matrix
func (s *Server) postNetwork(c *gin.Context) {
	n, err := network.Load(c.Request.Body)
	if err != nil {
		c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	m, err := n.Matrix()
	if err != nil {
		c.AbortWithError(statusFor(err), err)
		return
	}
	s.apply(c, m)
}

func (s *Server) apply(c *gin.Context, m [][]bool) {
	applied, err := s.coupler.SendMatrix(c.Request.Context(), m)
	if err != nil {
		c.AbortWithError(statusFor(err), err)
		return
	}
	if s.onMatrix != nil {
		s.onMatrix(applied)
	}

	resp := MatrixResponse{Ack: true, At: applied.At}
	for _, row := range applied.Echo {
		cells := make([]int, len(row))
		for j, v := range row {
			if v {
				cells[j] = 1
			}
		}
		resp.Echo = append(resp.Echo, cells)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) currentMode() string {
	if s.coupler.FrequencyMode() {
		return modeFrequency
	}
	return modeMatrix
}

func (s *Server) getMode(c *gin.Context) {
	c.JSON(http.StatusOK, ModeResponse{Mode: s.currentMode()})
}

func (s *Server) postMode(c *gin.Context) {
	var req ModeRequest
	if err := c.BindJSON(&req); err != nil {
		return
	}

	var err error
	switch req.Mode {
	case modeFrequency:
		err = s.coupler.StartFrequency(c.Request.Context())
	case modeMatrix:
		err = s.coupler.StopFrequency(c.Request.Context())
	default:
		c.AbortWithError(http.StatusBadRequest, errors.New("mode must be \"matrix\" or \"frequency\""))
		return
	}
	if err != nil {
		c.AbortWithError(statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, ModeResponse{Mode: s.currentMode()})
}

func (s *Server) getFrequency(c *gin.Context) {
	rd, ok := s.coupler.Latest()
	if !ok {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, rd)
}

// getTune grades the latest reading against ?target=HZ, with an optional
// &range=HZ window
func (s *Server) getTune(c *gin.Context) {
	target, err := strconv.ParseFloat(c.Query("target"), 64)
	if err != nil {
		c.AbortWithError(http.StatusBadRequest, tuner.ErrTarget)
		return
	}
	window := 0.0
	if q := c.Query("range"); q != "" {
		if window, err = strconv.ParseFloat(q, 64); err != nil {
			c.AbortWithError(http.StatusBadRequest, tuner.ErrTarget)
			return
		}
	}
	t, err := tuner.New(target, window)
	if err != nil {
		c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	rd, ok := s.coupler.Latest()
	if !ok {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, t.Compare(rd.Hz))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, protocol.ErrMatrixShape), errors.Is(err, protocol.ErrMatrixText),
		errors.Is(err, network.ErrInvalidNetwork):
		return http.StatusBadRequest
	case errors.Is(err, link.ErrFrequencyMode):
		return http.StatusConflict
	case errors.Is(err, link.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, link.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
