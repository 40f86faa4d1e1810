package api

import (
	"net/http"
	"strconv"
	"time"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/history"
	"codeberg.org/mutker/boostctl/internal/mode"
	"codeberg.org/mutker/boostctl/internal/permission"
	"codeberg.org/mutker/boostctl/internal/telemetry"
	"github.com/gin-gonic/gin"
)

const defaultHistorySeconds = 3600

type ModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type ModeResponse struct {
	Mode              mode.Mode `json:"mode"`
	OptimizationScore int       `json:"optimization_score"`
}

type StatusResponse struct {
	ModeResponse
	Snapshots []telemetry.Snapshot `json:"snapshots"`
}

type RangesResponse struct {
	Mode   mode.Mode       `json:"mode"`
	Ranges telemetry.Table `json:"ranges"`
}

type SetupResponse struct {
	Step         permission.Step         `json:"step"`
	Capabilities permission.Capabilities `json:"capabilities"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string           `json:"error"`
	Code  errors.ErrorCode `json:"code"`
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.ErrInternal
	}
	if status >= http.StatusInternalServerError {
		var coded errors.Error
		if errors.As(err, &coded) {
			s.logger.ErrorWithCode(coded).Str("path", c.FullPath()).Msg("Request failed")
		} else {
			s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		}
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func modeResponse(m mode.Mode) ModeResponse {
	return ModeResponse{Mode: m, OptimizationScore: m.OptimizationScore()}
}

// GET /api/status
func (s *Server) handleStatus(c *gin.Context) {
	snapshots := make([]telemetry.Snapshot, 0, len(s.deps.Simulators))
	for _, sim := range s.deps.Simulators {
		snapshots = append(snapshots, sim.Snapshot())
	}

	c.JSON(http.StatusOK, StatusResponse{
		ModeResponse: modeResponse(s.deps.Modes.Mode()),
		Snapshots:    snapshots,
	})
}

// GET /api/mode
func (s *Server) handleGetMode(c *gin.Context) {
	c.JSON(http.StatusOK, modeResponse(s.deps.Modes.Mode()))
}

// PUT /api/mode
func (s *Server) handleSetMode(c *gin.Context) {
	var req ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, errors.New().Wrap(errors.ErrInvalidArgument, err))
		return
	}

	m, err := mode.ParseMode(req.Mode)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	if err := s.deps.Modes.SetMode(m); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	c.JSON(http.StatusOK, modeResponse(s.deps.Modes.Mode()))
}

// GET /api/ranges?mode=boost
func (s *Server) handleRanges(c *gin.Context) {
	m := s.deps.Modes.Mode()
	if name := c.Query("mode"); name != "" {
		parsed, err := mode.ParseMode(name)
		if err != nil {
			s.fail(c, http.StatusBadRequest, err)
			return
		}
		m = parsed
	}

	table, err := telemetry.ModeTable(m)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	c.JSON(http.StatusOK, RangesResponse{Mode: m, Ranges: table})
}

// GET /api/history?duration=3600&source=primary
func (s *Server) handleHistory(c *gin.Context) {
	if s.deps.History == nil || !s.deps.History.Enabled() {
		s.fail(c, http.StatusServiceUnavailable, errors.New().New(history.ErrDisabled))
		return
	}

	seconds := defaultHistorySeconds
	if raw := c.Query("duration"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.fail(c, http.StatusBadRequest, errors.New().WithData(errors.ErrInvalidArgument, raw))
			return
		}
		seconds = n
	}
	source := c.Query("source")

	since := time.Now().Add(-time.Duration(seconds) * time.Second)
	samples, err := s.deps.History.Query(c.Request.Context(), since, source)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	if samples == nil {
		samples = []history.Sample{}
	}

	c.JSON(http.StatusOK, gin.H{
		"duration": seconds,
		"source":   source,
		"count":    len(samples),
		"data":     samples,
	})
}

func (s *Server) setupResponse(step permission.Step) SetupResponse {
	return SetupResponse{
		Step:         step,
		Capabilities: s.deps.Capabilities.Capabilities(),
	}
}

// GET /api/setup
func (s *Server) handleSetup(c *gin.Context) {
	c.JSON(http.StatusOK, s.setupResponse(s.deps.Setup.Step()))
}

// POST /api/setup/capabilities
func (s *Server) handleCapabilities(c *gin.Context) {
	var caps permission.Capabilities
	if err := c.ShouldBindJSON(&caps); err != nil {
		s.fail(c, http.StatusBadRequest, errors.New().Wrap(errors.ErrInvalidArgument, err))
		return
	}

	s.deps.Capabilities.Set(caps)
	s.logger.Info().
		Bool("overlay", caps.Overlay).
		Bool("write_settings", caps.WriteSettings).
		Msg("Host capabilities updated")

	c.JSON(http.StatusOK, s.setupResponse(s.deps.Setup.Step()))
}

// POST /api/setup/advance
func (s *Server) handleAdvance(c *gin.Context) {
	c.JSON(http.StatusOK, s.setupResponse(s.deps.Setup.Advance()))
}

// POST /api/setup/recheck
func (s *Server) handleRecheck(c *gin.Context) {
	c.JSON(http.StatusOK, s.setupResponse(s.deps.Setup.Recheck()))
}
