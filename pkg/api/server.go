// Package api provides the REST API server for controlling a playback session
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/james-see/midiplayback/pkg/playback"
	"github.com/james-see/midiplayback/pkg/session"
	"github.com/james-see/midiplayback/pkg/sink"
	"github.com/james-see/midiplayback/pkg/source"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title MIDI Playback API
// @version 1.0
// @description API for controlling real-time MIDI playback
// @host localhost:8080
// @BasePath /api/v1

// SpeedRequest sets the playback speed.
type SpeedRequest struct {
	Speed float64 `json:"speed" binding:"required,gt=0,lte=16"`
}

// LoopRequest turns looping on or off.
type LoopRequest struct {
	Loop *bool `json:"loop" binding:"required"`
}

// PositionRequest moves the playback position, in seconds.
type PositionRequest struct {
	Position *float64 `json:"position" binding:"required,gte=0"`
}

// ScoreInfo describes an uploaded file.
type ScoreInfo struct {
	Name     string               `json:"name"`
	Format   string               `json:"format"`
	Notes    int                  `json:"notes"`
	Events   int                  `json:"events"`
	Duration float64              `json:"duration"`
	Tempo    []source.TempoChange `json:"tempo"`
}

type server struct {
	session *session.Session
	ports   func() []string
}

// NewRouter builds the API routes for sess.
func NewRouter(sess *session.Session) *gin.Engine {
	return newRouter(sess, sink.ListPorts)
}

func newRouter(sess *session.Session, ports func() []string) *gin.Engine {
	s := &server{session: sess, ports: ports}
	r := gin.Default()

	// CORS middleware
	r.Use(corsMiddleware())

	r.GET("/health", healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/playback", s.getStatus)
		v1.POST("/playback/start", s.start)
		v1.POST("/playback/stop", s.stop)
		v1.POST("/playback/rewind", s.rewind)
		v1.PUT("/playback/speed", s.setSpeed)
		v1.PUT("/playback/loop", s.setLoop)
		v1.PUT("/playback/position", s.setPosition)
		v1.GET("/ports", s.listPorts)
		v1.GET("/formats", listFormats)
		v1.POST("/inspect", inspect)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// StartServer starts the API server on the specified port
func StartServer(sess *session.Session, port int) error {
	return NewRouter(sess).Run(fmt.Sprintf(":%d", port))
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// playbackError maps playback errors to HTTP responses.
func playbackError(c *gin.Context, err error) {
	var cfgErr *playback.ConfigurationError
	switch {
	case errors.Is(err, playback.ErrDisposed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "midiplayback",
	})
}

// getStatus godoc
// @Summary Playback status
// @Description Returns the state, position and settings of the playback
// @Tags playback
// @Produce json
// @Success 200 {object} session.Status
// @Router /api/v1/playback [get]
func (s *server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Status())
}

// start godoc
// @Summary Start playback
// @Description Starts or resumes playback. A finished playback restarts from the beginning.
// @Tags playback
// @Produce json
// @Success 200 {object} session.Status
// @Failure 409 {object} map[string]string
// @Router /api/v1/playback/start [post]
func (s *server) start(c *gin.Context) {
	if err := s.session.Playback.Start(); err != nil {
		playbackError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.Status())
}

// stop godoc
// @Summary Stop playback
// @Description Pauses playback at the current position
// @Tags playback
// @Produce json
// @Success 200 {object} session.Status
// @Failure 409 {object} map[string]string
// @Router /api/v1/playback/stop [post]
func (s *server) stop(c *gin.Context) {
	if err := s.session.Playback.Stop(); err != nil {
		playbackError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.Status())
}

// rewind godoc
// @Summary Rewind playback
// @Description Moves the position to the beginning
// @Tags playback
// @Produce json
// @Success 200 {object} session.Status
// @Failure 409 {object} map[string]string
// @Router /api/v1/playback/rewind [post]
func (s *server) rewind(c *gin.Context) {
	if err := s.session.Playback.MoveToStart(); err != nil {
		playbackError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.Status())
}

// setSpeed godoc
// @Summary Set speed
// @Description Changes the playback speed factor without moving the position
// @Tags playback
// @Accept json
// @Produce json
// @Param request body SpeedRequest true "New speed"
// @Success 200 {object} session.Status
// @Failure 400 {object} map[string]string
// @Router /api/v1/playback/speed [put]
func (s *server) setSpeed(c *gin.Context) {
	var req SpeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.session.Playback.SetSpeed(req.Speed); err != nil {
		playbackError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.Status())
}

// setLoop godoc
// @Summary Set looping
// @Description Turns looping on or off. Turning it off lets the current pass finish.
// @Tags playback
// @Accept json
// @Produce json
// @Param request body LoopRequest true "Loop flag"
// @Success 200 {object} session.Status
// @Failure 400 {object} map[string]string
// @Router /api/v1/playback/loop [put]
func (s *server) setLoop(c *gin.Context) {
	var req LoopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.session.Playback.SetLoop(*req.Loop)
	c.JSON(http.StatusOK, s.session.Status())
}

// setPosition godoc
// @Summary Seek
// @Description Moves the playback position. Positions past the end are clamped.
// @Tags playback
// @Accept json
// @Produce json
// @Param request body PositionRequest true "Position in seconds"
// @Success 200 {object} session.Status
// @Failure 400 {object} map[string]string
// @Router /api/v1/playback/position [put]
func (s *server) setPosition(c *gin.Context) {
	var req PositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pos := time.Duration(*req.Position * float64(time.Second))
	if err := s.session.Playback.MoveToTime(pos); err != nil {
		playbackError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.Status())
}

// listPorts godoc
// @Summary List MIDI output ports
// @Description Returns the names of the available MIDI output ports
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/ports [get]
func (s *server) listPorts(c *gin.Context) {
	ports := s.ports()
	if ports == nil {
		ports = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"ports":  ports,
		"output": s.session.Output(),
	})
}

// listFormats godoc
// @Summary List supported formats
// @Description Returns the file formats that can be played
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/formats [get]
func listFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"formats": []source.Format{source.FormatMIDI, source.FormatSeq, source.FormatSyx},
	})
}

// inspect godoc
// @Summary Inspect a file
// @Description Upload a MIDI, .seq or .syx file and receive what playback would see
// @Tags info
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File to inspect"
// @Success 200 {object} ScoreInfo
// @Failure 400 {object} map[string]string
// @Router /api/v1/inspect [post]
func inspect(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	format := source.DetectFormat(header.Filename)
	if format == source.FormatUnknown {
		format = source.DetectFormatFromContent(data)
	}
	score, err := source.Parse(data, format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ScoreInfo{
		Name:     header.Filename,
		Format:   string(score.Format),
		Notes:    score.NoteCount(),
		Events:   len(score.Objects),
		Duration: score.Duration().Seconds(),
		Tempo:    score.Tempo.Changes(),
	})
}
