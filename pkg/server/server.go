// Package server provides the Echo HTTP surface for track analysis.
package server

import (
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/nzoschke/trackscope/pkg/analysis"
	"github.com/nzoschke/trackscope/pkg/config"
	"github.com/nzoschke/trackscope/pkg/transcribe"
)

// Server answers analysis requests for uploaded audio files.
type Server struct {
	cfg      config.Config
	analyzer *analysis.Analyzer
	params   analysis.Config

	// UploadDir holds uploads while they are analyzed. Empty means os.TempDir.
	UploadDir string
}

// New creates a Server analyzing uploads with a at cfg.SampleRate.
func New(cfg config.Config, a *analysis.Analyzer) *Server {
	params := analysis.DefaultConfig()
	params.SampleRate = cfg.SampleRate
	return &Server{cfg: cfg, analyzer: a, params: params}
}

// NewAnalyzer builds the analyzer described by cfg: an external tempo command
// when configured, otherwise the autocorrelation estimator, plus Deepgram
// transcription when a key is present.
func NewAnalyzer(cfg config.Config) (*analysis.Analyzer, error) {
	var tempo analysis.TempoEstimator = analysis.NewAutocorrEstimator()
	if fields := strings.Fields(cfg.TempoCommand); len(fields) > 0 {
		cmd, err := analysis.NewCommandEstimator(fields[0], fields[1:]...)
		if err != nil {
			return nil, fmt.Errorf("tempo command: %w", err)
		}
		log.Infof("using tempo command %s", cmd.Path)
		tempo = cmd
	}

	var opts []analysis.Option
	if cfg.DeepgramAPIKey != "" {
		log.Info("transcription enabled")
		opts = append(opts, analysis.WithTranscriber(transcribe.NewDeepgram(cfg.DeepgramAPIKey)))
	}

	if cfg.ModelPath != "" {
		if _, err := os.Stat(cfg.ModelPath); err != nil {
			log.Warnf("model path %s not readable: %v", cfg.ModelPath, err)
		} else {
			log.Infof("models found at %s; mood and genre are not computed", cfg.ModelPath)
		}
	}

	return analysis.New(tempo, opts...), nil
}

// Echo returns the configured router.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(s.cfg.Level())

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     s.cfg.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, "X-API-Key"},
		AllowCredentials: s.cfg.AllowCredentials(),
	}))
	e.Use(middleware.BodyLimit(s.cfg.MaxUpload))
	if s.cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/health"
			},
			Validator: func(key string, c echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIKey)) == 1, nil
			},
			ErrorHandler: func(err error, c echo.Context) error {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing API key")
			},
		}))
	}

	// Routes
	e.GET("/health", health)
	e.POST("/analyze", s.analyze)
	e.POST("/analyze/full", s.analyze)

	return e
}

// Run starts the server on cfg.Addr().
func Run(cfg config.Config) error {
	log.SetLevel(cfg.Level())

	a, err := NewAnalyzer(cfg)
	if err != nil {
		return err
	}

	e := New(cfg, a).Echo()
	log.Infof("listening on %s", cfg.Addr())
	return e.Start(cfg.Addr())
}

// health reports liveness.
func health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// analyze stores the multipart "file" upload in a temporary file that keeps
// its extension and returns the analysis. Fatal analysis failures are
// reported in the body's error field with status 200.
func (s *Server) analyze(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing file upload")
	}

	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable file upload")
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(filepath.Base(fh.Filename)))
	tmp, err := os.CreateTemp(s.UploadDir, "upload-*"+ext)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, err = io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	log.Infof("analyzing %s (%d bytes)", fh.Filename, fh.Size)
	result := s.analyzer.AnalyzeFile(c.Request().Context(), tmpPath, s.params)
	return c.JSON(http.StatusOK, result)
}
