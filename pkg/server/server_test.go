package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/nzoschke/trackscope/pkg/analysis"
	"github.com/nzoschke/trackscope/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedTempo struct{}

func (fixedTempo) EstimateTempo(context.Context, *analysis.PCMBuffer) (*analysis.Tempo, error) {
	return &analysis.Tempo{BPM: 100, Beats: []float64{0.6, 1.2}, Confidence: 0.7}, nil
}

func newServer(t *testing.T, cfg config.Config) (*echo.Echo, string) {
	t.Helper()
	s := New(cfg, analysis.New(fixedTempo{}))
	s.UploadDir = t.TempDir()
	return s.Echo(), s.UploadDir
}

func wavBytes(t *testing.T, seconds float64) []byte {
	t.Helper()
	samples := make([]float64, int(seconds*44100))
	for i := range samples {
		if i%4410 == 0 {
			samples[i] = 0.9
		}
	}
	path := filepath.Join(t.TempDir(), "upload.wav")
	require.NoError(t, analysis.WriteWAV(path, analysis.NewPCMBuffer(samples, 44100)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func uploadRequest(t *testing.T, target, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "upload not removed")
}

func TestHealth(t *testing.T) {
	e, _ := newServer(t, config.Default())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestAnalyze(t *testing.T) {
	e, dir := newServer(t, config.Default())
	data := wavBytes(t, 2)

	for _, target := range []string{"/analyze", "/analyze/full"} {
		t.Run(target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, uploadRequest(t, target, "song.wav", data))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var result analysis.Result
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
			assert.Empty(t, result.Error)
			assert.Equal(t, 100.0, result.BPM)
			assert.InDelta(t, 2.0, result.Duration, 1e-9)
			assert.NotEmpty(t, result.Structure.Sections)
			assert.Nil(t, result.Mood)
			assert.Nil(t, result.Genre)
			assert.Nil(t, result.Transcription)

			assertEmptyDir(t, dir)
		})
	}
}

func TestAnalyze_DecodeFailure(t *testing.T) {
	e, dir := newServer(t, config.Default())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, uploadRequest(t, "/analyze", "notes.txt", []byte("not audio")))
	require.Equal(t, http.StatusOK, rec.Code)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fields))
	assert.Contains(t, fields["error"], analysis.ErrDecodeFailure.Error())
	assert.Equal(t, 0.0, fields["bpm"])
	assert.Equal(t, []any{}, fields["onsets"])
	assertEmptyDir(t, dir)
}

func TestAnalyze_MissingFile(t *testing.T) {
	e, _ := newServer(t, config.Default())

	req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyze_BodyLimit(t *testing.T) {
	cfg := config.Default()
	cfg.MaxUpload = "1K"
	e, _ := newServer(t, cfg)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, uploadRequest(t, "/analyze", "song.wav", wavBytes(t, 1)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAPIKey(t *testing.T) {
	cfg := config.Default()
	cfg.APIKey = "s3cret"
	e, _ := newServer(t, cfg)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, uploadRequest(t, "/analyze", "song.wav", wavBytes(t, 1)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := uploadRequest(t, "/analyze", "song.wav", wavBytes(t, 1))
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = uploadRequest(t, "/analyze", "song.wav", wavBytes(t, 1))
	req.Header.Set("X-API-Key", "s3cret")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	t.Run("wildcard", func(t *testing.T) {
		e, _ := newServer(t, config.Default())

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(echo.HeaderOrigin, "https://app.example")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
		assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
	})

	t.Run("listed origins", func(t *testing.T) {
		cfg := config.Default()
		cfg.AllowedOrigins = []string{"https://app.example"}
		e, _ := newServer(t, cfg)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(echo.HeaderOrigin, "https://app.example")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, "https://app.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
		assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))

		req = httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(echo.HeaderOrigin, "https://evil.example")
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	})
}

func TestNewAnalyzer(t *testing.T) {
	cfg := config.Default()
	_, err := NewAnalyzer(cfg)
	require.NoError(t, err)

	cfg.DeepgramAPIKey = "dg"
	cfg.ModelPath = filepath.Join(t.TempDir(), "missing")
	_, err = NewAnalyzer(cfg)
	require.NoError(t, err)

	cfg.TempoCommand = "no-such-beat-tracker-binary --fast"
	_, err = NewAnalyzer(cfg)
	assert.Error(t, err)
}
