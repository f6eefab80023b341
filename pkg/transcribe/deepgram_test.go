package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nzoschke/trackscope/pkg/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listenResponse = `{
  "results": {
    "channels": [{
      "alternatives": [{
        "transcript": "hello world. goodbye",
        "confidence": 0.98,
        "words": [
          {"word": "hello", "start": 0.1, "end": 0.4, "confidence": 0.99, "punctuated_word": "Hello"},
          {"word": "world", "start": 0.5, "end": 0.9, "confidence": 0.97, "punctuated_word": "world."},
          {"word": "goodbye", "start": 1.2, "end": 1.6, "confidence": 0.95, "punctuated_word": "Goodbye"}
        ],
        "paragraphs": {
          "transcript": "\nHello world. Goodbye",
          "paragraphs": [{
            "sentences": [
              {"text": "Hello world.", "start": 0.1, "end": 0.9},
              {"text": "Goodbye", "start": 1.2, "end": 1.6}
            ],
            "num_words": 3,
            "start": 0.1,
            "end": 1.6
          }]
        }
      }]
    }],
    "utterances": [
      {"start": 0.1, "end": 0.9, "confidence": 0.98, "channel": 0, "transcript": "Hello world.", "speaker": 0, "id": "a"},
      {"start": 1.2, "end": 1.6, "confidence": 0.95, "channel": 0, "transcript": "Goodbye", "speaker": 1, "id": "b"}
    ]
  }
}`

func TestDeepgram_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Content-Type"))

		q := r.URL.Query()
		assert.Equal(t, "nova-2", q.Get("model"))
		for _, flag := range []string{"smart_format", "punctuate", "paragraphs", "utterances"} {
			assert.Equal(t, "true", q.Get(flag), flag)
		}

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, "audio bytes", string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, listenResponse)
	}))
	defer srv.Close()

	dg := NewDeepgram("secret")
	dg.BaseURL = srv.URL
	dg.Client = srv.Client()

	tr, err := dg.Transcribe(context.Background(), []byte("audio bytes"), "audio/mpeg")
	require.NoError(t, err)

	assert.Equal(t, "hello world. goodbye", tr.Text)
	require.Len(t, tr.Words, 3)
	assert.Equal(t, analysis.Word{Word: "hello", Start: 0.1, End: 0.4, Confidence: 0.99, PunctuatedWord: "Hello"}, tr.Words[0])

	require.Len(t, tr.Paragraphs, 1)
	assert.Equal(t, "Hello world. Goodbye", tr.Paragraphs[0].Text)
	assert.Equal(t, 0.1, tr.Paragraphs[0].Start)
	assert.Equal(t, 1.6, tr.Paragraphs[0].End)
	assert.Len(t, tr.Paragraphs[0].Sentences, 2)

	require.Len(t, tr.Utterances, 2)
	assert.Equal(t, "Goodbye", tr.Utterances[1].Transcript)
	assert.Equal(t, 1, tr.Utterances[1].Speaker)
}

func TestDeepgram_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results": {"channels": []}}`)
	}))
	defer srv.Close()

	dg := NewDeepgram("secret")
	dg.BaseURL = srv.URL

	tr, err := dg.Transcribe(context.Background(), []byte("x"), "")
	require.NoError(t, err)
	assert.Empty(t, tr.Text)
	assert.Equal(t, []analysis.Word{}, tr.Words)
	assert.Equal(t, []analysis.Utterance{}, tr.Utterances)
}

func TestDeepgram_Errors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
		}))
		defer srv.Close()

		dg := NewDeepgram("wrong")
		dg.BaseURL = srv.URL

		_, err := dg.Transcribe(context.Background(), []byte("x"), "audio/wav")
		require.ErrorIs(t, err, analysis.ErrTranscription)
		assert.Contains(t, err.Error(), "invalid credentials")
	})

	t.Run("bad json", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "not json")
		}))
		defer srv.Close()

		dg := NewDeepgram("secret")
		dg.BaseURL = srv.URL

		_, err := dg.Transcribe(context.Background(), []byte("x"), "audio/wav")
		assert.ErrorIs(t, err, analysis.ErrTranscription)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		dg := NewDeepgram("secret")
		dg.BaseURL = srv.URL

		_, err := dg.Transcribe(context.Background(), []byte("x"), "audio/wav")
		assert.ErrorIs(t, err, analysis.ErrTranscription)
	})
}
