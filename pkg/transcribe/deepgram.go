// Package transcribe implements speech-to-text collaborators for the analysis pipeline.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/nzoschke/trackscope/pkg/analysis"
)

// DefaultBaseURL is the Deepgram pre-recorded transcription endpoint.
const DefaultBaseURL = "https://api.deepgram.com/v1/listen"

// Deepgram transcribes audio with the Deepgram pre-recorded API.
type Deepgram struct {
	APIKey  string
	BaseURL string
	Model   string
	Client  *http.Client
}

// NewDeepgram returns a client for the nova-2 model.
func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{
		APIKey:  apiKey,
		BaseURL: DefaultBaseURL,
		Model:   "nova-2",
		Client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

type dgWord struct {
	Word           string  `json:"word"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Confidence     float64 `json:"confidence"`
	PunctuatedWord string  `json:"punctuated_word"`
}

type dgSentence struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type dgResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string   `json:"transcript"`
				Words      []dgWord `json:"words"`
				Paragraphs struct {
					Paragraphs []struct {
						Sentences []dgSentence `json:"sentences"`
						Start     float64      `json:"start"`
						End       float64      `json:"end"`
					} `json:"paragraphs"`
				} `json:"paragraphs"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Transcript string  `json:"transcript"`
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Confidence float64 `json:"confidence"`
			Speaker    int     `json:"speaker"`
		} `json:"utterances"`
	} `json:"results"`
}

// Transcribe implements analysis.Transcriber. Errors wrap analysis.ErrTranscription.
func (d *Deepgram) Transcribe(ctx context.Context, audio []byte, contentType string) (*analysis.Transcription, error) {
	endpoint, err := d.endpoint()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", analysis.ErrTranscription, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", analysis.ErrTranscription, err)
	}
	req.Header.Set("Authorization", "Token "+d.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", analysis.ErrTranscription, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: deepgram error: %s - %s", analysis.ErrTranscription, resp.Status, strings.TrimSpace(string(body)))
	}

	var dg dgResponse
	if err := json.NewDecoder(resp.Body).Decode(&dg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse deepgram response: %w", analysis.ErrTranscription, err)
	}

	t := convert(&dg)
	log.Debugf("transcribed %d words, %d utterances", len(t.Words), len(t.Utterances))
	return t, nil
}

func (d *Deepgram) endpoint() (string, error) {
	base := d.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	model := d.Model
	if model == "" {
		model = "nova-2"
	}
	q := u.Query()
	q.Set("model", model)
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	q.Set("paragraphs", "true")
	q.Set("utterances", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// convert maps the first alternative of the first channel plus utterances.
func convert(dg *dgResponse) *analysis.Transcription {
	t := &analysis.Transcription{
		Words:      []analysis.Word{},
		Paragraphs: []analysis.Paragraph{},
		Utterances: []analysis.Utterance{},
	}

	if len(dg.Results.Channels) > 0 && len(dg.Results.Channels[0].Alternatives) > 0 {
		alt := dg.Results.Channels[0].Alternatives[0]
		t.Text = alt.Transcript

		for _, w := range alt.Words {
			t.Words = append(t.Words, analysis.Word(w))
		}

		for _, p := range alt.Paragraphs.Paragraphs {
			para := analysis.Paragraph{
				Start:     p.Start,
				End:       p.End,
				Sentences: make([]analysis.Sentence, 0, len(p.Sentences)),
			}
			texts := make([]string, 0, len(p.Sentences))
			for _, s := range p.Sentences {
				para.Sentences = append(para.Sentences, analysis.Sentence(s))
				texts = append(texts, s.Text)
			}
			para.Text = strings.Join(texts, " ")
			t.Paragraphs = append(t.Paragraphs, para)
		}
	}

	for _, u := range dg.Results.Utterances {
		t.Utterances = append(t.Utterances, analysis.Utterance{
			Transcript: u.Transcript,
			Start:      u.Start,
			End:        u.End,
			Confidence: u.Confidence,
			Speaker:    u.Speaker,
		})
	}
	return t
}
