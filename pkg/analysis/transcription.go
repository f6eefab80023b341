package analysis

import "context"

// Transcriber turns raw audio into a timed transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (*Transcription, error)
}

// Transcription is a speech-to-text result with word, paragraph and utterance timing.
type Transcription struct {
	Text       string      `json:"text"`
	Words      []Word      `json:"words"`
	Paragraphs []Paragraph `json:"paragraphs"`
	Utterances []Utterance `json:"utterances"`
}

// Word is a single recognized word.
type Word struct {
	Word           string  `json:"word"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Confidence     float64 `json:"confidence"`
	PunctuatedWord string  `json:"punctuated_word,omitempty"`
}

// Paragraph groups sentences.
type Paragraph struct {
	Text      string     `json:"text"`
	Start     float64    `json:"start"`
	End       float64    `json:"end"`
	Sentences []Sentence `json:"sentences"`
}

// Sentence is a timed sentence inside a paragraph.
type Sentence struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Utterance is a contiguous stretch of speech from one speaker.
type Utterance struct {
	Transcript string  `json:"transcript"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    int     `json:"speaker"`
}
