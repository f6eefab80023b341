package analysis

import "errors"

var (
	// ErrInvalidParameters reports malformed frame, hop, rate or span settings.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrDecodeFailure reports that an audio file could not be turned into a PCM buffer.
	ErrDecodeFailure = errors.New("decode failure")
	// ErrTempoEstimation is fatal: no analysis is reported without a tempo.
	ErrTempoEstimation = errors.New("tempo estimation failure")
	// ErrOnsetDetection degrades to an empty onset list.
	ErrOnsetDetection = errors.New("onset detection failure")
	// ErrTranscription degrades to a null transcription.
	ErrTranscription = errors.New("transcription failure")
)
