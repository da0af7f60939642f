// Package capability defines the black-box analysis capabilities the
// comparison stages depend on and builds the production implementations.
//
// Frame/audio extraction, loudness and diff masks run through ffmpeg. Frame
// similarity, OCR, spectral/MFCC similarity, sync offset and source
// separation run through the analysis helper. Transcription uses the OpenAI
// audio API or the helper depending on [transcription] provider. A Provider
// builds the set once and shares it read-only across workers.
package capability
