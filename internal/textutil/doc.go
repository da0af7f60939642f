// Package textutil provides the text normalization and similarity helpers
// used to compare OCR snippets and transcripts.
//
// Normalize folds case and applies NFKC so that visually identical strings
// (full-width digits, ligatures, mixed case) compare equal. Words splits
// normalized text on anything that is not a letter or digit. Fingerprints are
// term-frequency vectors over words of three or more runes and are compared
// with cosine similarity.
package textutil
