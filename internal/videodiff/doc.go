// Package videodiff compares the picture of two media files.
//
// Frames are sampled on a grid derived from the job's sensitivity profile,
// compared through the Vision capability and grouped into runs of flagged
// samples; each run becomes one video_frame difference. When the profile
// enables OCR, on-screen text is extracted on both sides and snippets present
// on only one side become ocr_text differences.
package videodiff
