// Package deck holds the flashcard model and the codec for the two
// supported source formats: tab-delimited text and two-column CSV. Each
// cell may carry an Anki style [sound:filename] marker naming the audio
// file recorded for that side.
package deck
