// Package tokens provides fast character-ratio token estimation. The
// proxy uses it to report usage when the upstream omits token counts
// and to expose prompt-size metrics without calling a real tokenizer.
package tokens
