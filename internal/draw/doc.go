// Package draw models published draw results and generated entries, and the
// pure rules that relate them: number validation, period arithmetic, prize
// levels and random pick generation.
package draw
