// Package asset models downloaded media files and their ownership:
// every asset belongs to exactly one job and is deleted when that job
// finishes.
package asset
