// Package folderscan performs the one-level directory walk, file-type
// classification, stat aggregation, and change detection the library
// actor's FolderScan jobs drive (spec.md §4.7).
//
// Grounded on spec.md §4.7 directly; extension sets and season-pattern
// regex ported from the teacher's internal/scanner/scanner.go
// (tvPatterns, videoExtensions) and internal/watcher/watcher.go
// (isMediaExtension), extended to the superset spec.md §4.7 names.
package folderscan

import (
	"path/filepath"
	"strings"
)

// videoExtensions is the superset of the teacher's videoExtensions named
// in spec.md §4.7.
var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true, ".wmv": true,
	".flv": true, ".webm": true, ".m4v": true, ".mpg": true, ".mpeg": true,
	".3gp": true, ".ogv": true, ".ts": true, ".m2ts": true, ".mts": true,
	".vob": true, ".divx": true, ".xvid": true, ".rmvb": true, ".rm": true,
	".asf": true,
}

// isVideoFile reports whether path has a recognized video extension.
func isVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}
