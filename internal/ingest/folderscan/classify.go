package folderscan

import (
	"regexp"

	"github.com/arlojansen/mediaforge/internal/ingest/inventory"
)

// seasonPattern matches season-folder names, grounded on the teacher's
// tvPatterns season/episode detection idiom in internal/scanner/scanner.go.
var seasonPattern = regexp.MustCompile(`(?i)^(season|s0|s1|series|specials$)`)

// LibraryKind distinguishes the two classification rule sets in spec.md
// §4.7 step 2.
type LibraryKind string

const (
	KindMovies LibraryKind = "movies"
	KindTV     LibraryKind = "tv"
)

// Classify assigns a FolderType per spec.md §4.7 step 2.
func Classify(kind LibraryKind, depth int, folderName string, hasVideoFiles, hasSubdirs bool) inventory.FolderType {
	if kind == KindMovies {
		if hasVideoFiles {
			return inventory.FolderTypeMovie
		}
		if hasSubdirs {
			return inventory.FolderTypeUnknown
		}
		return inventory.FolderTypeExtra
	}

	switch depth {
	case 0:
		return inventory.FolderTypeRoot
	case 1:
		return inventory.FolderTypeTVShow
	case 2:
		if seasonPattern.MatchString(folderName) {
			return inventory.FolderTypeSeason
		}
		return inventory.FolderTypeExtra
	default:
		return inventory.FolderTypeExtra
	}
}
