package fswatch

import (
	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/arlojansen/mediaforge/internal/ingest/ports"
)

// EventFromPorts converts an externally supplied ports.WatchEvent into a
// core Event, for callers that inject events outside the debounce
// pipeline (PublishMediaEvent, the demo resizer's synthetic creates).
// Unlike classifyAndClamp, paths here are used exactly as given (callers
// pass absolute paths under the library root) and are not re-clamped.
func EventFromPorts(libraryID ids.LibraryID, rootPath string, raw ports.WatchEvent) Event {
	kind := fromPortsKind(raw.Kind)
	ev := Event{LibraryID: libraryID, RootPath: rootPath, Kind: kind}
	if len(raw.Paths) > 0 {
		ev.Path = raw.Paths[0]
	}
	if kind == Moved && len(raw.Paths) > 1 {
		ev.OldPath = raw.Paths[1]
	}
	return ev
}
