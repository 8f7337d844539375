package fswatch

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/arlojansen/mediaforge/internal/ingest/pathkey"
	"github.com/arlojansen/mediaforge/internal/ingest/ports"
)

// Root is one watched directory within a library.
type Root struct {
	LibraryID ids.LibraryID
	Path      string
}

// Service runs one debounce loop per registered root and emits flushed
// batches on Batches(). It owns no business logic beyond debounce,
// classification, clamping, and correlation propagation (spec.md §4.5).
type Service struct {
	cfg     Config
	watcher ports.OSWatcher
	batches chan Batch

	mu    sync.Mutex
	stops []context.CancelFunc
}

func NewService(cfg Config, watcher ports.OSWatcher) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:     cfg,
		watcher: watcher,
		batches: make(chan Batch, cfg.channelCapacity()),
	}
}

// Batches is the output channel of debounced, classified, clamped
// batches ready for the library actor to consume.
func (s *Service) Batches() <-chan Batch { return s.batches }

// WatchRoot begins watching root and runs its debounce loop until ctx is
// cancelled or Stop is called.
func (s *Service) WatchRoot(ctx context.Context, root Root) error {
	events, errs, err := s.watcher.Watch(ctx, root.Path, true)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.stops = append(s.stops, cancel)
	s.mu.Unlock()

	go s.debounceLoop(loopCtx, root, events, errs)
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.stops {
		cancel()
	}
	s.stops = nil
}

// debounceLoop implements spec.md §4.5.1: block on the channel while
// pending is empty, otherwise wait up to debounce_window before flushing.
func (s *Service) debounceLoop(ctx context.Context, root Root, events <-chan ports.WatchEvent, errs <-chan error) {
	pending := make([]Event, 0, s.cfg.MaxBatchEvents)
	timer := time.NewTimer(s.cfg.DebounceWindow)
	if !timer.Stop() {
		<-timer.C
	}
	timerActive := false

	flush := func() {
		if len(pending) == 0 {
			return
		}
		propagateCorrelation(pending)
		batch := Batch{LibraryID: root.LibraryID, RootPath: root.Path, Events: pending}
		select {
		case s.batches <- batch:
		case <-ctx.Done():
		}
		pending = make([]Event, 0, s.cfg.MaxBatchEvents)
		timerActive = false
	}

	for {
		select {
		case <-ctx.Done():
			return

		case raw, ok := <-events:
			if !ok {
				return
			}
			ev, accepted := s.classifyAndClamp(root, raw)
			if !accepted {
				continue
			}
			if ev.Kind == Overflow {
				pending = append(pending, ev)
				flush()
				continue
			}
			pending = append(pending, ev)
			if len(pending) >= s.cfg.MaxBatchEvents {
				if timerActive && !timer.Stop() {
					<-timer.C
				}
				timerActive = false
				flush()
				continue
			}
			if !timerActive {
				timer.Reset(s.cfg.DebounceWindow)
				timerActive = true
			}

		case <-timer.C:
			timerActive = false
			flush()

		case err, ok := <-errs:
			if !ok {
				continue
			}
			log.Printf("[fswatch] watcher error on %s: %v", root.Path, err)
			pending = append(pending, Event{LibraryID: root.LibraryID, RootPath: root.Path, Kind: Overflow})
			if timerActive && !timer.Stop() {
				<-timer.C
			}
			timerActive = false
			flush()
		}
	}
}

// classifyAndClamp resolves the owning root, clamps the path, and
// converts the raw ports.WatchEvent into a core Event. Events that
// escape the root or reference hidden/temp files are dropped.
func (s *Service) classifyAndClamp(root Root, raw ports.WatchEvent) (Event, bool) {
	kind := fromPortsKind(raw.Kind)
	if kind == Overflow {
		return Event{LibraryID: root.LibraryID, RootPath: root.Path, Kind: Overflow}, true
	}
	if len(raw.Paths) == 0 {
		return Event{}, false
	}

	path := raw.Paths[0]
	if isHiddenOrTemp(path) {
		return Event{}, false
	}

	rel, err := filepath.Rel(root.Path, path)
	if err != nil {
		return Event{}, false
	}
	clamped, err := pathkey.Clamp(root.Path, rel)
	if err != nil {
		return Event{}, false
	}

	ev := Event{LibraryID: root.LibraryID, RootPath: root.Path, Kind: kind, Path: clamped}
	if kind == Moved && len(raw.Paths) > 1 {
		ev.OldPath = raw.Paths[1]
	}
	return ev, true
}

func fromPortsKind(k ports.WatchEventKind) Kind {
	switch k {
	case ports.WatchEventCreate:
		return Created
	case ports.WatchEventWrite, ports.WatchEventChmod:
		return Modified
	case ports.WatchEventRemove:
		return Deleted
	case ports.WatchEventRename:
		return Moved
	default:
		return Overflow
	}
}

// propagateCorrelation implements spec.md §4.5.4: if any event in the
// flush batch carries a correlation id, every event lacking one inherits
// the first one found.
func propagateCorrelation(events []Event) {
	var found string
	for _, e := range events {
		if e.CorrelationID != "" {
			found = e.CorrelationID
			break
		}
	}
	if found == "" {
		return
	}
	for i := range events {
		if events[i].CorrelationID == "" {
			events[i].CorrelationID = found
		}
	}
}
