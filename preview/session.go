package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const subscriberBuffer = 16

// Pipeline holds the collaborators shared by every session of a server.
type Pipeline struct {
	Store     DocumentStore
	Decoder   *TiffDecoder
	Renderer  *Renderer
	Resources *ResourceStore
	AllowList []string
	// DownloadURL builds the target of a Delegated action.
	DownloadURL func(documentID string) string
	Log         *slog.Logger
	Observer    Observer
}

// Session previews one document at a time for a single surface. Open and
// Close may be called from any goroutine; a result that arrives after a
// later Open or Close is discarded.
type Session struct {
	p   *Pipeline
	log *slog.Logger

	mu          sync.Mutex
	state       State
	generation  uint64
	cancel      context.CancelFunc
	subscribers map[int]chan State
	nextSub     int
}

// NewSession creates an idle session.
func NewSession(p *Pipeline, log *slog.Logger) *Session {
	pipeline := *p
	if pipeline.Observer == nil {
		pipeline.Observer = NopObserver{}
	}
	if pipeline.AllowList == nil {
		pipeline.AllowList = DefaultAllowList
	}
	return &Session{
		p:           &pipeline,
		log:         log,
		state:       Idle{},
		subscribers: make(map[int]chan State),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Resource returns the resource of pageNumber while the session is Ready.
func (s *Session) Resource(pageNumber int) (*Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ready, ok := s.state.(Ready)
	if !ok {
		return nil, false
	}
	page, found := lo.Find(ready.Pages, func(p RenderedPage) bool {
		return p.PageNumber == pageNumber
	})
	if !found {
		return nil, false
	}
	return page.Resource, true
}

// Open releases whatever the session shows, moves to Loading and runs the
// pipeline for documentID. It returns the state the session ended in, which
// belongs to a later operation if this one was superseded.
func (s *Session) Open(ctx context.Context, documentID string) State {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.abortLocked()
	s.cancel = cancel
	s.setLocked(Loading{DocumentID: documentID})
	s.mu.Unlock()

	next := s.load(opCtx, documentID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.log.Info("Discarding stale preview result", "document_id", documentID, "state", next.Kind())
		s.releaseState(next)
		return s.state
	}
	s.cancel = nil
	s.setLocked(next)
	return next
}

// Close releases whatever the session shows and returns it to Idle. It is
// safe to call repeatedly.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.abortLocked()
	s.setLocked(Idle{})
}

// Subscribe returns a channel receiving every state from now on, starting
// with the current one. Slow subscribers lose the oldest queued states.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan State, subscriberBuffer)
	ch <- s.state
	s.subscribers[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
			close(ch)
		})
	}
	return ch, unsubscribe
}

func (s *Session) abortLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// setLocked installs next, releasing the pages of the state it replaces.
// The pages of a Ready state are pinned for as long as it is current.
func (s *Session) setLocked(next State) {
	s.releaseState(s.state)
	if ready, ok := next.(Ready); ok {
		for _, page := range ready.Pages {
			s.p.Resources.Pin(page.Resource.ID)
		}
	}
	s.state = next
	s.p.Observer.RecordTransition(string(next.Kind()))

	for _, ch := range s.subscribers {
		select {
		case ch <- next:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- next:
			default:
			}
		}
	}
}

func (s *Session) releaseState(st State) {
	if ready, ok := st.(Ready); ok {
		s.p.Renderer.Release(ready.Pages)
	}
}

// load runs fetch, resolve, decode and render. It never panics.
func (s *Session) load(ctx context.Context, documentID string) (next State) {
	log := s.log.With("document_id", documentID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Preview pipeline panicked", "panic", r)
			next = newFailed(documentID, fmt.Errorf("preview pipeline panic: %v", r))
		}
	}()

	doc, err := s.p.Store.Fetch(ctx, documentID)
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{DocumentID: documentID, Err: err}
		}
		log.Warn("Failed to fetch document", "error", err)
		return newFailed(documentID, err)
	}
	if len(doc.Data) == 0 {
		log.Warn("Document is empty")
		return newFailed(documentID, ErrEmptyBuffer)
	}

	res := Resolve(doc, s.p.AllowList)
	if res.Mismatch != nil {
		log.Info("Declared type does not match content, using content", "error", res.Mismatch)
		s.p.Observer.RecordFormatMismatch()
	}

	switch res.Route {
	case RouteDelegate:
		log.Info("Format not previewable, delegating", "format", res.Format, "file_name", doc.FileName)
		return Delegated{
			DocumentID: documentID,
			Action: Action{
				Kind:     ActionOpenExternally,
				FileName: doc.FileName,
				URL:      s.downloadURL(documentID),
			},
		}

	case RoutePassThrough:
		width, height := probeDimensions(doc.Data)
		resource := s.p.Resources.Put(res.Format.ContentType(), width, height, doc.Data)
		return Ready{
			DocumentID: documentID,
			Format:     res.Format,
			Pages:      []RenderedPage{{PageNumber: 1, Resource: resource}},
			TotalPages: 1,
		}

	default:
		decoded, err := s.p.Decoder.Decode(ctx, doc.Data)
		if err != nil {
			log.Warn("Failed to decode TIFF", "error", err)
			return newFailed(documentID, err)
		}
		pages, err := s.p.Renderer.RenderAll(ctx, decoded.Pages)
		if err != nil {
			log.Warn("Failed to render TIFF pages", "error", err)
			return newFailed(documentID, err)
		}
		log.Info("TIFF preview ready", "pages", len(pages), "total_pages", decoded.TotalFrames)
		return Ready{
			DocumentID: documentID,
			Format:     Tiff,
			Pages:      pages,
			TotalPages: decoded.TotalFrames,
		}
	}
}

func (s *Session) downloadURL(documentID string) string {
	if s.p.DownloadURL == nil {
		return ""
	}
	return s.p.DownloadURL(documentID)
}

// probeDimensions reads image dimensions from the header; formats without
// a registered decoder, such as PDF, report zero.
func probeDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
