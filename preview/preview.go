//go:generate go run go.uber.org/mock/mockgen -source=preview.go -destination=../mocks/mock_document_store.go -package=mocks

// Package preview turns uploaded clinical documents into displayable pages.
//
// The pipeline runs leaves first: Detect sniffs the real format from the
// leading bytes, TiffDecoder splits a multi-page TIFF into RGBA8 frames,
// Renderer encodes each frame into a resource held by a ResourceStore, and
// Session drives the three through a single state machine per preview
// surface.
package preview

import (
	"context"
	"path/filepath"
	"strings"
)

// Document is a fetched blob. FileName and ContentType come from the
// uploader and are hints only; Data decides the format.
type Document struct {
	ID          string
	FileName    string
	ContentType string
	Data        []byte
}

// Extension returns the lower-cased extension of the declared file name
// without the leading dot.
func (d *Document) Extension() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(d.FileName), "."))
}

// DocumentStore fetches documents by ID. Implementations report failures
// as *FetchError so callers can tell not-found from transport errors.
type DocumentStore interface {
	Fetch(ctx context.Context, documentID string) (*Document, error)
}

// Options controls how decoded pages are encoded for display.
type Options struct {
	Format   string // png or jpeg
	Quality  int    // JPEG quality (1-100)
	MaxWidth int    // 0 keeps the decoded width
}

// DefaultOptions returns the default render options.
func DefaultOptions() *Options {
	return &Options{
		Format:   "png",
		Quality:  80,
		MaxWidth: 0,
	}
}

// DecodeOptions bounds the work done for a single TIFF.
type DecodeOptions struct {
	MaxPages       int // 0 decodes every frame
	Workers        int
	MaxFramePixels int
}

// DefaultDecodeOptions mirrors the five-page preview of the web client.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{
		MaxPages:       5,
		Workers:        4,
		MaxFramePixels: 64 << 20,
	}
}
