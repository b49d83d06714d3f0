package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/image/draw"
)

// Encoder turns a raster into a displayable byte stream.
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
	ContentType() string
}

type pngEncoder struct {
	enc png.Encoder
}

func (e *pngEncoder) Encode(w io.Writer, img image.Image) error { return e.enc.Encode(w, img) }
func (e *pngEncoder) ContentType() string                       { return "image/png" }

type jpegEncoder struct {
	quality int
}

func (e *jpegEncoder) Encode(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: e.quality})
}
func (e *jpegEncoder) ContentType() string { return "image/jpeg" }

// NewEncoder returns the encoder for opts.Format.
func NewEncoder(opts *Options) (Encoder, error) {
	switch strings.ToLower(opts.Format) {
	case "", "png":
		return &pngEncoder{enc: png.Encoder{CompressionLevel: png.BestSpeed}}, nil
	case "jpeg", "jpg":
		quality := opts.Quality
		if quality < 1 || quality > 100 {
			quality = jpeg.DefaultQuality
		}
		return &jpegEncoder{quality: quality}, nil
	default:
		return nil, fmt.Errorf("unsupported render format: %s", opts.Format)
	}
}

// RenderedPage is a decoded page that made it into a displayable resource.
type RenderedPage struct {
	PageNumber int
	Resource   *Resource
}

// Renderer encodes decoded pages and registers them in a ResourceStore.
type Renderer struct {
	encoder   Encoder
	maxWidth  int
	resources *ResourceStore
	log       *slog.Logger
	observer  Observer
}

// NewRenderer creates a renderer from options.
func NewRenderer(opts *Options, resources *ResourceStore, log *slog.Logger, observer Observer) (*Renderer, error) {
	encoder, err := NewEncoder(opts)
	if err != nil {
		return nil, err
	}
	return NewRendererWithEncoder(encoder, opts.MaxWidth, resources, log, observer), nil
}

// NewRendererWithEncoder creates a renderer around a custom encoder.
func NewRendererWithEncoder(encoder Encoder, maxWidth int, resources *ResourceStore, log *slog.Logger, observer Observer) *Renderer {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Renderer{
		encoder:   encoder,
		maxWidth:  maxWidth,
		resources: resources,
		log:       log,
		observer:  observer,
	}
}

// Render encodes one page. Failures are reported as PageFailure.
func (r *Renderer) Render(page *DecodedPage) (RenderedPage, error) {
	if page == nil || page.Width <= 0 || page.Height <= 0 || len(page.Pixels) < page.Width*page.Height*4 {
		return RenderedPage{}, pageFailure(pageIndex(page), errNoPixelData)
	}

	img := r.scale(page.Image())

	var buf bytes.Buffer
	if err := r.encoder.Encode(&buf, img); err != nil {
		return RenderedPage{}, pageFailure(page.Index, fmt.Errorf("encode: %w", err))
	}
	if buf.Len() == 0 {
		return RenderedPage{}, pageFailure(page.Index, errors.New("encode: empty output"))
	}

	b := img.Bounds()
	res := r.resources.Put(r.encoder.ContentType(), b.Dx(), b.Dy(), buf.Bytes())
	return RenderedPage{PageNumber: page.Index, Resource: res}, nil
}

// RenderAll renders pages in order and drops the ones that fail. If none
// survive it returns NoValidFrames. On cancellation every resource created
// so far is released.
func (r *Renderer) RenderAll(ctx context.Context, pages []*DecodedPage) ([]RenderedPage, error) {
	rendered := make([]RenderedPage, 0, len(pages))
	var failures []*DecodeError

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			r.Release(rendered)
			return nil, err
		}
		out, err := r.Render(page)
		if err != nil {
			r.log.Warn("Dropping page that failed to render", "page", pageIndex(page), "error", err)
			r.observer.RecordPageFailure("render")
			var de *DecodeError
			if errors.As(err, &de) {
				failures = append(failures, de)
			}
			continue
		}
		rendered = append(rendered, out)
	}

	if len(rendered) == 0 {
		return nil, &DecodeError{Kind: NoValidFrames, Err: joinFailures(failures)}
	}
	return rendered, nil
}

// Release frees the resources behind pages. Calling it again is a no-op.
func (r *Renderer) Release(pages []RenderedPage) {
	for _, p := range pages {
		if p.Resource != nil {
			r.resources.Release(p.Resource.ID)
		}
	}
}

func (r *Renderer) scale(src *image.RGBA) image.Image {
	b := src.Bounds()
	if r.maxWidth <= 0 || b.Dx() <= r.maxWidth {
		return src
	}
	height := max(b.Dy()*r.maxWidth/b.Dx(), 1)
	dst := image.NewRGBA(image.Rect(0, 0, r.maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Rect, src, b, draw.Src, nil)
	return dst
}

func pageIndex(page *DecodedPage) int {
	if page == nil {
		return 0
	}
	return page.Index
}
