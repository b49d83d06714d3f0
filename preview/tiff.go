package preview

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/samber/lo"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/sync/errgroup"
)

const (
	leHeader = "II\x2A\x00"
	beHeader = "MM\x00\x2A"

	ifdEntryLen = 12
	maxFrames   = 4096

	dtShort = 3
	dtLong  = 4

	tImageWidth      = 256
	tImageLength     = 257
	tPixelXDimension = 40962
	tPixelYDimension = 40963
)

var (
	errMalformedHeader   = errors.New("malformed TIFF header")
	errInvalidDimensions = errors.New("missing or non-positive dimensions")
	errFrameTooLarge     = errors.New("frame exceeds pixel limit")
	errNoPixelData       = errors.New("pixel decode yielded no data")
)

// DecodedPage is one valid TIFF frame normalized to RGBA8.
type DecodedPage struct {
	Index  int // 1-based frame position
	Width  int
	Height int
	Pixels []byte // row-major RGBA, stride Width*4
}

// Image wraps the pixel plane without copying it.
func (p *DecodedPage) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    p.Pixels,
		Stride: p.Width * 4,
		Rect:   image.Rect(0, 0, p.Width, p.Height),
	}
}

// DecodeResult holds the frames that decoded, in frame order. TotalFrames
// counts every directory in the file, including frames past the page limit.
type DecodeResult struct {
	Pages       []*DecodedPage
	TotalFrames int
	Skipped     []*DecodeError
}

// frame is one image file directory located while walking the chain.
type frame struct {
	index  int
	offset uint32
	width  int
	height int
}

// TiffDecoder splits multi-page TIFFs into frames. A broken frame is
// skipped; only a document with no usable frame fails.
type TiffDecoder struct {
	opts     DecodeOptions
	log      *slog.Logger
	cache    *DecodeCache
	observer Observer
}

// NewTiffDecoder creates a decoder. cache and observer may be nil.
func NewTiffDecoder(opts DecodeOptions, log *slog.Logger, cache *DecodeCache, observer Observer) *TiffDecoder {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &TiffDecoder{
		opts:     opts,
		log:      log,
		cache:    cache,
		observer: observer,
	}
}

// Decode parses every frame directory in data and decodes up to
// opts.MaxPages of them. Frames decode concurrently but the result keeps
// frame order.
func (d *TiffDecoder) Decode(ctx context.Context, data []byte) (*DecodeResult, error) {
	if len(data) == 0 {
		return nil, ErrEmptyBuffer
	}
	if cached, ok := d.cache.Get(data); ok {
		d.log.Debug("TIFF decode cache hit", "pages", len(cached.Pages), "frames", cached.TotalFrames)
		return cached, nil
	}

	start := time.Now()
	order, frames, err := readFrames(data)
	if err != nil {
		err = &DecodeError{Kind: NoValidFrames, Err: err}
		d.observer.RecordDecode(time.Since(start), 0, 0, err)
		return nil, err
	}

	selected := frames
	if d.opts.MaxPages > 0 && len(selected) > d.opts.MaxPages {
		selected = selected[:d.opts.MaxPages]
	}

	pages := make([]*DecodedPage, len(selected))
	failures := make([]*DecodeError, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for i, f := range selected {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			page, err := d.decodeFrame(data, order, f)
			if err != nil {
				failures[i] = pageFailure(f.index+1, err)
				return nil
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("decode TIFF: %w", err)
	}

	result := &DecodeResult{
		Pages:       lo.Compact(pages),
		TotalFrames: len(frames),
		Skipped:     lo.Compact(failures),
	}
	for _, failure := range result.Skipped {
		d.log.Warn("Skipping TIFF frame", "page", failure.Page, "error", failure.Err)
		d.observer.RecordPageFailure("decode")
	}

	if len(result.Pages) == 0 {
		err := &DecodeError{Kind: NoValidFrames, Err: joinFailures(result.Skipped)}
		d.observer.RecordDecode(time.Since(start), len(selected), 0, err)
		return nil, err
	}

	d.observer.RecordDecode(time.Since(start), len(selected), len(result.Pages), nil)
	d.cache.Add(data, result)
	return result, nil
}

func (d *TiffDecoder) decodeFrame(data []byte, order binary.ByteOrder, f frame) (page *DecodedPage, err error) {
	defer func() {
		if r := recover(); r != nil {
			page, err = nil, fmt.Errorf("decoder panic: %v", r)
		}
	}()

	if f.width <= 0 || f.height <= 0 {
		return nil, errInvalidDimensions
	}
	if d.opts.MaxFramePixels > 0 && int64(f.width)*int64(f.height) > int64(d.opts.MaxFramePixels) {
		return nil, fmt.Errorf("%w: %dx%d", errFrameTooLarge, f.width, f.height)
	}

	img, err := tiff.Decode(newFrameReader(data, order, f.offset))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Empty() {
		return nil, errNoPixelData
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	if len(rgba.Pix) == 0 {
		return nil, errNoPixelData
	}

	return &DecodedPage{
		Index:  f.index + 1,
		Width:  b.Dx(),
		Height: b.Dy(),
		Pixels: rgba.Pix,
	}, nil
}

// readFrames walks the IFD chain. A link that points outside the buffer or
// back into the chain ends the walk; frames found before it are kept.
func readFrames(data []byte) (binary.ByteOrder, []frame, error) {
	if len(data) < 8 {
		return nil, nil, errMalformedHeader
	}

	var order binary.ByteOrder
	switch string(data[0:4]) {
	case leHeader:
		order = binary.LittleEndian
	case beHeader:
		order = binary.BigEndian
	default:
		return nil, nil, errMalformedHeader
	}

	size := int64(len(data))
	seen := make(map[uint32]bool)
	var frames []frame

	offset := order.Uint32(data[4:8])
	for offset != 0 && len(frames) < maxFrames {
		if seen[offset] || int64(offset)+2 > size {
			break
		}
		seen[offset] = true

		f := frame{index: len(frames), offset: offset}
		count := int64(order.Uint16(data[offset : offset+2]))
		end := int64(offset) + 2 + count*ifdEntryLen
		if end+4 > size {
			// Truncated directory: the frame exists but cannot be read.
			frames = append(frames, f)
			break
		}

		f.width, f.height = resolveDimensions(order, data[int64(offset)+2:end], data)
		frames = append(frames, f)
		offset = order.Uint32(data[end : end+4])
	}

	if len(frames) == 0 {
		return nil, nil, fmt.Errorf("%w: no image directories", errMalformedHeader)
	}
	return order, frames, nil
}

// resolveDimensions reads ImageWidth/ImageLength, falling back to the EXIF
// pixel dimension tags when the primary fields are absent or zero.
func resolveDimensions(order binary.ByteOrder, entries, data []byte) (int, int) {
	values := make(map[uint16]int, 4)
	for i := 0; i+ifdEntryLen <= len(entries); i += ifdEntryLen {
		entry := entries[i : i+ifdEntryLen]
		tag := order.Uint16(entry[0:2])
		switch tag {
		case tImageWidth, tImageLength, tPixelXDimension, tPixelYDimension:
			values[tag] = firstValue(order, entry, data)
		}
	}

	width := values[tImageWidth]
	if width <= 0 {
		width = values[tPixelXDimension]
	}
	height := values[tImageLength]
	if height <= 0 {
		height = values[tPixelYDimension]
	}
	return width, height
}

// firstValue decodes the first SHORT or LONG of an IFD entry. Other types
// and out-of-range pointers yield 0.
func firstValue(order binary.ByteOrder, entry, data []byte) int {
	datatype := order.Uint16(entry[2:4])
	count := order.Uint32(entry[4:8])
	if count == 0 {
		return 0
	}

	var size uint32
	switch datatype {
	case dtShort:
		size = 2
	case dtLong:
		size = 4
	default:
		return 0
	}

	raw := entry[8:12]
	if uint64(size)*uint64(count) > 4 {
		ptr := int64(order.Uint32(entry[8:12]))
		if ptr+int64(size) > int64(len(data)) {
			return 0
		}
		raw = data[ptr : ptr+int64(size)]
	}

	if datatype == dtShort {
		return int(order.Uint16(raw))
	}
	v := order.Uint32(raw)
	if v > math.MaxInt32 {
		return 0
	}
	return int(v)
}

func joinFailures(failures []*DecodeError) error {
	return errors.Join(lo.Map(failures, func(f *DecodeError, _ int) error { return f })...)
}

// frameReader presents data with the header's first-IFD pointer rewritten,
// so the single-image tiff decoder reads an arbitrary frame. All other
// offsets in a TIFF are absolute and stay valid.
type frameReader struct {
	data   []byte
	header [8]byte
	pos    int64
}

func newFrameReader(data []byte, order binary.ByteOrder, offset uint32) *frameReader {
	r := &frameReader{data: data}
	copy(r.header[:], data[:8])
	order.PutUint32(r.header[4:8], offset)
	return r
}

func (r *frameReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	for i := off; i < int64(len(r.header)) && i < off+int64(n); i++ {
		p[i-off] = r.header[i]
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *frameReader) Read(p []byte) (int, error) {
	n, err := r.ReadAt(p, r.pos)
	r.pos += int64(n)
	return n, err
}
