package preview_test

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"testing"

	"pms-api/preview"

	"github.com/stretchr/testify/require"
)

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// frameSpec describes one 8-bit grayscale frame written by buildTIFF.
type frameSpec struct {
	width    int
	height   int
	fill     byte
	badStrip bool // strip offset points past the end of the file
}

func gray(width, height int, fill byte) frameSpec {
	return frameSpec{width: width, height: height, fill: fill}
}

type ifdEntry struct {
	tag      uint16
	datatype uint16
	value    uint32
}

// buildTIFF writes an uncompressed multi-page grayscale TIFF, one strip per
// frame, with the IFDs chained in order.
func buildTIFF(t *testing.T, order byteOrder, frames ...frameSpec) []byte {
	t.Helper()

	buf := make([]byte, 8)
	if order == binary.LittleEndian {
		copy(buf, "II\x2A\x00")
	} else {
		copy(buf, "MM\x00\x2A")
	}

	nextPtr := 4
	for _, f := range frames {
		stripOffset := uint32(len(buf))
		buf = append(buf, bytes.Repeat([]byte{f.fill}, f.width*f.height)...)
		if len(buf)%2 == 1 {
			buf = append(buf, 0)
		}
		if f.badStrip {
			stripOffset = 0x7FFFFFF0
		}

		ifdOffset := len(buf)
		order.PutUint32(buf[nextPtr:], uint32(ifdOffset))

		entries := []ifdEntry{
			{256, 4, uint32(f.width)},
			{257, 4, uint32(f.height)},
			{258, 3, 8},
			{259, 3, 1},
			{262, 3, 1},
			{273, 4, stripOffset},
			{278, 4, uint32(f.height)},
			{279, 4, uint32(f.width * f.height)},
		}
		buf = order.AppendUint16(buf, uint16(len(entries)))
		for _, e := range entries {
			buf = order.AppendUint16(buf, e.tag)
			buf = order.AppendUint16(buf, e.datatype)
			buf = order.AppendUint32(buf, 1)
			if e.datatype == 3 {
				buf = order.AppendUint16(buf, uint16(e.value))
				buf = append(buf, 0, 0)
			} else {
				buf = order.AppendUint32(buf, e.value)
			}
		}
		nextPtr = len(buf)
		buf = order.AppendUint32(buf, 0)
	}
	return buf
}

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(width, height), nil))
	return buf.Bytes()
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(width, height)))
	return buf.Bytes()
}

func solid(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	return img
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDecoder(opts preview.DecodeOptions) *preview.TiffDecoder {
	return preview.NewTiffDecoder(opts, discardLogger(), nil, nil)
}

func pageNumbers(pages []preview.RenderedPage) []int {
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.PageNumber)
	}
	return out
}
