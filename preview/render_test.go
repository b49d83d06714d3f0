package preview_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"testing"
	"time"

	"pms-api/preview"

	"github.com/stretchr/testify/require"
)

// flakyEncoder fails for the listed call numbers (1-based).
type flakyEncoder struct {
	failOn map[int]bool
	calls  int
}

func (e *flakyEncoder) Encode(w io.Writer, img image.Image) error {
	e.calls++
	if e.failOn[e.calls] {
		return errors.New("no rendering surface")
	}
	return png.Encode(w, img)
}

func (e *flakyEncoder) ContentType() string { return "image/png" }

func decodedPage(index, width, height int) *preview.DecodedPage {
	return &preview.DecodedPage{
		Index:  index,
		Width:  width,
		Height: height,
		Pixels: bytes.Repeat([]byte{0x40, 0x80, 0xC0, 0xFF}, width*height),
	}
}

func TestRenderer_Render(t *testing.T) {
	req := require.New(t)
	store := preview.NewResourceStore(time.Hour, nil)
	renderer, err := preview.NewRenderer(preview.DefaultOptions(), store, discardLogger(), nil)
	req.NoError(err)

	out, err := renderer.Render(decodedPage(2, 6, 4))

	req.NoError(err)
	req.Equal(2, out.PageNumber)
	req.Equal("image/png", out.Resource.ContentType)

	res, ok := store.Get(out.Resource.ID)
	req.True(ok)
	img, err := png.Decode(bytes.NewReader(res.Data))
	req.NoError(err)
	req.Equal(6, img.Bounds().Dx())
	req.Equal(4, img.Bounds().Dy())
}

func TestRenderer_ScalesToMaxWidth(t *testing.T) {
	req := require.New(t)
	store := preview.NewResourceStore(0, nil)
	renderer, err := preview.NewRenderer(&preview.Options{Format: "jpeg", Quality: 70, MaxWidth: 10}, store, discardLogger(), nil)
	req.NoError(err)

	out, err := renderer.Render(decodedPage(1, 40, 20))

	req.NoError(err)
	req.Equal("image/jpeg", out.Resource.ContentType)
	req.Equal(10, out.Resource.Width)
	req.Equal(5, out.Resource.Height)
	req.Equal([]byte{0xFF, 0xD8}, out.Resource.Data[:2])
}

func TestNewEncoder_RejectsUnknownFormat(t *testing.T) {
	_, err := preview.NewEncoder(&preview.Options{Format: "tiff"})

	require.Error(t, err)
}

func TestRenderer_RenderAll(t *testing.T) {
	ctx := context.Background()

	t.Run("Failed page is dropped", func(t *testing.T) {
		req := require.New(t)
		store := preview.NewResourceStore(0, nil)
		renderer := preview.NewRendererWithEncoder(&flakyEncoder{failOn: map[int]bool{2: true}}, 0, store, discardLogger(), nil)

		pages, err := renderer.RenderAll(ctx, []*preview.DecodedPage{decodedPage(1, 2, 2), decodedPage(2, 2, 2), decodedPage(3, 2, 2)})

		req.NoError(err)
		req.Equal([]int{1, 3}, pageNumbers(pages))
		count, _ := store.Stats()
		req.Equal(2, count)
	})

	t.Run("Only page failing empties the document", func(t *testing.T) {
		req := require.New(t)
		store := preview.NewResourceStore(0, nil)
		renderer := preview.NewRendererWithEncoder(&flakyEncoder{failOn: map[int]bool{1: true}}, 0, store, discardLogger(), nil)

		pages, err := renderer.RenderAll(ctx, []*preview.DecodedPage{decodedPage(1, 2, 2)})

		req.Nil(pages)
		req.ErrorIs(err, preview.ErrNoValidFrames)
	})

	t.Run("Page with short pixel buffer is dropped", func(t *testing.T) {
		req := require.New(t)
		store := preview.NewResourceStore(0, nil)
		renderer := preview.NewRendererWithEncoder(&flakyEncoder{}, 0, store, discardLogger(), nil)
		short := decodedPage(1, 4, 4)
		short.Pixels = short.Pixels[:8]

		pages, err := renderer.RenderAll(ctx, []*preview.DecodedPage{short, decodedPage(2, 1, 1)})

		req.NoError(err)
		req.Equal([]int{2}, pageNumbers(pages))
	})

	t.Run("Release is idempotent", func(t *testing.T) {
		req := require.New(t)
		store := preview.NewResourceStore(0, nil)
		renderer := preview.NewRendererWithEncoder(&flakyEncoder{}, 0, store, discardLogger(), nil)

		pages, err := renderer.RenderAll(ctx, []*preview.DecodedPage{decodedPage(1, 1, 1), decodedPage(2, 1, 1)})
		req.NoError(err)

		renderer.Release(pages)
		renderer.Release(pages)

		count, size := store.Stats()
		req.Zero(count)
		req.Zero(size)
	})
}
