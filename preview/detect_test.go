package preview_test

import (
	"testing"

	"pms-api/preview"

	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want preview.Format
	}{
		{"Little-endian TIFF", []byte{0x49, 0x49, 0x2A, 0x00}, preview.Tiff},
		{"Big-endian TIFF", []byte{0x4D, 0x4D, 0x00, 0x2A}, preview.Tiff},
		{"TIFF prefix only", []byte{0x49, 0x49}, preview.Tiff},
		{"JPEG", []byte{0xFF, 0xD8, 0xFF, 0xE0}, preview.Jpeg},
		{"PNG", []byte{0x89, 0x50, 0x4E, 0x47}, preview.Png},
		{"GIF", []byte("GIF89a"), preview.Gif},
		{"PDF", []byte("%PDF-1.7\n"), preview.Pdf},
		{"PDF prefix too short", []byte("%PD"), preview.Unknown},
		{"BMP has no rule", []byte("BM\x00\x00"), preview.Unknown},
		{"Plain text", []byte("hello"), preview.Unknown},
		{"Single byte", []byte{0x49}, preview.Unknown},
		{"Empty", nil, preview.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, preview.Detect(tt.data))
		})
	}
}

func TestDetect_TiffIgnoresTrailingBytes(t *testing.T) {
	req := require.New(t)

	for _, prefix := range [][]byte{{0x49, 0x49}, {0x4D, 0x4D}} {
		for _, tail := range [][]byte{nil, {0xFF, 0xD8}, []byte("%PDF"), {0x00, 0x00, 0x00}} {
			data := append(append([]byte{}, prefix...), tail...)
			req.Equal(preview.Tiff, preview.Detect(data))
		}
	}
}

func TestFormat_ContentType(t *testing.T) {
	req := require.New(t)

	req.Equal("image/tiff", preview.Tiff.ContentType())
	req.Equal("application/pdf", preview.Pdf.ContentType())
	req.Equal("application/octet-stream", preview.Unknown.ContentType())
	req.Equal("jpeg", preview.Jpeg.String())
}
