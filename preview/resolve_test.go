package preview_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"pms-api/preview"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func TestResolve(t *testing.T) {
	tiffData := buildTIFF(t, binary.LittleEndian, gray(2, 2, 0x10))
	jpegData := encodeJPEG(t, 4, 4)
	pngData := encodePNG(t, 4, 4)

	var bmpBuf bytes.Buffer
	require.NoError(t, bmp.Encode(&bmpBuf, solid(3, 3)))

	tests := []struct {
		name         string
		doc          preview.Document
		allowList    []string
		wantRoute    preview.Route
		wantFormat   preview.Format
		wantMismatch bool
	}{
		{
			name:       "TIFF named tiff",
			doc:        preview.Document{FileName: "scan.tiff", Data: tiffData},
			wantRoute:  preview.RouteDecode,
			wantFormat: preview.Tiff,
		},
		{
			name:         "JPEG named tiff",
			doc:          preview.Document{FileName: "scan.TIFF", Data: jpegData},
			wantRoute:    preview.RoutePassThrough,
			wantFormat:   preview.Jpeg,
			wantMismatch: true,
		},
		{
			name:         "PNG declared as TIFF by content type",
			doc:          preview.Document{FileName: "scan", ContentType: "image/tiff; charset=binary", Data: pngData},
			wantRoute:    preview.RoutePassThrough,
			wantFormat:   preview.Png,
			wantMismatch: true,
		},
		{
			name:       "TIFF with unlisted extension",
			doc:        preview.Document{FileName: "scan.dat", Data: tiffData},
			wantRoute:  preview.RouteDecode,
			wantFormat: preview.Tiff,
		},
		{
			name:       "BMP confirmed by sniff",
			doc:        preview.Document{FileName: "xray.bmp", Data: bmpBuf.Bytes()},
			wantRoute:  preview.RoutePassThrough,
			wantFormat: preview.Bmp,
		},
		{
			name:       "BMP declared but not BMP",
			doc:        preview.Document{FileName: "xray.bmp", Data: []byte("not a bitmap at all")},
			wantRoute:  preview.RouteDelegate,
			wantFormat: preview.Unknown,
		},
		{
			name:       "Word document",
			doc:        preview.Document{FileName: "letter.docx", Data: []byte("PK\x03\x04rest")},
			wantRoute:  preview.RouteDelegate,
			wantFormat: preview.Unknown,
		},
		{
			name:       "Detected format outside allow-list",
			doc:        preview.Document{FileName: "a.png", Data: pngData},
			allowList:  []string{"pdf", "tif"},
			wantRoute:  preview.RouteDelegate,
			wantFormat: preview.Png,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			allowList := tt.allowList
			if allowList == nil {
				allowList = preview.DefaultAllowList
			}

			res := preview.Resolve(&tt.doc, allowList)

			req.Equal(tt.wantRoute, res.Route)
			req.Equal(tt.wantFormat, res.Format)
			if tt.wantMismatch {
				req.NotNil(res.Mismatch)
				req.Equal(tt.wantFormat, res.Mismatch.Detected)
			} else {
				req.Nil(res.Mismatch)
			}
		})
	}
}
