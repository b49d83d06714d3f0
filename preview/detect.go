package preview

import "bytes"

// Format is the binary format of a document as determined from its bytes.
type Format int

const (
	Unknown Format = iota
	Tiff
	Jpeg
	Png
	Gif
	Pdf
	// Bmp and Webp are never returned by Detect; Resolve produces them when
	// a declared hint is confirmed by a content sniff.
	Bmp
	Webp
)

var formatNames = map[Format]string{
	Unknown: "unknown",
	Tiff:    "tiff",
	Jpeg:    "jpeg",
	Png:     "png",
	Gif:     "gif",
	Pdf:     "pdf",
	Bmp:     "bmp",
	Webp:    "webp",
}

var formatContentTypes = map[Format]string{
	Tiff: "image/tiff",
	Jpeg: "image/jpeg",
	Png:  "image/png",
	Gif:  "image/gif",
	Pdf:  "application/pdf",
	Bmp:  "image/bmp",
	Webp: "image/webp",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return formatNames[Unknown]
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if ct, ok := formatContentTypes[f]; ok {
		return ct
	}
	return "application/octet-stream"
}

// MarshalText encodes the format by name.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

type signature struct {
	format Format
	magic  []byte
}

// Order matters: the first match wins.
var signatures = []signature{
	{Tiff, []byte{0x49, 0x49}},
	{Tiff, []byte{0x4D, 0x4D}},
	{Jpeg, []byte{0xFF, 0xD8}},
	{Png, []byte{0x89, 0x50}},
	{Gif, []byte{0x47, 0x49}},
	{Pdf, []byte("%PDF")},
}

// Detect returns the format of data judged only by its leading bytes.
// Buffers shorter than two bytes are Unknown.
func Detect(data []byte) Format {
	if len(data) < 2 {
		return Unknown
	}
	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.format
		}
	}
	return Unknown
}
