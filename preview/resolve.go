package preview

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
)

// DefaultAllowList is the set of declared extensions previewed inline.
var DefaultAllowList = []string{"pdf", "jpg", "jpeg", "png", "gif", "bmp", "webp", "tif", "tiff"}

var extensionFormats = map[string]Format{
	"pdf":  Pdf,
	"jpg":  Jpeg,
	"jpeg": Jpeg,
	"png":  Png,
	"gif":  Gif,
	"bmp":  Bmp,
	"webp": Webp,
	"tif":  Tiff,
	"tiff": Tiff,
}

// Route is the branch of the pipeline a document takes.
type Route int

const (
	RouteDelegate Route = iota
	RoutePassThrough
	RouteDecode
)

func (r Route) String() string {
	switch r {
	case RoutePassThrough:
		return "pass-through"
	case RouteDecode:
		return "decode"
	default:
		return "delegate"
	}
}

// Resolution is the outcome of matching a document's bytes against its
// declared type and the allow-list.
type Resolution struct {
	Route    Route
	Format   Format
	Mismatch *FormatMismatchError
}

// Resolve decides how a document is previewed. The bytes decide the format;
// the declared extension or content-type only picks which allow-listed
// branch to attempt when the bytes match no signature.
func Resolve(doc *Document, allowList []string) Resolution {
	allowed := allowedFormats(allowList)
	declared, hint := declaredFormat(doc, allowed)

	if detected := Detect(doc.Data); detected != Unknown {
		if !allowed[detected] {
			return Resolution{Route: RouteDelegate, Format: detected}
		}
		res := Resolution{Route: RoutePassThrough, Format: detected}
		if detected == Tiff {
			res.Route = RouteDecode
		}
		if hint != "" && declared != detected {
			res.Mismatch = &FormatMismatchError{Declared: hint, Detected: detected}
		}
		return res
	}

	// No signature matched. Formats without a detector rule are accepted
	// when a content sniff agrees with the declaration.
	switch declared {
	case Bmp, Webp:
		if mimetype.Detect(doc.Data).Is(declared.ContentType()) {
			return Resolution{Route: RoutePassThrough, Format: declared}
		}
	}
	return Resolution{Route: RouteDelegate, Format: Unknown}
}

func allowedFormats(allowList []string) map[Format]bool {
	allowed := make(map[Format]bool)
	for _, ext := range allowList {
		if f, ok := extensionFormats[strings.ToLower(strings.TrimPrefix(ext, "."))]; ok {
			allowed[f] = true
		}
	}
	return allowed
}

// declaredFormat maps the file extension, then the content-type, to an
// allowed format. hint is the declaration that was matched.
func declaredFormat(doc *Document, allowed map[Format]bool) (Format, string) {
	if f, ok := extensionFormats[doc.Extension()]; ok && allowed[f] {
		return f, "." + doc.Extension()
	}
	if doc.ContentType == "" {
		return Unknown, ""
	}
	mt, _, err := mime.ParseMediaType(doc.ContentType)
	if err != nil {
		return Unknown, ""
	}
	f, ok := lo.FindKeyBy(formatContentTypes, func(_ Format, ct string) bool { return ct == mt })
	if ok && allowed[f] {
		return f, mt
	}
	return Unknown, ""
}
