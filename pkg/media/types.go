package media

import (
	"io"
	"mime"
	"path/filepath"
	"strings"
)

// Kind is the result of classifying a selected file. Classification is the
// only branch point in the pipeline: images are encoded locally, everything
// else goes to the extraction endpoint.
type Kind int

const (
	KindDocument Kind = iota
	KindImage
)

func (k Kind) String() string {
	if k == KindImage {
		return "image"
	}
	return "document"
}

// File is a user-selected file: the declared media type decides the
// classification, the reader carries the raw bytes.
type File struct {
	Name      string
	MediaType string
	Reader    io.Reader
}

// imageExts maps file extensions to MIME types for image formats the
// encoder accepts, for callers that have no declared media type.
var imageExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// Classify decides whether a declared media type is an image. Any other
// type, including an empty one, is treated as a document; the picker's
// accept filter is the only gate on what arrives here.
func Classify(mediaType string) Kind {
	if strings.HasPrefix(mediaType, "image") {
		return KindImage
	}
	return KindDocument
}

// TypeByName derives a media type from a filename extension for callers
// that lost the declared type (e.g. a console file picker).
func TypeByName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if mt, ok := imageExts[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// Attachment is the single optional enrichment of the next outgoing
// message. Exactly two concrete kinds exist; a nil Attachment means none.
// Modeling this as a variant makes image and document attachments mutually
// exclusive by construction.
type Attachment interface {
	isAttachment()
}

// ImageAttachment holds the encoded, size-bounded representation of an
// attached image, ready to embed in an outgoing message part.
type ImageAttachment struct {
	EncodedData string // data URL, e.g. "data:image/jpeg;base64,..."
}

// DocumentAttachment holds the metadata and extracted content of an
// uploaded non-image file. PreviewText is for inline display only; the
// composer always merges FullText.
type DocumentAttachment struct {
	Filename    string
	UploadID    string
	PreviewText string
	FullText    string
}

func (ImageAttachment) isAttachment()    {}
func (DocumentAttachment) isAttachment() {}

// Preview returns a display prefix of text bounded to limit runes, with a
// trailing ellipsis when truncated.
func Preview(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
