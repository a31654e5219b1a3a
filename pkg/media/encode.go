package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

const jpegQuality = 85

// EncodeImage decodes an image, downscales it to fit within
// maxWidth x maxHeight (never upscaling), and returns it re-encoded as a
// JPEG data URL. On any failure nothing is returned, so callers can leave
// their attachment state untouched.
func EncodeImage(r io.Reader, maxWidth, maxHeight int) (string, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	fitted := imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}

	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
