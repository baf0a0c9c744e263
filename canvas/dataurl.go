package canvas

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/webp"
)

var ErrNotDataURL = errors.New("not a base64 data URL")

// DecodeDataURL decodes a base64 "data:image/...;base64," URL into an image.
// PNG, JPEG and WebP payloads are supported.
func DecodeDataURL(src string) (image.Image, error) {
	payload, err := DataURLBytes(src)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// DataURLBytes returns the raw payload of a base64 data URL.
func DataURLBytes(src string) ([]byte, error) {
	if !strings.HasPrefix(src, "data:") {
		return nil, ErrNotDataURL
	}
	comma := strings.IndexByte(src, ',')
	if comma < 0 || !strings.HasSuffix(src[:comma], ";base64") {
		return nil, ErrNotDataURL
	}
	payload, err := base64.StdEncoding.DecodeString(src[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("data URL payload: %w", err)
	}
	return payload, nil
}

// EncodeDataURL wraps payload into a base64 data URL of the given media type.
func EncodeDataURL(mime string, payload []byte) string {
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mime) + base64.StdEncoding.EncodedLen(len(payload)))
	b.WriteString("data:")
	b.WriteString(mime)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(payload))
	return b.String()
}
