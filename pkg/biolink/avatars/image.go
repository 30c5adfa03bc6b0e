package avatars

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

const (
	// Size is the edge length of stored avatars
	Size = 256
	// MaxUploadBytes bounds the accepted upload
	MaxUploadBytes = 5 << 20
	// MaxPixels bounds the decoded size of an upload
	MaxPixels = 40_000_000
)

// ErrUnsupportedImage is returned for anything that is not a jpeg, png or gif
var ErrUnsupportedImage = fmt.Errorf("image must be jpeg, png or gif")

// ErrImageTooLarge is returned for images whose dimensions exceed MaxPixels
var ErrImageTooLarge = fmt.Errorf("image dimensions are too large")

// Process decodes an upload, crops it to a centered square and encodes a
// Size x Size JPEG.
func Process(data []byte) ([]byte, error) {
	if len(data) > MaxUploadBytes {
		return nil, fmt.Errorf("image exceeds %dMB", MaxUploadBytes>>20)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, ErrUnsupportedImage
	}
	switch format {
	case "jpeg", "png", "gif":
	default:
		return nil, ErrUnsupportedImage
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, ErrImageTooLarge
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	square := imaging.Fill(img, Size, Size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, square, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}
	return buf.Bytes(), nil
}
