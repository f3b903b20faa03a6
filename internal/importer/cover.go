package importer

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"strings"

	"github.com/bbrks/go-blurhash"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/inkwellapp/inkwell-client/internal/domain"
)

const (
	// coverSize bounds the longest edge of the stored summary cover.
	// Lists render small; the full-size image stays in the book record.
	coverSize = 480

	// blurHashSize is the target size for BlurHash computation.
	// BlurHash is a low-resolution placeholder; a small thumbnail
	// produces nearly identical results in a fraction of the time.
	blurHashSize = 64
)

// cover is the processed summary cover.
type cover struct {
	Data      []byte
	MediaType string
	BlurHash  string
}

// pickCoverImage selects the summary cover from a book's image
// assets: an asset named like a cover if present, the first asset
// otherwise.
func pickCoverImage(images []domain.ImageAsset) *domain.ImageAsset {
	if len(images) == 0 {
		return nil
	}
	for i := range images {
		name := strings.ToLower(images[i].Name)
		if strings.Contains(name, "cover") || strings.Contains(name, "titlepage") {
			return &images[i]
		}
	}
	return &images[0]
}

// processCover decodes raw cover bytes, scales them down for list
// rendering, and computes the BlurHash placeholder.
func processCover(data []byte) (*cover, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode cover: %w", err)
	}

	thumb := scaleDown(img, coverSize)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode cover thumbnail: %w", err)
	}

	// 4 horizontal, 3 vertical components - sweet spot for book covers
	hash, err := blurhash.Encode(4, 3, scaleDown(thumb, blurHashSize))
	if err != nil {
		return nil, fmt.Errorf("encode blurhash: %w", err)
	}

	return &cover{
		Data:      buf.Bytes(),
		MediaType: "image/jpeg",
		BlurHash:  hash,
	}, nil
}

// scaleDown resizes an image so its longest edge is at most max,
// preserving aspect ratio. Images already small enough pass through.
func scaleDown(img image.Image, max int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= max && h <= max {
		return img
	}

	var dw, dh int
	if w > h {
		dw = max
		dh = h * max / w
		if dh < 1 {
			dh = 1
		}
	} else {
		dh = max
		dw = w * max / h
		if dw < 1 {
			dw = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
