package core

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	_ "image/gif" // register decoders
)

// ScaleImage is the default Resizer. It decodes PNG, JPEG or GIF
// bytes, scales them to fit within maxBox x maxBox preserving aspect
// ratio, and re-encodes. Images already inside the box, and any call
// with maxBox <= 0, return the input unchanged with its natural
// dimensions.
func ScaleImage(src []byte, maxBox int) ([]byte, int, int, error) {
	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if maxBox <= 0 || (width <= maxBox && height <= maxBox) {
		return src, width, height, nil
	}

	newWidth, newHeight := fitBox(width, height, maxBox)

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, dst)
	default:
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return nil, 0, 0, fmt.Errorf("encode image: %w", err)
	}

	return buf.Bytes(), newWidth, newHeight, nil
}

// fitBox scales (width, height) down so the longer edge equals maxBox,
// preserving aspect ratio.
func fitBox(width, height, maxBox int) (int, int) {
	if width > height {
		return maxBox, int(float64(maxBox) * float64(height) / float64(width))
	}
	return int(float64(maxBox) * float64(width) / float64(height)), maxBox
}
