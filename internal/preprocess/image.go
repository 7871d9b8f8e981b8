package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

const (
	// ImageSize is the square input resolution of the backbone.
	ImageSize = 224
	Channels  = 3
)

var ErrInvalidImage = errors.New("invalid image")

// Per-channel normalization applied after scaling pixels to [0,1].
var (
	channelMean = [Channels]float32{0.5, 0.5, 0.5}
	channelStd  = [Channels]float32{0.5, 0.5, 0.5}
)

// ImageTensor is a single image laid out CHW, ready to be batched as 1×C×H×W.
type ImageTensor struct {
	Height int
	Width  int
	Data   []float32
}

// Shape returns the batch-of-one NCHW shape.
func (t ImageTensor) Shape() []int64 {
	return []int64{1, Channels, int64(t.Height), int64(t.Width)}
}

// Image decodes raw bytes and produces the normalized ImageSize×ImageSize tensor.
// Non-square inputs are stretched; aspect ratio is not preserved.
func Image(raw []byte) (ImageTensor, error) {
	if len(raw) == 0 {
		return ImageTensor{}, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return ImageTensor{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	return FromImage(img, ImageSize), nil
}

// FromImage converts an already decoded image into a size×size tensor.
func FromImage(img image.Image, size int) ImageTensor {
	rgb := dropAlpha(img)
	resized := resize.Resize(uint(size), uint(size), rgb, resize.Bilinear)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, Channels*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			idx := y*width + x
			data[idx] = normalize(r, 0)
			data[plane+idx] = normalize(g, 1)
			data[2*plane+idx] = normalize(b, 2)
		}
	}

	return ImageTensor{Height: height, Width: width, Data: data}
}

// dropAlpha copies the image into NRGBA and makes every pixel opaque, keeping
// the stored colour of translucent pixels instead of compositing them.
func dropAlpha(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

func normalize(v uint32, channel int) float32 {
	scaled := float32(v>>8) / 255.0
	return (scaled - channelMean[channel]) / channelStd[channel]
}
