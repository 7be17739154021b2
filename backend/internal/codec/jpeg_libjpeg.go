//go:build cgo

package codec

import (
	"image"
	"io"

	"github.com/pixiv/go-libjpeg/jpeg"
)

var options = &jpeg.DecoderOptions{}

func decodeJpeg(reader io.Reader) (image.Image, error) {
	return jpeg.Decode(reader, options)
}
