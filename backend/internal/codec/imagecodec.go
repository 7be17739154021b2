package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/png"
	"os"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/common/logger"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

var jpegMagic = []byte{0xFF, 0xD8}

// ImageCodec decodes JPEGs with the fastest available JPEG decoder and
// everything else with the registered Go image decoders.
type ImageCodec struct {
	api.ImageCodec
}

func NewImageCodec() *ImageCodec {
	return &ImageCodec{}
}

func (s *ImageCodec) Decode(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	startTime := time.Now()
	img, err := s.decode(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("decode '%s': %w", path, err)
	}
	logger.Trace.Printf("'%s': decoded in %s", path, time.Since(startTime))
	return img, nil
}

func (s *ImageCodec) DecodeBytes(data []byte) (image.Image, error) {
	return s.decode(bufio.NewReader(bytes.NewReader(data)))
}

func (s *ImageCodec) decode(reader *bufio.Reader) (image.Image, error) {
	header, err := reader.Peek(len(jpegMagic))
	if err != nil {
		return nil, ErrUnsupportedFormat
	}
	if bytes.Equal(header, jpegMagic) {
		return decodeJpeg(reader)
	}

	img, _, err := image.Decode(reader)
	if errors.Is(err, image.ErrFormat) {
		return nil, ErrUnsupportedFormat
	}
	return img, err
}

