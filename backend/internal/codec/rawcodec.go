package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	exiftiff "github.com/rwcarlsen/goexif/tiff"
	"golang.org/x/image/tiff"
	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/logger"
)

var (
	ErrRawDecoderUnavailable = errors.New("RAW decoder not available")
	ErrNoPreview             = errors.New("no embedded preview")
)

const (
	PreviewFormatJpeg = "jpeg"

	// Limits how many JPEG start markers are tried when scanning a RAW file
	maxPreviewCandidates = 64
	maxDirectories       = 32

	tagStripOffsets = 0x0111
	tagSubIfds      = 0x014A
	tagJpegOffset   = 0x0201
)

var jpegStart = []byte{0xFF, 0xD8, 0xFF}

// RawCodec reads camera RAW files. Metadata and embedded previews are read
// in-process, full decoding is done by running dcraw in a subprocess.
type RawCodec struct {
	api.RawCodec

	dcrawPath string
	available bool
}

func NewRawCodec(dcrawPath string) *RawCodec {
	codec := &RawCodec{dcrawPath: dcrawPath}
	if resolved, err := exec.LookPath(dcrawPath); err != nil {
		logger.Warn.Printf("RAW decoder '%s' not found, only embedded previews can be used", dcrawPath)
	} else {
		logger.Info.Printf("Using RAW decoder '%s'", resolved)
		codec.dcrawPath = resolved
		codec.available = true
	}
	return codec
}

func (s *RawCodec) IsFullDecodeAvailable() bool {
	return s.available
}

func (s *RawCodec) Open(path string) (api.RawHandle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	handle := &rawHandle{
		codec: s,
		path:  path,
		data:  data,
	}
	if decodedExif, err := exif.Decode(bytes.NewReader(data)); err != nil {
		logger.Debug.Printf("'%s': could not read EXIF: %s", path, err)
	} else {
		handle.exif = decodedExif
	}
	return handle, nil
}

type rawHandle struct {
	codec *RawCodec
	path  string
	data  []byte
	exif  *exif.Exif
}

func (s *rawHandle) Sizes() (apitype.Size, bool) {
	if s.exif == nil {
		return apitype.Size{}, false
	}
	width, widthOk := apitype.GetFirstInt(s.exif, exif.PixelXDimension)
	height, heightOk := apitype.GetFirstInt(s.exif, exif.PixelYDimension)
	if !widthOk || !heightOk || width <= 0 || height <= 0 {
		return apitype.Size{}, false
	}
	return apitype.SizeOf(width, height), true
}

// ExtractPreview returns the embedded JPEG stream with the largest pixel
// area. The streams referenced by the TIFF directories are tried first,
// then the file is scanned for JPEG start markers.
func (s *rawHandle) ExtractPreview() ([]byte, string, error) {
	offset, size := findLargestJpeg(s.data)
	if offset < 0 {
		return nil, "", fmt.Errorf("'%s': %w", s.path, ErrNoPreview)
	}
	logger.Trace.Printf("'%s': embedded preview %dx%d at offset %d",
		s.path, size.GetWidth(), size.GetHeight(), offset)
	return s.data[offset:], PreviewFormatJpeg, nil
}

func (s *rawHandle) DecodeFull(ctx context.Context, options api.RawDecodeOptions) (image.Image, error) {
	if !s.codec.available {
		return nil, ErrRawDecoderUnavailable
	}

	// -c: write to stdout, -w: camera white balance, -T: TIFF output
	args := []string{"-c", "-w", "-T"}
	if options.HalfSize {
		args = append(args, "-h")
	}
	args = append(args, s.path)

	startTime := time.Now()
	output, err := exec.CommandContext(ctx, s.codec.dcrawPath, args...).Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("dcraw failed for '%s': %w: %s", s.path, err, strings.TrimSpace(string(exitError.Stderr)))
		}
		return nil, fmt.Errorf("dcraw failed for '%s': %w", s.path, err)
	}

	img, err := tiff.Decode(bytes.NewReader(output))
	if err != nil {
		return nil, fmt.Errorf("could not read dcraw output for '%s': %w", s.path, err)
	}
	logger.Debug.Printf("'%s': RAW decoded in %s", s.path, time.Since(startTime))
	return img, nil
}

func (s *rawHandle) Orientation() apitype.Orientation {
	if s.exif == nil {
		return apitype.OrientationNormal
	}
	return apitype.OrientationFromExif(s.exif)
}

func (s *rawHandle) Close() error {
	s.data = nil
	s.exif = nil
	return nil
}

type jpegCandidate struct {
	offset int
	size   apitype.Size
}

func (s jpegCandidate) area() int {
	return s.size.GetWidth() * s.size.GetHeight()
}

// larger returns the candidate at offset if it is a valid JPEG larger than s
func (s jpegCandidate) larger(data []byte, offset int) jpegCandidate {
	config, err := jpeg.DecodeConfig(bytes.NewReader(data[offset:]))
	if err != nil {
		return s
	}
	candidate := jpegCandidate{offset: offset, size: apitype.SizeOf(config.Width, config.Height)}
	if candidate.area() > s.area() {
		return candidate
	}
	return s
}

func findLargestJpeg(data []byte) (int, apitype.Size) {
	best := jpegCandidate{offset: -1}
	for _, offset := range tiffImageOffsets(data) {
		best = best.larger(data, offset)
	}

	position := 0
	for candidates := 0; candidates < maxPreviewCandidates; candidates++ {
		index := bytes.Index(data[position:], jpegStart)
		if index < 0 {
			break
		}
		offset := position + index
		position = offset + len(jpegStart)
		best = best.larger(data, offset)
	}
	return best.offset, best.size
}

// tiffImageOffsets lists the image data offsets of every TIFF directory in
// the file, SubIFDs included. Most RAW formats are TIFF based and point to
// their previews this way.
func tiffImageOffsets(data []byte) []int {
	tif, err := exiftiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	reader := bytes.NewReader(data)
	dirs := append([]*exiftiff.Dir{}, tif.Dirs...)
	var offsets []int
	for i := 0; i < len(dirs) && i < maxDirectories; i++ {
		for _, tag := range dirs[i].Tags {
			switch tag.Id {
			case tagStripOffsets, tagJpegOffset:
				if tag.Count == 0 {
					continue
				}
				if offset, err := tag.Int64(0); err == nil && offset > 0 && offset < int64(len(data)) {
					offsets = append(offsets, int(offset))
				}
			case tagSubIfds:
				for j := 0; j < int(tag.Count); j++ {
					dirOffset, err := tag.Int64(j)
					if err != nil || dirOffset <= 0 || dirOffset >= int64(len(data)) {
						continue
					}
					if _, err := reader.Seek(dirOffset, io.SeekStart); err != nil {
						continue
					}
					if dir, _, err := exiftiff.DecodeDir(reader, tif.Order); err == nil {
						dirs = append(dirs, dir)
					}
				}
			}
		}
	}
	return offsets
}
