package api

import (
	"context"
	"image"

	"vincit.fi/image-viewer/api/apitype"
)

// ImageCodec decodes standard image formats (JPEG, PNG, ...)
type ImageCodec interface {
	Decode(path string) (image.Image, error)
	DecodeBytes(data []byte) (image.Image, error)
}

type RawDecodeOptions struct {
	// HalfSize trades resolution for roughly 4x faster decoding
	HalfSize bool
}

// RawCodec opens camera RAW files
type RawCodec interface {
	Open(path string) (RawHandle, error)
	IsFullDecodeAvailable() bool
}

type RawHandle interface {
	// Sizes returns the full sensor image size. ok is false when unknown.
	Sizes() (size apitype.Size, ok bool)
	// ExtractPreview returns the largest embedded preview and its format ("jpeg", ...)
	ExtractPreview() ([]byte, string, error)
	// DecodeFull demosaics the sensor data. The returned image is already oriented.
	DecodeFull(ctx context.Context, options RawDecodeOptions) (image.Image, error)
	Orientation() apitype.Orientation
	Close() error
}
