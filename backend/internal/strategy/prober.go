package strategy

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"time"

	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/logger"
)

const probeDecodeTimeout = 2 * time.Minute

// RawCodecProber probes files with the RAW codec that is used for loading
type RawCodecProber struct {
	codec api.RawCodec
}

func NewRawCodecProber(codec api.RawCodec) *RawCodecProber {
	return &RawCodecProber{codec: codec}
}

func (s *RawCodecProber) Probe(path string) (*Probe, error) {
	handle, err := s.codec.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProbe, err)
	}
	defer handle.Close()

	probe := &Probe{}
	probe.Raw, probe.HasRawSize = handle.Sizes()

	if previewBytes, format, err := handle.ExtractPreview(); err != nil {
		logger.Debug.Printf("No embedded preview in '%s': %s", path, err)
	} else if config, _, err := image.DecodeConfig(bytes.NewReader(previewBytes)); err != nil {
		logger.Debug.Printf("Embedded %s preview in '%s' can't be read: %s", format, path, err)
	} else {
		probe.Preview = apitype.SizeOf(config.Width, config.Height)
		probe.HasPreview = !probe.Preview.IsZero()
	}

	logger.Debug.Printf("Probed '%s': preview %dx%d (%t), raw %dx%d (%t)", path,
		probe.Preview.GetWidth(), probe.Preview.GetHeight(), probe.HasPreview,
		probe.Raw.GetWidth(), probe.Raw.GetHeight(), probe.HasRawSize)
	return probe, nil
}

func (s *RawCodecProber) TryDecode(path string) error {
	if !s.codec.IsFullDecodeAvailable() {
		return fmt.Errorf("no full RAW decoder available for '%s'", path)
	}
	handle, err := s.codec.Open(path)
	if err != nil {
		return err
	}
	defer handle.Close()

	ctx, cancel := context.WithTimeout(context.Background(), probeDecodeTimeout)
	defer cancel()
	img, err := handle.DecodeFull(ctx, api.RawDecodeOptions{HalfSize: true})
	if err != nil {
		return err
	}
	if img == nil || img.Bounds().Empty() {
		return fmt.Errorf("decoder returned an empty image for '%s'", path)
	}
	return nil
}
