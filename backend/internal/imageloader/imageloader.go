package imageloader

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/backend/internal/decodepool"
	"vincit.fi/image-viewer/backend/internal/imagecache"
	"vincit.fi/image-viewer/backend/internal/resource"
	"vincit.fi/image-viewer/backend/internal/strategy"
	"vincit.fi/image-viewer/common/event"
	"vincit.fi/image-viewer/common/logger"
)

const (
	DefaultPinNeighbours  = 3
	DefaultDecodeCooldown = 3 * time.Second
	DefaultDecodeTimeout  = 2 * time.Minute
)

var (
	ErrInvalidPath       = errors.New("invalid image path")
	ErrUnsupportedFormat = errors.New("unsupported file type")
	ErrDecodeTimeout     = errors.New("RAW decode timed out")
)

type LoadResult struct {
	Path         string
	RequestIndex int
	Image        image.Image
	FromCache    bool
	Err          error
}

type Options struct {
	PinNeighbours  int
	DecodeCooldown time.Duration
	DecodeTimeout  time.Duration
}

// Loader is the entry point of the display layer. It serves images from
// the cache and loads the missing ones either on the calling goroutine or
// on the worker pools.
type Loader struct {
	cache       *imagecache.ImageCache
	coordinator *resource.Coordinator
	resolver    *strategy.Resolver
	imageCodec  api.ImageCodec
	rawCodec    api.RawCodec
	sender      api.Sender
	options     Options

	// RAW files whose full decode is running
	decoding *gocache.Cache
}

func NewLoader(cache *imagecache.ImageCache, coordinator *resource.Coordinator, resolver *strategy.Resolver,
	imageCodec api.ImageCodec, rawCodec api.RawCodec, sender api.Sender, options Options) *Loader {
	logger.Debug.Printf("Initializing image loader...")
	if options.PinNeighbours < 0 {
		options.PinNeighbours = 0
	}
	if options.DecodeCooldown <= 0 {
		options.DecodeCooldown = DefaultDecodeCooldown
	}
	if options.DecodeTimeout <= 0 {
		options.DecodeTimeout = DefaultDecodeTimeout
	}
	if sender == nil {
		sender = &event.DevNullSender{}
	}
	return &Loader{
		cache:       cache,
		coordinator: coordinator,
		resolver:    resolver,
		imageCodec:  imageCodec,
		rawCodec:    rawCodec,
		sender:      sender,
		options:     options,
		decoding:    gocache.New(options.DecodeCooldown, 2*options.DecodeCooldown),
	}
}

// Load returns the image for the path. On failure the placeholder is
// returned together with the error.
func (s *Loader) Load(ctx context.Context, path string, priority apitype.Priority) (image.Image, error) {
	img, _, err := s.load(ctx, path, priority)
	return img, err
}

// LoadAsync loads the image on the worker pool and calls onDone with the
// result. The request index is passed through so that the caller can
// ignore results of requests it no longer cares about. A full RAW decode
// does not hold a worker, onDone is then called from the decode callback.
func (s *Loader) LoadAsync(path string, priority apitype.Priority, requestIndex int, onDone func(*LoadResult)) {
	s.submitLoad(path, priority, func(img image.Image, fromCache bool, err error) {
		if err == nil && !apitype.IsPlaceholder(img) {
			bounds := img.Bounds()
			s.sender.SendCommandToTopic(api.ImageLoaded, &api.ImageLoadedCommand{
				Path:         path,
				RequestIndex: requestIndex,
				Width:        bounds.Dx(),
				Height:       bounds.Dy(),
				FromCache:    fromCache,
			})
		}
		if onDone != nil {
			onDone(&LoadResult{
				Path:         path,
				RequestIndex: requestIndex,
				Image:        img,
				FromCache:    fromCache,
				Err:          err,
			})
		}
	})
}

// Preload queues the paths that are not cached yet with low priority and
// returns how many were queued
func (s *Loader) Preload(paths []string) int {
	queued := 0
	for _, path := range paths {
		if s.cache.Contains(path) {
			continue
		}
		submitted := s.submitLoad(path, apitype.PriorityLow, func(_ image.Image, _ bool, err error) {
			if err != nil {
				logger.Debug.Printf("Preloading '%s' failed: %s", path, err)
			}
		})
		if !submitted {
			break
		}
		queued++
	}
	logger.Trace.Printf("Queued %d of %d images for preloading", queued, len(paths))
	return queued
}

// ClearCache drops all cached images and starts a new RAW session
func (s *Loader) ClearCache() {
	s.cache.Clear()
	s.decoding.Flush()
	s.resolver.GetState().Reset()
	s.sender.SendToTopic(api.CacheCleared)
}

// SetCurrent pins the current image and its neighbours in the cache.
// Returns the pinned paths.
func (s *Loader) SetCurrent(paths []string, index int) []string {
	if index < 0 || index >= len(paths) {
		s.cache.SetPinned(nil)
		return nil
	}
	start := max(0, index-s.options.PinNeighbours)
	end := min(len(paths), index+s.options.PinNeighbours+1)
	pinned := append([]string{}, paths[start:end]...)
	s.cache.SetPinned(pinned)
	return pinned
}

func (s *Loader) GetCache() *imagecache.ImageCache {
	return s.cache
}

func (s *Loader) load(ctx context.Context, path string, priority apitype.Priority) (img image.Image, fromCache bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error.Printf("Loading '%s' crashed: %v", path, r)
			img, fromCache, err = apitype.Placeholder, false, fmt.Errorf("loading '%s' crashed: %v", path, r)
		}
	}()

	if path == "" {
		return apitype.Placeholder, false, ErrInvalidPath
	}
	if cached, ok := s.cache.Get(path); ok {
		return cached, true, nil
	}

	startTime := time.Now()
	imageFile := apitype.NewImageFile(path)
	switch imageFile.GetFormatClass() {
	case apitype.FormatStandard:
		img, err = s.loadStandard(imageFile)
	case apitype.FormatRaw:
		img, err = s.loadRaw(ctx, imageFile)
	default:
		err = fmt.Errorf("'%s': %w", path, ErrUnsupportedFormat)
	}

	if err != nil {
		logger.Warn.Printf("Could not load '%s': %s", path, err)
		return apitype.Placeholder, false, err
	}
	if apitype.IsPlaceholder(img) {
		return apitype.Placeholder, false, nil
	}
	s.cache.Put(path, img)
	logger.Trace.Printf("'%s': loaded with %s priority in %s", path, priority, time.Since(startTime))
	return img, false, nil
}

type deliverFunc func(img image.Image, fromCache bool, err error)

// submitLoad runs the load on the worker pool. RAW files that resolve to a
// full decode are handed to the decode pool and delivered from its
// callback. deliver is called exactly once. Returns false if the worker
// pool did not accept the task.
func (s *Loader) submitLoad(path string, priority apitype.Priority, deliver deliverFunc) bool {
	_, err := s.coordinator.Submit(priority, func(ctx context.Context) {
		if s.isAsyncDecode(path) {
			s.startAsyncDecode(path, priority, deliver)
			return
		}
		deliver(s.load(ctx, path, priority))
	})
	if err != nil {
		logger.Debug.Printf("Could not queue loading of '%s': %s", path, err)
		deliver(apitype.Placeholder, false, err)
		return false
	}
	return true
}

func (s *Loader) isAsyncDecode(path string) bool {
	if path == "" || s.cache.Contains(path) {
		return false
	}
	if apitype.NewImageFile(path).GetFormatClass() != apitype.FormatRaw {
		return false
	}
	return s.resolver.Resolve(path) == apitype.RawUseDecode
}

func (s *Loader) startAsyncDecode(path string, priority apitype.Priority, deliver deliverFunc) {
	if err := s.decoding.Add(path, struct{}{}, s.options.DecodeCooldown); err != nil {
		logger.Debug.Printf("'%s' is already being decoded, returning placeholder", path)
		deliver(apitype.Placeholder, false, nil)
		return
	}

	startTime := time.Now()
	_, err := s.coordinator.Decode(path, func(result *decodepool.Result) {
		s.decoding.Delete(path)
		if result.Success {
			s.cache.Put(path, result.Image)
			logger.Trace.Printf("'%s': decoded with %s priority in %s", path, priority, time.Since(startTime))
			deliver(result.Image, false, nil)
			return
		}
		err := decodeError(path, result)
		if isDecodeAborted(err) {
			deliver(apitype.Placeholder, false, err)
			return
		}
		logger.Warn.Printf("Full decode of '%s' failed, using embedded preview: %s", path, err)
		s.submitPreview(path, priority, deliver)
	})
	if err != nil {
		s.decoding.Delete(path)
		logger.Warn.Printf("Could not queue decode of '%s': %s", path, err)
		deliver(apitype.Placeholder, false, err)
	}
}

// submitPreview is the fallback of a failed async decode. It runs on the
// worker pool since decode callbacks are called from the dispatcher.
func (s *Loader) submitPreview(path string, priority apitype.Priority, deliver deliverFunc) {
	_, err := s.coordinator.Submit(priority, func(ctx context.Context) {
		img, err := s.loadPreview(path)
		if err != nil {
			logger.Warn.Printf("Could not load '%s': %s", path, err)
			deliver(apitype.Placeholder, false, err)
			return
		}
		s.cache.Put(path, img)
		deliver(img, false, nil)
	})
	if err != nil {
		deliver(apitype.Placeholder, false, err)
	}
}

func decodeError(path string, result *decodepool.Result) error {
	if result.Err == nil {
		return fmt.Errorf("decode of '%s' failed", path)
	}
	return result.Err
}

// isDecodeAborted tells if the decode was dropped rather than failed, in
// which case there is no point in falling back to the preview
func isDecodeAborted(err error) bool {
	return errors.Is(err, decodepool.ErrCancelled) || errors.Is(err, decodepool.ErrPoolShutdown)
}

func (s *Loader) loadStandard(imageFile *apitype.ImageFile) (image.Image, error) {
	img, err := s.imageCodec.Decode(imageFile.GetPath())
	if err != nil {
		return nil, err
	}
	return apitype.OrientImage(img, imageFile.GetOrientation()), nil
}

func (s *Loader) loadRaw(ctx context.Context, imageFile *apitype.ImageFile) (image.Image, error) {
	path := imageFile.GetPath()
	if s.resolver.Resolve(path) == apitype.RawUseDecode {
		img, err := s.loadFullRaw(ctx, path)
		if err == nil {
			return img, nil
		}
		if ctx.Err() != nil || isDecodeAborted(err) {
			return nil, err
		}
		logger.Warn.Printf("Full decode of '%s' failed, using embedded preview: %s", path, err)
	}
	return s.loadPreview(path)
}

func (s *Loader) loadPreview(path string) (image.Image, error) {
	handle, err := s.rawCodec.Open(path)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	data, format, err := handle.ExtractPreview()
	if err != nil {
		return nil, err
	}
	img, err := s.imageCodec.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("embedded %s preview of '%s': %w", format, path, err)
	}
	return apitype.OrientImage(img, handle.Orientation()), nil
}

func (s *Loader) loadFullRaw(ctx context.Context, path string) (image.Image, error) {
	if err := s.decoding.Add(path, struct{}{}, s.options.DecodeCooldown); err != nil {
		logger.Debug.Printf("'%s' is already being decoded, returning placeholder", path)
		return apitype.Placeholder, nil
	}
	defer s.decoding.Delete(path)

	results := make(chan *decodepool.Result, 1)
	if _, err := s.coordinator.Decode(path, func(result *decodepool.Result) {
		results <- result
	}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(s.options.DecodeTimeout)
	defer timer.Stop()
	select {
	case result := <-results:
		if !result.Success {
			return nil, decodeError(path, result)
		}
		return result.Image, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("'%s' after %s: %w", path, s.options.DecodeTimeout, ErrDecodeTimeout)
	}
}
