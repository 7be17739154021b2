package backend

import (
	"os/exec"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/backend/internal/codec"
	"vincit.fi/image-viewer/backend/internal/decodepool"
	"vincit.fi/image-viewer/backend/internal/imagecache"
	"vincit.fi/image-viewer/backend/internal/imageloader"
	"vincit.fi/image-viewer/backend/internal/metrics"
	"vincit.fi/image-viewer/backend/internal/resource"
	"vincit.fi/image-viewer/backend/internal/strategy"
	"vincit.fi/image-viewer/backend/internal/workerpool"
	"vincit.fi/image-viewer/common"
	"vincit.fi/image-viewer/common/event"
	"vincit.fi/image-viewer/common/logger"
)

const exifToolName = "exiftool"

type Services struct {
	Loader      *imageloader.Loader
	Coordinator *resource.Coordinator
	ImageCache  *imagecache.ImageCache
	Resolver    *strategy.Resolver
	Profile     *resource.Profile
	Registry    *prometheus.Registry
}

func (s *Services) Close() {
	s.Coordinator.Shutdown()
}

func InitializeEventBroker(eventBusQueueSize int) *event.Broker {
	logger.Debug.Printf("Initialize event broker...")
	broker := event.InitBus(eventBusQueueSize)
	logger.Debug.Printf("Event broker initialized")
	return broker
}

func InitializeServices(params *common.Params, settings *common.Settings, sender api.Sender) *Services {
	logger.Debug.Printf("Initialize services...")
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	memory := resource.NewSystemMemoryProbe()
	profile := resource.DetectProfile(memory, settings.GetCacheSizeHint())

	imageCodec := codec.NewImageCodec()
	rawCodec := codec.NewRawCodec(params.DcrawPath())
	IsExifToolAvailable()

	imageCache := imagecache.NewImageCache(profile.GetCacheCapacity(), metrics.NewCacheMetrics(registry))
	coordinator := resource.NewCoordinator(
		profile,
		memory,
		workerpool.NewPriorityWorkerPool(profile.GetThreads(), metrics.NewPoolMetrics(registry)),
		decodepool.NewDecodeWorkerPool(profile.GetDecodeWorkers(), rawCodec, memory,
			decodepool.Options{}, metrics.NewDecodeMetrics(registry)),
		resource.Options{},
	)
	coordinator.RegisterShrinker(imageCache)
	coordinator.Start()

	resolver := strategy.NewResolver(strategy.NewState(), settings.QualityMode(), strategy.NewRawCodecProber(rawCodec), sender)
	loader := imageloader.NewLoader(imageCache, coordinator, resolver, imageCodec, rawCodec, sender, imageloader.Options{
		PinNeighbours: params.PinNeighbours(),
	})

	services := &Services{
		Loader:      loader,
		Coordinator: coordinator,
		ImageCache:  imageCache,
		Resolver:    resolver,
		Profile:     profile,
		Registry:    registry,
	}
	logger.Debug.Printf("Services initialized")
	return services
}

// IsExifToolAvailable checks if the external metadata tool is installed.
// Nothing depends on it, the result is only logged.
func IsExifToolAvailable() bool {
	if path, err := exec.LookPath(exifToolName); err != nil {
		logger.Info.Printf("%s not found, metadata is read with the built-in EXIF reader", exifToolName)
		return false
	} else {
		logger.Debug.Printf("Found %s at '%s'", exifToolName, path)
		return true
	}
}
