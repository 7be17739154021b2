package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/backend"
	"vincit.fi/image-viewer/common"
	"vincit.fi/image-viewer/common/logger"
)

const (
	eventBusQueueSize = 100
	firstImageTimeout = 2 * time.Minute
	preloadPollPeriod = 200 * time.Millisecond
)

func main() {
	params := common.ParseParams()
	logger.InitializeWithFile(logger.StringToLogLevel(params.LogLevel()), params.LogFile())

	settings, err := common.LoadSettings(params.SettingsFile())
	if err != nil {
		logger.Error.Fatal(err)
	}
	settings.ApplyParams(params)

	broker := backend.InitializeEventBroker(eventBusQueueSize)
	broker.Subscribe(api.ShowAdvisory, func(command *api.AdvisoryCommand) {
		logger.Warn.Printf("Advisory (%s): %s", command.Kind, command.Message)
	})
	broker.Subscribe(api.StrategyChanged, func(command *api.StrategyChangedCommand) {
		logger.Info.Printf("RAW files are shown using %s (mode '%s')", command.Strategy, command.Mode)
	})
	broker.Subscribe(api.ShowError, func(command *api.ErrorCommand) {
		logger.Error.Printf("%s", command.Message)
	})

	services := backend.InitializeServices(params, settings, broker)
	defer services.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if params.MetricsPort() > 0 {
		server := serveMetrics(params.MetricsPort(), services)
		defer server.Close()
	}

	rootPath := params.RootPath()
	if rootPath == "" {
		rootPath = "."
	}
	imageFiles, err := common.LoadImages(rootPath)
	if err != nil {
		broker.SendError("Could not read the directory", err)
		return
	}
	if len(imageFiles) == 0 {
		logger.Info.Printf("No images found in '%s'", rootPath)
		return
	}

	paths := common.ToPaths(imageFiles)
	services.Loader.SetCurrent(paths, 0)
	loadFirst(ctx, services, paths[0])
	services.Loader.Preload(paths[1:])
	waitForPreload(ctx, services)

	cache := services.ImageCache
	logger.Info.Printf("Cache holds %d/%d images (%.1f MB)", cache.Len(), cache.Capacity(), cache.GetSizeInMB())

	if params.MetricsPort() > 0 {
		logger.Info.Printf("Serving metrics until interrupted")
		<-ctx.Done()
	}
}

func loadFirst(ctx context.Context, services *backend.Services, path string) {
	loadCtx, cancel := context.WithTimeout(ctx, firstImageTimeout)
	defer cancel()

	startTime := time.Now()
	img, err := services.Loader.Load(loadCtx, path, apitype.PriorityHigh)
	if err != nil {
		logger.Error.Printf("Could not load '%s': %s", path, err)
	} else if apitype.IsPlaceholder(img) {
		logger.Info.Printf("'%s' is still loading", path)
	} else {
		bounds := img.Bounds()
		logger.Info.Printf("Loaded '%s' (%dx%d) in %s", path, bounds.Dx(), bounds.Dy(), time.Since(startTime))
	}
}

func waitForPreload(ctx context.Context, services *backend.Services) {
	ticker := time.NewTicker(preloadPollPeriod)
	defer ticker.Stop()
	for {
		queued := 0
		for _, length := range services.Coordinator.QueueLengths() {
			queued += length
		}
		if queued == 0 && services.Coordinator.PendingDecodes() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func serveMetrics(port int, services *backend.Services) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(services.Registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info.Printf("Serving metrics on %s/metrics", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error.Printf("Metrics server failed: %s", err)
		}
	}()
	return server
}
