package main

import (
	"time"

	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/backend/decoder"
	"vincit.fi/image-viewer/backend/evictor"
	"vincit.fi/image-viewer/backend/fileindex"
	"vincit.fi/image-viewer/backend/image"
	"vincit.fi/image-viewer/backend/scheduler"
	"vincit.fi/image-viewer/backend/viewer"
	"vincit.fi/image-viewer/common/app"
	"vincit.fi/image-viewer/common/config"
	"vincit.fi/image-viewer/common/event"
	"vincit.fi/image-viewer/common/logger"
	"vincit.fi/image-viewer/common/util"
)

const eventBusQueueSize = 1000

func main() {
	params := util.ParseParams()
	logger.Initialize(logger.StringToLogLevel(params.LogLevel()))

	conf, err := config.LoadFile(params.ConfigFile())
	if err != nil {
		logger.Error.Fatal("Cannot read configuration", err)
	}
	if params.Recursive() {
		conf.RecursiveScan = true
	}
	if params.SortBy() != "" {
		conf.SortKey = params.SortBy()
	}
	if params.SortReverse() {
		conf.SortReverse = true
	}

	context := app.NewContext()
	broker := event.InitBus(eventBusQueueSize)

	decoderFactory := decoder.NewFactory()
	store := image.NewStore(decoderFactory, conf.FrameRingCapacity, conf.ThumbnailMaxEdge)

	imageEvictor := evictor.NewEvictor(context, store, time.Duration(conf.EvictionDelayMs)*time.Millisecond)
	imageEvictor.Start()

	taskScheduler := scheduler.NewScheduler(context)

	watcher, err := fileindex.NewWatcher()
	if err != nil {
		logger.Error.Fatal("Cannot initialize file watcher", err)
	}
	scanner := fileindex.NewScanner(fileindex.NewLister(), conf.AllowedExtensionSet())

	order := apitype.SortAscending
	if conf.SortReverse {
		order = apitype.SortDescending
	}
	viewerService := viewer.NewImageViewerService(context, broker, taskScheduler, watcher,
		scanner, store, imageEvictor, conf.ResolvedSortKey(), order, conf.RecursiveScan,
		conf.PrefetchForward, conf.PrefetchBackward)

	defer func() {
		context.Quit()
		viewerService.Close()
		taskScheduler.Close()
		watcher.Close()
		imageEvictor.Stop()
		store.Purge()
	}()

	if params.RootPath() != "" {
		viewerService.SetViewerPath(&api.SetPathCommand{Path: params.RootPath()})
	}

	runUiLoop(viewerService, broker)
}

// runUiLoop stands in for the rendering scene: it ticks the viewer
// and advances animation frames for the image on screen.
func runUiLoop(viewerService *viewer.Service, broker *event.Broker) {
	var current api.ImageHandle
	updates := make(chan api.ImageHandle, eventBusQueueSize)
	broker.Subscribe(api.ImageChanged, func(command *api.UpdateImageCommand) {
		updates <- command.Image
	})

	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()
	frameShownAt := time.Now()
	for range ticker.C {
		viewerService.Tick()
		select {
		case current = <-updates:
			frameShownAt = time.Now()
		default:
		}
		if current == nil {
			continue
		}
		frame := current.CurrentFrame()
		if frame != nil && frame.Duration() > 0 && time.Since(frameShownAt) >= frame.Duration() {
			if current.AdvanceToNextFrame() {
				frameShownAt = time.Now()
			}
		}
	}
}
