package viewer

import (
	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/backend/evictor"
	"vincit.fi/image-viewer/backend/fileindex"
	"vincit.fi/image-viewer/backend/image"
	"vincit.fi/image-viewer/common/app"
	"vincit.fi/image-viewer/common/logger"
)

// Service is the api facade over the viewer manager. It owns no logic
// of its own: it forwards commands and reports failures on the bus.
type Service struct {
	sender  api.Sender
	service *internalManager

	api.ImageViewerService
}

func NewImageViewerService(context *app.Context, sender api.Sender, scheduler api.Scheduler,
	watcher api.FileWatcher, scanner *fileindex.Scanner, store *image.Store,
	imageEvictor *evictor.Evictor, sortKey apitype.SortKey, order apitype.SortOrder,
	recursive bool, prefetchForward int, prefetchBackward int) *Service {
	return &Service{
		sender: sender,
		service: newManager(context, sender, scheduler, watcher, scanner, store,
			imageEvictor, sortKey, order, recursive, prefetchForward, prefetchBackward),
	}
}

func (s *Service) SetViewerPath(command *api.SetPathCommand) {
	if err := s.service.SetViewerPath(command.Path); err != nil {
		s.sender.SendError("Error while opening path", err)
	}
}

func (s *Service) JumpToIndex(query *api.ImageQuery) {
	s.service.JumpToIndex(query.Index)
}

func (s *Service) JumpToFilename(query *api.ImageByNameQuery) {
	if !s.service.JumpToFilename(query.Path) {
		logger.Debug.Printf("No image with name '%s'", query.Path)
	}
}

func (s *Service) JumpToDirectory(query *api.ImageByNameQuery) {
	if !s.service.JumpToDirectory(query.Path) {
		logger.Debug.Printf("No image under directory '%s'", query.Path)
	}
}

func (s *Service) NextImage() {
	s.service.ChangeImage(1)
}

func (s *Service) PreviousImage() {
	s.service.ChangeImage(-1)
}

func (s *Service) ChangeImage(command *api.ChangeImageCommand) {
	s.service.ChangeImage(command.Delta)
}

func (s *Service) DeleteCurrentImage() {
	if err := s.service.DeleteCurrentImage(); err != nil {
		s.sender.SendError("Error while deleting image", err)
	}
}

func (s *Service) ReloadCurrentImage() {
	s.service.ReloadCurrentImage()
}

func (s *Service) RotateCurrentImage(command *api.RotateCommand) {
	s.service.RotateCurrentImage(command.Clockwise)
}

func (s *Service) SetSorting(command *api.SortCommand) {
	order := apitype.SortAscending
	if command.Reverse {
		order = apitype.SortDescending
	}
	s.service.SetSorting(command.Key, order)
}

func (s *Service) CurrentImageIndex() int {
	return s.service.CurrentImageIndex()
}

func (s *Service) NumImages() int {
	return s.service.NumImages()
}

func (s *Service) CurrentFilepath(absolute bool) string {
	return s.service.CurrentFilepath(absolute)
}

func (s *Service) CurrentImage() api.ImageHandle {
	if img := s.service.CurrentImage(); img != nil {
		return img
	}
	return nil
}

func (s *Service) IsScanningFiles() bool {
	return s.service.IsScanningFiles()
}

func (s *Service) IsFirstScanComplete() bool {
	return s.service.IsFirstScanComplete()
}

func (s *Service) GetStats() string {
	return s.service.GetStats()
}

func (s *Service) Tick() {
	s.service.Tick()
}

func (s *Service) Close() {
	s.service.close()
}
