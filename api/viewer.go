package api

import (
	"vincit.fi/image-viewer/api/apitype"
)

type ImageQuery struct {
	Index int
	apitype.Command
}

type ImageByNameQuery struct {
	Path string
	apitype.Command
}

type ChangeImageCommand struct {
	Delta int
	apitype.Command
}

type SetPathCommand struct {
	Path string
	apitype.Command
}

type RotateCommand struct {
	Clockwise bool
	apitype.Command
}

type SortCommand struct {
	Key     apitype.SortKey
	Reverse bool
	apitype.Command
}

type UpdateImageCommand struct {
	Image ImageHandle
	Index int
	Total int
	apitype.Command
}

type SetFileListCommand struct {
	Total int
	apitype.Command
}

type ErrorCommand struct {
	Message string
	apitype.Command
}

type UpdateProgressCommand struct {
	Name    string
	Current int
	Total   int
	apitype.Command
}

// ImageHandle is the viewer-facing view of one image: the UI reads
// the current frame from it and never touches the decoder directly.
type ImageHandle interface {
	File() *apitype.ImageFile
	Key() apitype.ImageKey
	CurrentFrame() *apitype.Frame
	AdvanceToNextFrame() bool
	Thumbnail() *apitype.Frame
	IsError() bool
	ErrorText() string
}

// ImageViewerService drives the image management core. Navigation
// only marks pending state, which Tick applies from the UI loop; path,
// sorting, delete, reload and rotate act immediately.
type ImageViewerService interface {
	SetViewerPath(command *SetPathCommand)

	JumpToIndex(query *ImageQuery)
	JumpToFilename(query *ImageByNameQuery)
	JumpToDirectory(query *ImageByNameQuery)
	NextImage()
	PreviousImage()
	ChangeImage(command *ChangeImageCommand)

	DeleteCurrentImage()
	ReloadCurrentImage()
	RotateCurrentImage(command *RotateCommand)
	SetSorting(command *SortCommand)

	CurrentImageIndex() int
	NumImages() int
	CurrentFilepath(absolute bool) string
	CurrentImage() ImageHandle
	IsScanningFiles() bool
	IsFirstScanComplete() bool

	Tick()
	Close()
}
