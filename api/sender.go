package api

import "vincit.fi/image-viewer/api/apitype"

type Topic string

const (
	ImageChanged         = Topic("event-image-changed")
	ImageListUpdated     = Topic("event-image-list-updated")
	ProcessStatusUpdated = Topic("event-process-status-updated")

	ShowError = Topic("event-show-error")
)

type Sender interface {
	SendToTopic(topic Topic)
	SendCommandToTopic(topic Topic, command apitype.Command)
	SendError(message string, err error)
}
