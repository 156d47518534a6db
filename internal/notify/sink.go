package notify

import (
	"secure-file-share/internal/catalog"
)

const (
	EventNewFileUploaded  = "new_file_uploaded"
	EventFileSharedWithMe = "file_shared_with_me"
	EventMyResponse       = "my_response"
)

// FileInfo is the wire form of a catalog file record, shared by the live
// channel and the listing endpoints.
type FileInfo struct {
	ID               int64  `json:"id"`
	Filename         string `json:"filename"`
	StoredFilename   string `json:"stored_filename"`
	SHA256           string `json:"sha256"`
	UploaderID       int64  `json:"uploader_id"`
	UploaderUsername string `json:"uploader_username"`
	UploadTimestamp  int64  `json:"upload_timestamp"`
}

func NewFileInfo(f catalog.FileRecord) FileInfo {
	return FileInfo{
		ID:               f.ID,
		Filename:         f.OriginalName,
		StoredFilename:   f.StoredName,
		SHA256:           f.Fingerprint,
		UploaderID:       f.OwnerID,
		UploaderUsername: f.OwnerName,
		UploadTimestamp:  f.CreatedAt.Unix(),
	}
}

type FileUploadedData struct {
	File     FileInfo `json:"file"`
	Uploader string   `json:"uploader"`
}

type FileSharedData struct {
	FileID         int64    `json:"file_id"`
	FileInfo       FileInfo `json:"file_info"`
	SenderUsername string   `json:"sender_username"`
}

// CatalogSink turns catalog events into hub deliveries.
type CatalogSink struct {
	Hub *Hub
}

func (s CatalogSink) Emit(e catalog.Event) {
	switch ev := e.(type) {
	case catalog.FileUploaded:
		s.Hub.Broadcast(Event{
			Name: EventNewFileUploaded,
			Data: FileUploadedData{File: NewFileInfo(ev.File), Uploader: ev.Uploader},
		})
	case catalog.FileShared:
		s.Hub.Publish(ev.Grant.ReceiverID, Event{
			Name: EventFileSharedWithMe,
			Data: FileSharedData{
				FileID:         ev.Grant.File.ID,
				FileInfo:       NewFileInfo(ev.Grant.File),
				SenderUsername: ev.Grant.SenderName,
			},
		})
	}
}
