package castprotocol

const (
	StreamTypeBuffered = "BUFFERED"
	StreamTypeLive     = "LIVE"

	// metadataGeneric is the GenericMediaMetadata type of the default media receiver.
	metadataGeneric = 0
)

// MediaItem is the media descriptor handed to the receiver's LOAD command.
type MediaItem struct {
	ContentId   string     `json:"contentId"`
	ContentType string     `json:"contentType"`
	StreamType  string     `json:"streamType"`
	Duration    float32    `json:"duration,omitempty"`
	Metadata    *MediaMeta `json:"metadata,omitempty"`
}

// MediaMeta is what the receiver displays while buffering.
type MediaMeta struct {
	Type         int          `json:"type"`
	MetadataType int          `json:"metadataType"`
	Title        string       `json:"title,omitempty"`
	Images       []MediaImage `json:"images,omitempty"`
}

// MediaImage is a cover image reference.
type MediaImage struct {
	URL string `json:"url"`
}

// NewMediaItem builds a fresh descriptor for one load. An empty streamType
// means BUFFERED; an empty imageURL omits the cover.
func NewMediaItem(contentURL, contentType, streamType, title, imageURL string) MediaItem {
	if streamType == "" {
		streamType = StreamTypeBuffered
	}

	meta := &MediaMeta{
		Type:         metadataGeneric,
		MetadataType: metadataGeneric,
		Title:        title,
	}
	if imageURL != "" {
		meta.Images = []MediaImage{{URL: imageURL}}
	}

	return MediaItem{
		ContentId:   contentURL,
		ContentType: contentType,
		StreamType:  streamType,
		Metadata:    meta,
	}
}
