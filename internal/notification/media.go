package notification

import (
	"strings"

	"github.com/google/uuid"
)

// MediaKind is the classification derived from a media content type.
type MediaKind int

const (
	MediaUnknown MediaKind = iota
	MediaImage
	MediaGIF
	MediaVideo
	MediaAudio
)

func (k MediaKind) String() string {
	switch k {
	case MediaImage:
		return "image"
	case MediaGIF:
		return "gif"
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	default:
		return "unknown"
	}
}

const contentTypeGIF = "image/gif"

// Media is one asset attached to a notification.
type Media struct {
	URL         string      `json:"url"`
	ContentType string      `json:"content_type"`
	CacheKey    string      `json:"cache_key"`
	Orientation Orientation `json:"orientation"`
}

// newMedia reads a media block. Blocks without a content type are dropped.
func newMedia(o object, orientation Orientation) *Media {
	if o == nil {
		return nil
	}
	m := &Media{
		ContentType: o.str("content_type", ""),
		Orientation: orientation,
	}
	if url := o.str("url", ""); url != "" {
		m.URL = url
		if strings.HasPrefix(m.ContentType, "image") {
			m.CacheKey = uuid.NewString() + o.str("key", "")
		}
	}
	if m.ContentType == "" {
		return nil
	}
	return m
}

// Kind classifies the media by content type prefix.
func (m Media) Kind() MediaKind {
	switch {
	case m.ContentType == contentTypeGIF:
		return MediaGIF
	case strings.HasPrefix(m.ContentType, "image"):
		return MediaImage
	case strings.HasPrefix(m.ContentType, "video"):
		return MediaVideo
	case strings.HasPrefix(m.ContentType, "audio"):
		return MediaAudio
	default:
		return MediaUnknown
	}
}

func (m Media) IsImage() bool { return m.Kind() == MediaImage }
func (m Media) IsGIF() bool   { return m.Kind() == MediaGIF }
func (m Media) IsVideo() bool { return m.Kind() == MediaVideo }
func (m Media) IsAudio() bool { return m.Kind() == MediaAudio }
