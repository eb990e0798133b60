package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	mp3 "github.com/hajimehoshi/go-mp3"

	"your.org/helpdesk-whatsmeow/internal/log"
	"your.org/helpdesk-whatsmeow/internal/model"
	"your.org/helpdesk-whatsmeow/internal/wbot"
)

// persistedMedia is the outcome of a successful media persist.
type persistedMedia struct {
	URL      string
	Category string
	FileName string
}

// mediaCategory maps a media ref kind to the stored category.
func mediaCategory(kind string) string {
	switch kind {
	case "image":
		return model.MediaImage
	case "video":
		return model.MediaVideo
	case "audio":
		return model.MediaAudio
	case "document":
		return model.MediaDocument
	}
	return ""
}

// The types WhatsApp actually sends, pinned so the mapping does not
// depend on the host's mime tables.
var wellKnownExts = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"audio/ogg":       ".ogg",
	"audio/mpeg":      ".mp3",
	"audio/mp4":       ".m4a",
	"application/pdf": ".pdf",
}

// extensionByMime derives a file extension from the declared MIME
// type, ".bin" when nothing sensible is registered.
func extensionByMime(mimetype string) string {
	base := strings.TrimSpace(mimetype)
	if i := strings.Index(base, ";"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	if ext, ok := wellKnownExts[base]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(base)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	return exts[0]
}

// persistMedia downloads and stores the event's attachment.  Any
// failure is logged and reported as nil so the caller records the
// message without media.
func (p *Pipeline) persistMedia(ctx context.Context, sess wbot.Session, evt wbot.MessageEvent) *persistedMedia {
	ref := evt.Media
	if ref == nil {
		return nil
	}
	category := mediaCategory(ref.Kind)
	if category == "" {
		return nil
	}
	entry := log.WithSession(sess.ID()).WithMessageID(evt.ID)

	data, err := sess.Download(ctx, ref)
	if err != nil {
		entry.Error("media download failed kind=%s: %v", ref.Kind, err)
		return nil
	}

	ext := extensionByMime(ref.Mimetype)
	objectName := fmt.Sprintf("%s-%d%s", uuid.NewString(), time.Now().UnixMilli(), ext)

	if category == model.MediaAudio {
		if secs := mp3Duration(data, ref.Mimetype); secs > 0 {
			entry.Debug("audio duration secs=%d", secs)
		}
	}

	if p.content == nil {
		entry.Error("media upload skipped object=%s: no object store configured", objectName)
		return nil
	}

	url, err := p.content.Upload(ctx, objectName, data, ref.Mimetype)
	if err != nil {
		entry.Error("media upload failed object=%s: %v", objectName, err)
		return nil
	}

	fileName := strings.TrimSpace(ref.FileName)
	if fileName == "" {
		fileName = objectName
	}
	entry.Info("media persisted object=%s category=%s bytes=%d", objectName, category, len(data))
	return &persistedMedia{URL: url, Category: category, FileName: fileName}
}

// mp3Duration probes an mpeg audio payload for its length in seconds,
// 0 when the payload is not decodable mp3.
func mp3Duration(data []byte, mimetype string) int {
	if !strings.Contains(mimetype, "mpeg") && !strings.Contains(mimetype, "mp3") {
		return 0
	}
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	if dec.SampleRate() <= 0 {
		return 0
	}
	// 4 bytes per stereo 16-bit sample.
	return int(dec.Length() / int64(4*dec.SampleRate()))
}
