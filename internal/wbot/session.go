package wbot

import (
	"context"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

// session adapts a whatsmeow client to the Session interface.
type session struct {
	id  string
	cli *whatsmeow.Client
}

func (s *session) ID() string { return s.id }

func (s *session) SelfJID() string {
	if s.cli == nil || s.cli.Store == nil || s.cli.Store.ID == nil {
		return ""
	}
	return s.cli.Store.ID.String()
}

func (s *session) SelfAltJID() string {
	if s.cli == nil || s.cli.Store == nil || s.cli.Store.LID.IsEmpty() {
		return ""
	}
	return s.cli.Store.LID.String()
}

func (s *session) GroupSubject(ctx context.Context, jid string) (string, error) {
	gjid, err := types.ParseJID(jid)
	if err != nil {
		return "", fmt.Errorf("parse group jid: %w", err)
	}
	gi, err := s.cli.GetGroupInfo(ctx, gjid)
	if err != nil {
		return "", fmt.Errorf("get group info: %w", err)
	}
	return gi.Name, nil
}

func (s *session) ProfilePictureURL(ctx context.Context, jid string) (string, error) {
	pjid, err := types.ParseJID(jid)
	if err != nil {
		return "", fmt.Errorf("parse jid: %w", err)
	}
	info, err := s.cli.GetProfilePictureInfo(ctx, pjid, nil)
	if err != nil {
		return "", fmt.Errorf("get profile picture: %w", err)
	}
	if info == nil {
		return "", nil
	}
	return info.URL, nil
}

func (s *session) SendText(ctx context.Context, toJID, body string) (string, error) {
	to, err := types.ParseJID(toJID)
	if err != nil {
		return "", fmt.Errorf("parse recipient jid: %w", err)
	}
	wire := &waE2E.Message{Conversation: proto.String(body)}
	resp, err := s.cli.SendMessage(ctx, to, wire)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return string(resp.ID), nil
}

// downloadable adapts MediaRef to the download interface whatsmeow
// expects.
type downloadable struct {
	ref *MediaRef
}

func (d downloadable) GetURL() string           { return d.ref.URL }
func (d downloadable) GetDirectPath() string    { return d.ref.DirectPath }
func (d downloadable) GetMediaKey() []byte      { return d.ref.MediaKey }
func (d downloadable) GetFileLength() uint64    { return d.ref.FileLength }
func (d downloadable) GetFileSHA256() []byte    { return d.ref.FileSHA256 }
func (d downloadable) GetFileEncSHA256() []byte { return d.ref.FileEncSHA256 }

func (d downloadable) GetMediaType() whatsmeow.MediaType {
	switch d.ref.Kind {
	case "image":
		return whatsmeow.MediaImage
	case "video":
		return whatsmeow.MediaVideo
	case "audio":
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}

func (s *session) Download(ctx context.Context, ref *MediaRef) ([]byte, error) {
	if ref == nil {
		return nil, fmt.Errorf("nil media ref")
	}
	data, err := s.cli.Download(ctx, downloadable{ref: ref})
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	return data, nil
}

func (s *session) SendReadReceipts(ctx context.Context, chatJID string, ids []string) error {
	chat, err := types.ParseJID(chatJID)
	if err != nil {
		return fmt.Errorf("parse chat jid: %w", err)
	}
	msgIDs := make([]types.MessageID, 0, len(ids))
	for _, id := range ids {
		msgIDs = append(msgIDs, types.MessageID(id))
	}
	if err := s.cli.MarkRead(ctx, msgIDs, time.Now(), chat, types.EmptyJID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}
