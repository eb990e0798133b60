package wbot

import (
	"context"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"

	"your.org/helpdesk-whatsmeow/internal/log"
	"your.org/helpdesk-whatsmeow/internal/status"
)

func (m *Manager) registerEventHandlers(client *whatsmeow.Client, sess *session) {
	if client == nil || m.sink == nil {
		return
	}
	sessionID := sess.id

	client.AddEventHandler(func(evt interface{}) {
		ctx := context.Background()
		switch e := evt.(type) {
		case *events.Connected:
			status.Set(sessionID, "online")
			log.WithSession(sessionID).Info("evt=connected")

		case *events.Disconnected:
			status.Set(sessionID, "offline")
			log.WithSession(sessionID).Info("evt=disconnected")

		case *events.LoggedOut:
			status.Set(sessionID, "disconnected")
			log.WithSession(sessionID).Info("evt=logged_out reason=%v", e.Reason)

		case *events.Message:
			me, ok := translateMessage(e)
			if !ok {
				return
			}
			m.sink.HandleMessages(ctx, sess, []MessageEvent{me})

		case *events.Receipt:
			switch e.Type {
			case events.ReceiptTypeDelivered, events.ReceiptTypeRead, events.ReceiptTypePlayed:
				m.sink.HandleReceipts(ctx, sess, []ReceiptEvent{{
					Chat:       e.Chat.String(),
					Type:       mapReceiptType(e.Type),
					MessageIDs: messageIDs(e.MessageIDs),
				}})
			case events.ReceiptTypeSender:
				// Server-side ack carries no delivery semantics; surface
				// it as a raw status ordinal instead of a receipt.
				ups := make([]StatusEvent, 0, len(e.MessageIDs))
				for _, id := range e.MessageIDs {
					ups = append(ups, StatusEvent{ID: string(id), Status: 1})
				}
				if len(ups) > 0 {
					m.sink.HandleStatusUpdates(ctx, sess, ups)
				}
			}

		case *events.GroupInfo:
			up := GroupUpdate{JID: e.JID.String()}
			if e.Name != nil {
				subject := e.Name.Name
				up.Subject = &subject
			}
			m.sink.HandleGroupUpdates(ctx, sess, []GroupUpdate{up})
		}
	})
}

func mapReceiptType(t events.ReceiptType) string {
	switch t {
	case events.ReceiptTypeDelivered:
		return ReceiptDelivery
	case events.ReceiptTypeRead:
		return ReceiptRead
	case events.ReceiptTypePlayed:
		return ReceiptPlayed
	}
	return ""
}

func messageIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

// translateMessage flattens a whatsmeow message event into the
// pipeline's variant.  Returns ok=false for protocol noise that has
// neither text nor media (reactions, key distribution, polls...).
func translateMessage(e *events.Message) (MessageEvent, bool) {
	msg := unwrap(e.Message)
	if msg == nil {
		return MessageEvent{}, false
	}

	me := MessageEvent{
		ID:        e.Info.ID,
		Chat:      e.Info.Chat.String(),
		FromMe:    e.Info.IsFromMe,
		PushName:  e.Info.PushName,
		Timestamp: e.Info.Timestamp,
	}
	if e.Info.IsGroup {
		me.Participant = e.Info.Sender.String()
		if !e.Info.SenderAlt.IsEmpty() {
			me.ParticipantAlt = e.Info.SenderAlt.String()
		}
	}
	if !e.Info.RecipientAlt.IsEmpty() {
		me.ChatAlt = e.Info.RecipientAlt.String()
	}

	me.Body = extractText(msg)
	me.QuotedID = quotedStanzaID(msg)
	me.Media = extractMedia(msg)

	if me.Body == "" && me.Media == nil {
		return MessageEvent{}, false
	}
	return me, true
}

// unwrap strips the ephemeral / view-once envelopes so the inner
// content is classified like a plain message.
func unwrap(msg *waE2E.Message) *waE2E.Message {
	if msg == nil {
		return nil
	}
	if ep := msg.GetEphemeralMessage(); ep != nil && ep.GetMessage() != nil {
		return unwrap(ep.GetMessage())
	}
	if vo := msg.GetViewOnceMessage(); vo != nil && vo.GetMessage() != nil {
		return unwrap(vo.GetMessage())
	}
	if vo := msg.GetViewOnceMessageV2(); vo != nil && vo.GetMessage() != nil {
		return unwrap(vo.GetMessage())
	}
	return msg
}

func extractText(msg *waE2E.Message) string {
	switch {
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		return strings.TrimSpace(msg.GetExtendedTextMessage().GetText())
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetCaption()
	case msg.GetLocationMessage() != nil:
		l := msg.GetLocationMessage()
		return strings.TrimSpace(l.GetName() + " " + l.GetAddress())
	}
	return ""
}

func extractMedia(msg *waE2E.Message) *MediaRef {
	switch {
	case msg.GetImageMessage() != nil:
		im := msg.GetImageMessage()
		return &MediaRef{
			Kind:          "image",
			Mimetype:      im.GetMimetype(),
			URL:           im.GetURL(),
			DirectPath:    im.GetDirectPath(),
			MediaKey:      im.GetMediaKey(),
			FileSHA256:    im.GetFileSHA256(),
			FileEncSHA256: im.GetFileEncSHA256(),
			FileLength:    im.GetFileLength(),
		}
	case msg.GetStickerMessage() != nil:
		s := msg.GetStickerMessage()
		return &MediaRef{
			Kind:          "image",
			Mimetype:      s.GetMimetype(),
			URL:           s.GetURL(),
			DirectPath:    s.GetDirectPath(),
			MediaKey:      s.GetMediaKey(),
			FileSHA256:    s.GetFileSHA256(),
			FileEncSHA256: s.GetFileEncSHA256(),
			FileLength:    s.GetFileLength(),
		}
	case msg.GetVideoMessage() != nil:
		v := msg.GetVideoMessage()
		return &MediaRef{
			Kind:          "video",
			Mimetype:      v.GetMimetype(),
			URL:           v.GetURL(),
			DirectPath:    v.GetDirectPath(),
			MediaKey:      v.GetMediaKey(),
			FileSHA256:    v.GetFileSHA256(),
			FileEncSHA256: v.GetFileEncSHA256(),
			FileLength:    v.GetFileLength(),
		}
	case msg.GetAudioMessage() != nil:
		a := msg.GetAudioMessage()
		return &MediaRef{
			Kind:          "audio",
			Mimetype:      a.GetMimetype(),
			URL:           a.GetURL(),
			DirectPath:    a.GetDirectPath(),
			MediaKey:      a.GetMediaKey(),
			FileSHA256:    a.GetFileSHA256(),
			FileEncSHA256: a.GetFileEncSHA256(),
			FileLength:    a.GetFileLength(),
		}
	case msg.GetDocumentMessage() != nil:
		d := msg.GetDocumentMessage()
		return &MediaRef{
			Kind:          "document",
			Mimetype:      d.GetMimetype(),
			FileName:      strings.TrimSpace(d.GetFileName()),
			URL:           d.GetURL(),
			DirectPath:    d.GetDirectPath(),
			MediaKey:      d.GetMediaKey(),
			FileSHA256:    d.GetFileSHA256(),
			FileEncSHA256: d.GetFileEncSHA256(),
			FileLength:    d.GetFileLength(),
		}
	}
	return nil
}

func quotedStanzaID(msg *waE2E.Message) string {
	var ci *waE2E.ContextInfo
	switch {
	case msg.GetExtendedTextMessage() != nil:
		ci = msg.GetExtendedTextMessage().GetContextInfo()
	case msg.GetImageMessage() != nil:
		ci = msg.GetImageMessage().GetContextInfo()
	case msg.GetVideoMessage() != nil:
		ci = msg.GetVideoMessage().GetContextInfo()
	case msg.GetAudioMessage() != nil:
		ci = msg.GetAudioMessage().GetContextInfo()
	case msg.GetDocumentMessage() != nil:
		ci = msg.GetDocumentMessage().GetContextInfo()
	case msg.GetStickerMessage() != nil:
		ci = msg.GetStickerMessage().GetContextInfo()
	}
	if ci == nil {
		return ""
	}
	return strings.TrimSpace(ci.GetStanzaID())
}
