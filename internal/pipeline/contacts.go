package pipeline

import (
	"context"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"your.org/helpdesk-whatsmeow/internal/log"
	"your.org/helpdesk-whatsmeow/internal/model"
	"your.org/helpdesk-whatsmeow/internal/store"
	"your.org/helpdesk-whatsmeow/internal/wbot"
)

// Push names that look like automated senders must not overwrite a
// contact's stored name.  Matching is case-insensitive on the prefix.
var genericNamePrefixes = []string{
	"server",
	"layanan",
	"aduan",
	"customer service",
	"support",
	"whatsapp",
	"notifikasi",
	"pesan",
	"pengaduan",
}

var phoneLikeRE = regexp.MustCompile(`^\+?\d[\d\s-]{4,}$`)

// sanitizePushName returns "" when the push name is unusable as a
// display name: empty, phone-number-like, or a generic sender prefix.
func sanitizePushName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if phoneLikeRE.MatchString(name) {
		return ""
	}
	if num, err := phonenumbers.Parse(name, "ID"); err == nil && phonenumbers.IsValidNumber(num) {
		return ""
	}
	lower := strings.ToLower(name)
	for _, prefix := range genericNamePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}
	return name
}

// resolveContact upserts the contact for the given identity.  The
// display name falls back to the bare number when the push name is
// rejected; the raw push name is kept as extra info either way.
func (p *Pipeline) resolveContact(ctx context.Context, pushName, number string, isGroup bool) (model.Contact, error) {
	name := sanitizePushName(pushName)
	if isGroup {
		// Group subjects are operator-visible verbatim.
		name = strings.TrimSpace(pushName)
	}
	var extra []model.ExtraInfo
	if raw := strings.TrimSpace(pushName); raw != "" && !isGroup {
		extra = append(extra, model.ExtraInfo{Name: "waPushName", Value: raw})
	}
	// A new contact still needs a display name.
	if name == "" {
		existing, err := p.db.ContactByNumber(ctx, number, isGroup)
		if err == nil {
			name = existing.Name
		}
	}
	if name == "" {
		name = number
	}
	return p.db.UpsertContact(ctx, store.UpsertContactParams{
		Name:      name,
		Number:    number,
		IsGroup:   isGroup,
		ExtraInfo: extra,
	})
}

// fetchProfilePicture lazily attaches an avatar to a contact that has
// none.  Best effort; a fetch failure leaves the picture unset.
func (p *Pipeline) fetchProfilePicture(ctx context.Context, sess wbot.Session, contact model.Contact, chatJID string) {
	if contact.ProfilePicURL != "" {
		return
	}
	url, err := sess.ProfilePictureURL(ctx, chatJID)
	if err != nil || url == "" {
		if err != nil {
			log.WithSession(sess.ID()).Debug("profile picture fetch: %v", err)
		}
		return
	}
	if _, err := p.db.UpsertContact(ctx, store.UpsertContactParams{
		Name:          contact.Name,
		Number:        contact.Number,
		IsGroup:       contact.IsGroup,
		ProfilePicURL: url,
	}); err != nil {
		log.WithSession(sess.ID()).Error("profile picture store: %v", err)
	}
}
