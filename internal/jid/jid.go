// Package jid normalizes the JID variants WhatsApp uses for the same
// logical party (device suffixes, agent suffixes, legacy domains, LID
// alternates) into a single canonical form.  All identity comparisons
// in the pipeline go through these helpers.
package jid

import "strings"

const (
	// DefaultUserServer is the canonical domain for individual chats.
	DefaultUserServer = "s.whatsapp.net"
	// GroupServer is the canonical domain for group chats.
	GroupServer = "g.us"
	// LegacyUserServer is the pre-multidevice individual domain still
	// seen on old payloads; it is rewritten to DefaultUserServer.
	LegacyUserServer = "c.us"
	// HostedServer marks hosted business accounts; it is accepted as a
	// phone-number-style domain and preserved as-is.
	HostedServer = "hosted"
)

// User strips the domain, any device suffix (":<n>") and any agent
// suffix ("_<n>") from a JID or bare user string, returning the bare
// user token.  Empty input yields empty output.
func User(jidOrUser string) string {
	if jidOrUser == "" {
		return ""
	}
	user := jidOrUser
	if at := strings.Index(user, "@"); at > -1 {
		user = user[:at]
	}
	if colon := strings.Index(user, ":"); colon > -1 {
		user = user[:colon]
	}
	if agent := strings.Index(user, "_"); agent > -1 {
		user = user[:agent]
	}
	return user
}

// Build returns a fully-qualified JID for the given number or address.
// Inputs without a domain get the default domain for the target kind.
// A provided domain is preserved, except that the legacy individual
// alias rewrites to the canonical individual domain and group targets
// are forced onto the group domain unless the supplied domain is
// already a group-domain variant.
func Build(value string, isGroup bool) string {
	user := User(value)
	defaultDomain := DefaultUserServer
	if isGroup {
		defaultDomain = GroupServer
	}
	at := strings.Index(value, "@")
	if at == -1 {
		return user + "@" + defaultDomain
	}
	domain := value[at+1:]
	if domain == "" {
		domain = defaultDomain
	}
	if isGroup {
		if domain != GroupServer && !strings.HasSuffix(domain, "."+GroupServer) {
			domain = GroupServer
		}
		return user + "@" + domain
	}
	if domain == LegacyUserServer {
		domain = DefaultUserServer
	}
	return user + "@" + domain
}

// Domain returns the domain segment of a JID, or "" when absent.
func Domain(jid string) string {
	if at := strings.Index(jid, "@"); at > -1 {
		return jid[at+1:]
	}
	return ""
}

// IsGroup reports whether the JID addresses a group chat.
func IsGroup(jid string) bool {
	return strings.HasSuffix(jid, "@"+GroupServer) || strings.HasSuffix(Domain(jid), "."+GroupServer)
}

// IsPhoneNumber reports whether the JID carries an individual
// phone-number-style domain rather than an alternate identity scheme
// such as LID.
func IsPhoneNumber(jid string) bool {
	if jid == "" {
		return false
	}
	switch Domain(jid) {
	case DefaultUserServer, LegacyUserServer, HostedServer:
		return true
	}
	return false
}

// PreferPhone selects between a primary and an alternate identifier
// for the same party, preferring whichever is a phone-number-style
// address and falling back to whichever is present.
func PreferPhone(jid, alt string) string {
	if IsPhoneNumber(jid) {
		return jid
	}
	if IsPhoneNumber(alt) {
		return alt
	}
	if jid != "" {
		return jid
	}
	return alt
}
