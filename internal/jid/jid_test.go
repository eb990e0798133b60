package jid

import "testing"

func TestUserStripsDeviceAndAgent(t *testing.T) {
	cases := map[string]string{
		"5562991728088@s.whatsapp.net":    "5562991728088",
		"5562991728088:12@s.whatsapp.net": "5562991728088",
		"5562991728088_1@s.whatsapp.net":  "5562991728088",
		"5562991728088:2_3@c.us":          "5562991728088",
		"5562991728088":                   "5562991728088",
		"123456-789@g.us":                 "123456-789",
		"":                                "",
	}
	for in, want := range cases {
		if got := User(in); got != want {
			t.Fatalf("User(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUserIdempotent(t *testing.T) {
	inputs := []string{
		"5562991728088:55@s.whatsapp.net",
		"5562991728088_2@hosted",
		"99999@lid",
		"",
	}
	for _, in := range inputs {
		once := User(in)
		if twice := User(once); twice != once {
			t.Fatalf("User not idempotent for %q: %q != %q", in, twice, once)
		}
	}
}

func TestBuildAppendsDefaultDomain(t *testing.T) {
	if got := Build("5562991728088", false); got != "5562991728088@s.whatsapp.net" {
		t.Fatalf("Build user = %s", got)
	}
	if got := Build("123456789", true); got != "123456789@g.us" {
		t.Fatalf("Build group = %s", got)
	}
}

func TestBuildRewritesLegacyDomain(t *testing.T) {
	if got := Build("5562991728088@c.us", false); got != "5562991728088@s.whatsapp.net" {
		t.Fatalf("legacy rewrite = %s", got)
	}
	// non-alias domains are preserved
	if got := Build("99999@lid", false); got != "99999@lid" {
		t.Fatalf("lid preserved = %s", got)
	}
}

func TestBuildForcesGroupDomain(t *testing.T) {
	if got := Build("123456789@s.whatsapp.net", true); got != "123456789@g.us" {
		t.Fatalf("forced group domain = %s", got)
	}
	// group-domain variants stay untouched
	if got := Build("123456789@abc.g.us", true); got != "123456789@abc.g.us" {
		t.Fatalf("group variant = %s", got)
	}
}

func TestIsGroup(t *testing.T) {
	if !IsGroup("123@g.us") || !IsGroup("123@x.g.us") {
		t.Fatal("group JIDs not detected")
	}
	if IsGroup("123@s.whatsapp.net") {
		t.Fatal("user JID detected as group")
	}
}

func TestPreferPhone(t *testing.T) {
	if got := PreferPhone("99@lid", "55@s.whatsapp.net"); got != "55@s.whatsapp.net" {
		t.Fatalf("alt not preferred: %s", got)
	}
	if got := PreferPhone("55@c.us", "99@lid"); got != "55@c.us" {
		t.Fatalf("phone-style primary not kept: %s", got)
	}
	if got := PreferPhone("", "99@lid"); got != "99@lid" {
		t.Fatalf("fallback to alt failed: %s", got)
	}
	if got := PreferPhone("99@lid", ""); got != "99@lid" {
		t.Fatalf("fallback to primary failed: %s", got)
	}
}
