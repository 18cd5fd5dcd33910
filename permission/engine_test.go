package permission

import "testing"

func TestSet_Allow_ExactMatch(t *testing.T) {
	s := New([]Capability{Subscribe}, []string{"messages"}, nil)

	if !s.Allow(Subscribe, "messages") {
		t.Error("expected allow for exact match")
	}
	if s.Allow(Subscribe, "other") {
		t.Error("expected deny for non-matching subject")
	}
}

func TestSet_Allow_MissingCapabilityDenies(t *testing.T) {
	s := New([]Capability{Subscribe}, []string{"messages.>"}, nil)

	if s.Allow(Publish, "messages.x") {
		t.Error("expected deny when capability absent")
	}
}

func TestSet_Allow_WildcardSingle(t *testing.T) {
	s := New([]Capability{Subscribe}, []string{"messages.*"}, nil)

	if !s.Allow(Subscribe, "messages.user1") {
		t.Error("expected allow for messages.user1")
	}
	if s.Allow(Subscribe, "messages.user1.inbox") {
		t.Error("expected deny for messages.user1.inbox")
	}
}

func TestSet_Allow_WildcardMulti(t *testing.T) {
	s := New([]Capability{Subscribe}, []string{"messages.>"}, nil)

	if !s.Allow(Subscribe, "messages.user1") {
		t.Error("expected allow for messages.user1")
	}
	if !s.Allow(Subscribe, "messages.user1.inbox") {
		t.Error("expected allow for messages.user1.inbox")
	}
}

func TestSet_Allow_DenyTakesPrecedence(t *testing.T) {
	s := New([]Capability{Publish}, []string{"messages.>"}, []string{"messages.admin"})

	if !s.Allow(Publish, "messages.user") {
		t.Error("expected allow for messages.user")
	}
	if s.Allow(Publish, "messages.admin") {
		t.Error("expected deny for messages.admin despite allow list")
	}
}

func TestSet_Allow_EmptyAllowListDeniesAll(t *testing.T) {
	s := New([]Capability{Publish, Subscribe, Request}, nil, nil)

	if s.Allow(Publish, "anything") {
		t.Error("expected empty allow list to deny all subjects")
	}
}

func TestSet_Allow_EmptyDenyListDeniesNothing(t *testing.T) {
	s := New([]Capability{Publish}, []string{">"}, nil)

	if !s.Allow(Publish, "anything.at.all") {
		t.Error("expected empty deny list to deny nothing")
	}
}

// P4: adding a deny pattern leaves an unrelated allow intact and denies its
// own subject, and adding an allow pattern never turns an existing deny into
// a grant.
func TestSet_Allow_Monotonicity(t *testing.T) {
	base := New([]Capability{Publish}, []string{"messages.>"}, nil)
	if !base.Allow(Publish, "messages.user") {
		t.Fatal("sanity check failed: base set should allow messages.user")
	}

	withExtraDeny := New([]Capability{Publish}, []string{"messages.>"}, []string{"messages.admin"})
	if !withExtraDeny.Allow(Publish, "messages.user") {
		t.Error("adding an unrelated deny pattern should not affect an existing allow")
	}
	if withExtraDeny.Allow(Publish, "messages.admin") {
		t.Error("the new deny pattern should deny its matching subject")
	}

	deniedBase := New([]Capability{Publish}, nil, []string{"messages.admin"})
	if deniedBase.Allow(Publish, "messages.admin") {
		t.Fatal("sanity check failed: base set should deny messages.admin")
	}

	withExtraAllow := New([]Capability{Publish}, []string{"messages.>"}, []string{"messages.admin"})
	if withExtraAllow.Allow(Publish, "messages.admin") {
		t.Error("adding an allow pattern should not override an existing deny")
	}
}

func TestParseCapability(t *testing.T) {
	tests := []struct {
		in   string
		want Capability
		ok   bool
	}{
		{"publish", Publish, true},
		{"Subscribe", Subscribe, true},
		{"REQUEST", Request, true},
		{"invalid", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseCapability(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseCapability(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
