package core

import "testing"

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"simple", "test content"},
		{"empty string", ""},
		{"long content", "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	if IDFromContent("content1") == IDFromContent("content2") {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestParseReferenceType(t *testing.T) {
	for i, name := range referenceTypeNames {
		got, err := ParseReferenceType(name)
		if err != nil {
			t.Fatalf("ParseReferenceType(%q) error = %v", name, err)
		}
		if got != ReferenceType(i) {
			t.Errorf("ParseReferenceType(%q) = %v, want %v", name, got, ReferenceType(i))
		}
		if got.String() != name {
			t.Errorf("String() = %q, want %q", got.String(), name)
		}
	}

	if got, err := ParseReferenceType(" Document "); err != nil || got != RefDocument {
		t.Errorf("ParseReferenceType(\" Document \") = %v, %v", got, err)
	}
	if _, err := ParseReferenceType("webpage"); err == nil {
		t.Errorf("ParseReferenceType(\"webpage\") expected error")
	}
}

func TestIngestionReference_Base(t *testing.T) {
	ref := &IngestionReference{Content: "prev. body text. next.", BaseOffset: 6, BaseLength: 11}
	if got := ref.Base(); got != "body text. " {
		t.Errorf("Base() = %q", got)
	}

	bad := &IngestionReference{Content: "short", BaseOffset: 2, BaseLength: 10}
	if got := bad.Base(); got != "" {
		t.Errorf("Base() with out-of-range length = %q, want empty", got)
	}
}

func TestOwner(t *testing.T) {
	if got := UserOwner(42).Namespace(); got != "user_42" {
		t.Errorf("Namespace() = %q", got)
	}
	if got := GroupOwner(7).Namespace(); got != "group_7" {
		t.Errorf("Namespace() = %q", got)
	}
	if !(Owner{}).IsZero() {
		t.Errorf("zero Owner should report IsZero")
	}
}

func TestCaller_CanSee(t *testing.T) {
	c := Caller{UserId: 1, Groups: []ID{10, 11}}

	tests := []struct {
		owner Owner
		want  bool
	}{
		{UserOwner(1), true},
		{UserOwner(2), false},
		{GroupOwner(10), true},
		{GroupOwner(11), true},
		{GroupOwner(12), false},
		{Owner{}, false},
	}
	for _, tt := range tests {
		if got := c.CanSee(tt.owner); got != tt.want {
			t.Errorf("CanSee(%v) = %v, want %v", tt.owner, got, tt.want)
		}
	}

	owners := c.Owners()
	if len(owners) != 3 || owners[0] != UserOwner(1) || owners[2] != GroupOwner(11) {
		t.Errorf("Owners() = %v", owners)
	}
}

func TestGroup_HasMember(t *testing.T) {
	g := &Group{Members: []ID{1, 2}}
	if !g.HasMember(2) || g.HasMember(3) {
		t.Errorf("HasMember() mismatch for %v", g.Members)
	}
}
