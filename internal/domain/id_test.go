package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNewDocumentIDIsCanonical(t *testing.T) {
	seen := map[DocumentID]struct{}{}
	for i := 0; i < 100; i++ {
		id := NewDocumentID()
		if !id.Valid() {
			t.Fatalf("generated id %q is not canonical", id)
		}
		if id.String() != strings.ToLower(id.String()) {
			t.Fatalf("generated id %q is not lowercase", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("generated id %q twice", id)
		}
		seen[id] = struct{}{}
	}
}

func TestParseDocumentIDAcceptsBothEncodings(t *testing.T) {
	id := NewDocumentID()

	parsed, err := ParseDocumentID(id.String())
	if err != nil {
		t.Fatalf("parse raw hex: %v", err)
	}
	if parsed != id {
		t.Fatalf("raw hex parsed to %q, want %q", parsed, id)
	}

	parsed, err = ParseDocumentID(map[string]any{"$oid": id.String()})
	if err != nil {
		t.Fatalf("parse $oid object: %v", err)
	}
	if parsed != id {
		t.Fatalf("$oid object parsed to %q, want %q", parsed, id)
	}

	parsed, err = ParseDocumentID(strings.ToUpper(id.String()))
	if err != nil {
		t.Fatalf("parse uppercase hex: %v", err)
	}
	if parsed != id {
		t.Fatalf("uppercase hex not normalized: got %q, want %q", parsed, id)
	}
}

func TestParseDocumentIDRejectsMalformedInput(t *testing.T) {
	cases := []any{
		"",
		"abc",
		"zzzzzzzzzzzzzzzzzzzzzzzz",
		strings.Repeat("a", 23),
		strings.Repeat("a", 25),
		map[string]any{"oid": "aaaaaaaaaaaaaaaaaaaaaaaa"},
		42,
		nil,
	}
	for _, input := range cases {
		if _, err := ParseDocumentID(input); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("ParseDocumentID(%v) = %v, want ErrInvalidArgument", input, err)
		}
	}
}
