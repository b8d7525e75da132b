package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/steward/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"GrantID", id.NewGrantID, "grant_"},
		{"AuditID", id.NewAuditID, "adt_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixGrant)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixGrant {
		t.Errorf("expected prefix %q, got %q", id.PrefixGrant, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"GrantID", id.NewGrantID, id.ParseGrantID},
		{"AuditID", id.NewAuditID, id.ParseAuditID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := tt.newFn()
			parsed, err := tt.parseFn(orig.String())
			if err != nil {
				t.Fatal(err)
			}
			if parsed != orig {
				t.Errorf("round trip mismatch: %q != %q", parsed, orig)
			}
		})
	}
}

func TestParseWithPrefix_Mismatch(t *testing.T) {
	grantID := id.NewGrantID()
	if _, err := id.ParseAuditID(grantID.String()); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Fatal("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	if !id.Nil.IsNil() {
		t.Fatal("Nil should be nil")
	}
	if id.Nil.String() != "" {
		t.Fatalf("Nil string should be empty, got %q", id.Nil.String())
	}
}

func TestTextMarshalling(t *testing.T) {
	orig := id.NewGrantID()

	data, err := orig.MarshalText()
	if err != nil {
		t.Fatal(err)
	}

	var parsed id.ID
	if err := parsed.UnmarshalText(data); err != nil {
		t.Fatal(err)
	}
	if parsed != orig {
		t.Errorf("text round trip mismatch: %q != %q", parsed, orig)
	}
}

func TestScanValue(t *testing.T) {
	orig := id.NewGrantID()

	v, err := orig.Value()
	if err != nil {
		t.Fatal(err)
	}

	var scanned id.ID
	if err := scanned.Scan(v); err != nil {
		t.Fatal(err)
	}
	if scanned != orig {
		t.Errorf("scan round trip mismatch: %q != %q", scanned, orig)
	}

	var nilScanned id.ID
	if err := nilScanned.Scan(nil); err != nil {
		t.Fatal(err)
	}
	if !nilScanned.IsNil() {
		t.Fatal("scanning nil should yield Nil ID")
	}
}
