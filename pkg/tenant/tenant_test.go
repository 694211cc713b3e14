package tenant

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantBase    string
		wantSession string
		wantErr     bool
	}{
		{
			name:     "bare tenant",
			raw:      "acme",
			wantBase: "acme",
		},
		{
			name:        "tenant with session",
			raw:         "acme:alice@laptop",
			wantBase:    "acme",
			wantSession: "alice@laptop",
		},
		{
			name:        "session with allowed punctuation",
			raw:         "acme:u+1.test-2",
			wantBase:    "acme",
			wantSession: "u+1.test-2",
		},
		{
			name:    "empty identifier",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "empty session component",
			raw:     "acme:",
			wantErr: true,
		},
		{
			name:    "double colon",
			raw:     "acme:a:b",
			wantErr: true,
		},
		{
			name:    "session with space",
			raw:     "acme:bad session",
			wantErr: true,
		},
		{
			name:    "session with slash",
			raw:     "acme:a/b",
			wantErr: true,
		},
		{
			name:    "base with slash",
			raw:     "ac/me",
			wantErr: true,
		},
		{
			name:    "session too long",
			raw:     "acme:" + strings.Repeat("x", 129),
			wantErr: true,
		},
		{
			name:        "session at max length",
			raw:         "acme:" + strings.Repeat("x", 128),
			wantBase:    "acme",
			wantSession: strings.Repeat("x", 128),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := Parse(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) succeeded, want error", tt.raw)
				}
				if _, ok := err.(*InvalidKeyError); !ok {
					t.Errorf("Parse(%q) error = %T, want *InvalidKeyError", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.raw, err)
			}
			if key.Base != tt.wantBase {
				t.Errorf("Base = %q, want %q", key.Base, tt.wantBase)
			}
			if key.Session != tt.wantSession {
				t.Errorf("Session = %q, want %q", key.Session, tt.wantSession)
			}
		})
	}
}

func TestKeyString(t *testing.T) {
	if got := (Key{Base: "acme"}).String(); got != "acme" {
		t.Errorf("String() = %q, want %q", got, "acme")
	}
	if got := (Key{Base: "acme", Session: "s1"}).String(); got != "acme:s1" {
		t.Errorf("String() = %q, want %q", got, "acme:s1")
	}
}

func TestSessionScoped(t *testing.T) {
	if (Key{Base: "acme"}).SessionScoped() {
		t.Error("bare key reported as session scoped")
	}
	if !(Key{Base: "acme", Session: "s"}).SessionScoped() {
		t.Error("session key not reported as session scoped")
	}
}
