package textassist

import (
	"bytes"
	"errors"
	"testing"

	"github.com/raaihank/vn-text-trim/internal/cleaner"
	"github.com/raaihank/vn-text-trim/internal/config"
	"github.com/raaihank/vn-text-trim/internal/rules"
)

func newEngine(t *testing.T) cleaner.Engine {
	t.Helper()

	rs, err := rules.Compile(config.RulesConfig{
		Dialogue: config.DialogueConfig{Extract: true},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	c, err := cleaner.New(rs)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestEncodeDecode(t *testing.T) {
	tests := []string{
		"",
		"hello",
		"「甘いものは別腹」",
		"𠮷野家", // outside the BMP
	}

	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			wide, err := Encode(text)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if !bytes.HasSuffix(wide, []byte{0, 0}) {
				t.Error("encoded string is not NUL terminated")
			}

			got, err := Decode(wide)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got != text {
				t.Errorf("Decode(Encode(%q)) = %q", text, got)
			}
		})
	}
}

func TestEncodeLayout(t *testing.T) {
	wide, err := Encode("A「")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := []byte{0x41, 0x00, 0x0C, 0x30, 0x00, 0x00}
	if !bytes.Equal(wide, want) {
		t.Errorf("Encode() = % x, want % x", wide, want)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		wide    []byte
		want    string
		wantErr error
	}{
		{"stops at terminator", []byte{0x41, 0x00, 0x00, 0x00, 0x42, 0x00}, "A", nil},
		{"no terminator", []byte{0x41, 0x00, 0x42, 0x00}, "AB", nil},
		{"odd length", []byte{0x41, 0x00, 0x42}, "", ErrOddLength},
		{"lone high surrogate", []byte{0x3D, 0xD8, 0x41, 0x00}, "", ErrInvalidUTF16},
		{"lone low surrogate", []byte{0x00, 0xDC}, "", ErrInvalidUTF16},
		{"trailing high surrogate", []byte{0x41, 0x00, 0x3D, 0xD8}, "", ErrInvalidUTF16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.wide)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModify(t *testing.T) {
	engine := newEngine(t)

	t.Run("changed", func(t *testing.T) {
		wide, _ := Encode("「甘いものは別腹」")
		out, ok, err := Modify(engine, wide)
		if err != nil || !ok {
			t.Fatalf("Modify() = %v, %v", ok, err)
		}
		text, _ := Decode(out)
		if text != "甘いものは別腹" {
			t.Errorf("Modify() = %q, want %q", text, "甘いものは別腹")
		}
	})

	t.Run("unchanged", func(t *testing.T) {
		wide, _ := Encode("甘いものは別腹")
		out, ok, err := Modify(engine, wide)
		if err != nil {
			t.Fatalf("Modify failed: %v", err)
		}
		if ok || out != nil {
			t.Errorf("expected no replacement, got %q", out)
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		_, ok, err := Modify(engine, []byte{0x00, 0xDC, 0x00, 0x00})
		if ok || err == nil {
			t.Errorf("expected error for invalid UTF-16, got ok=%v err=%v", ok, err)
		}
	})
}
