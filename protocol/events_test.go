package protocol

import (
	"errors"
	"testing"
)

func TestEncodeParse(t *testing.T) {
	raw, err := Encode(EventCodeChange, CodeChange{Room: "r1", Content: "x=1\ny=2"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}
	if env.Type != EventCodeChange {
		t.Errorf("Expected type %s, got %s", EventCodeChange, env.Type)
	}

	var change CodeChange
	if err := env.Decode(&change); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if change.Room != "r1" || change.Content != "x=1\ny=2" {
		t.Errorf("Unexpected payload: %+v", change)
	}
}

func TestNewEnvelope_NilPayload(t *testing.T) {
	env, err := NewEnvelope(EventLeave, nil)
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	if len(env.Data) != 0 {
		t.Errorf("Expected empty data, got %s", env.Data)
	}

	var leave Leave
	if err := env.Decode(&leave); !errors.Is(err, ErrMalformedEnvelope) {
		t.Errorf("Expected ErrMalformedEnvelope decoding empty payload, got %v", err)
	}
}

func TestParseEnvelope_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "hello"},
		{"missing type", `{"data":{"content":"x"}}`},
		{"empty object", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEnvelope([]byte(tt.raw))
			if !errors.Is(err, ErrMalformedEnvelope) {
				t.Errorf("Expected ErrMalformedEnvelope, got %v", err)
			}
		})
	}
}

func TestDecode_WrongShape(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"roster-sync","data":{"participants":"nope"}}`))
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}

	var roster RosterSync
	if err := env.Decode(&roster); !errors.Is(err, ErrMalformedEnvelope) {
		t.Errorf("Expected ErrMalformedEnvelope, got %v", err)
	}
}

func TestCheckFrameSize(t *testing.T) {
	if err := CheckFrameSize(make([]byte, MaxFrameSize)); err != nil {
		t.Errorf("Frame at the limit should pass, got %v", err)
	}
	if err := CheckFrameSize(make([]byte, MaxFrameSize+1)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Expected ErrFrameTooLarge, got %v", err)
	}
}
