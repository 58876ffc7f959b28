package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := Envelope{Type: MsgFSWrite, RequestID: 0xdeadbeef, Body: []byte("/etc/passwd")}
	raw := e.Encode()

	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != e.Type {
		t.Errorf("Type = %v, want %v", got.Type, e.Type)
	}
	if got.RequestID != e.RequestID {
		t.Errorf("RequestID = %x, want %x", got.RequestID, e.RequestID)
	}
	if !bytes.Equal(got.Body, e.Body) {
		t.Errorf("Body = %q, want %q", got.Body, e.Body)
	}
}

func TestEncodeEmptyBody(t *testing.T) {
	e := Envelope{Type: MsgStdout, RequestID: 0}
	raw := e.Encode()
	if len(raw) != envelopeHeaderLen {
		t.Fatalf("len(raw) = %d, want %d", len(raw), envelopeHeaderLen)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Body) != 0 {
		t.Errorf("Body = %v, want empty", got.Body)
	}
}

func TestDecodeTooShort(t *testing.T) {
	if _, err := Decode([]byte{0x01, 0x02}); err == nil {
		t.Fatal("expected error for short payload")
	}
}

func TestMsgTypeIsProbe(t *testing.T) {
	probes := []MsgType{MsgFSRead, MsgFSWrite, MsgNetConnect, MsgExec, MsgListDir}
	for _, p := range probes {
		if !p.IsProbe() {
			t.Errorf("%v.IsProbe() = false, want true", p)
		}
	}
	nonProbes := []MsgType{MsgStdout, MsgAllow, MsgDeny, MsgCode}
	for _, p := range nonProbes {
		if p.IsProbe() {
			t.Errorf("%v.IsProbe() = true, want false", p)
		}
	}
}

func TestMsgTypeString(t *testing.T) {
	if MsgCode.String() != "CODE" {
		t.Errorf("MsgCode.String() = %q", MsgCode.String())
	}
	if MsgType(0x99).String() == "" {
		t.Error("unknown MsgType should still stringify")
	}
}
