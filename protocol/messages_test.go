package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeLabel(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want [LabelSize]byte
	}{
		{name: "exact", in: "color", want: [LabelSize]byte{'c', 'o', 'l', 'o', 'r'}},
		{name: "short padded", in: "ab", want: [LabelSize]byte{'a', 'b', 0, 0, 0}},
		{name: "long truncated", in: "brightness", want: [LabelSize]byte{'b', 'r', 'i', 'g', 'h'}},
		{name: "empty", in: "", want: [LabelSize]byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeLabel(tt.in); got != tt.want {
				t.Errorf("EncodeLabel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPercentageValue(t *testing.T) {
	tests := []struct {
		in   float64
		want int32
	}{
		{100, 2147483647},
		{-100, -2147483647},
		{0, 0},
		{250, 2147483647},
		{-1000, -2147483647},
		{50, 1073741823},
		{-50, -1073741823},
	}
	for _, tt := range tests {
		if got := PercentageValue(tt.in); got != tt.want {
			t.Errorf("PercentageValue(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetTimelineMessage(t *testing.T) {
	msg := SetTimelineMessage(123456, 1000, 3, true)
	if len(msg) != 10 {
		t.Fatalf("len = %d, want 10", len(msg))
	}
	if msg[0] != FlagSetTimeline {
		t.Errorf("flag = %x, want %x", msg[0], FlagSetTimeline)
	}
	if got := binary.LittleEndian.Uint32(msg[1:5]); got != 123456 {
		t.Errorf("clock = %v, want 123456", got)
	}
	if got := binary.LittleEndian.Uint32(msg[5:9]); got != 1000 {
		t.Errorf("timestamp = %v, want 1000", got)
	}
	if msg[9] != 0x13 {
		t.Errorf("flags = %#x, want 0x13", msg[9])
	}

	if got := SetTimelineMessage(0, -1, 0x1F, false)[9]; got != 0x0F {
		t.Errorf("index overflow flags = %#x, want 0x0f", got)
	}
}

func TestEventMessages(t *testing.T) {
	color := ColorEventMessage(7, "color", 0xFF, 0x10, 0x00, 5000)
	want := []byte{FlagEmitColorEvent, 7, 'c', 'o', 'l', 'o', 'r', 0xFF, 0x10, 0x00, 0x88, 0x13, 0, 0}
	if !bytes.Equal(color, want) {
		t.Errorf("ColorEventMessage() = %v, want %v", color, want)
	}

	pct := PercentageEventMessage(1, "bri", 100, 0)
	if pct[0] != FlagEmitPercentageEvent || pct[1] != 1 {
		t.Errorf("PercentageEventMessage() header = %v", pct[:2])
	}
	if got := int32(binary.LittleEndian.Uint32(pct[7:11])); got != PercentageMax {
		t.Errorf("percentage value = %v, want %v", got, PercentageMax)
	}

	ts := TimestampEventMessage(2, "delay", -1500, 42)
	if got := int32(binary.LittleEndian.Uint32(ts[7:11])); got != -1500 {
		t.Errorf("timestamp value = %v, want -1500", got)
	}
	if got := binary.LittleEndian.Uint32(ts[11:15]); got != 42 {
		t.Errorf("event timestamp = %v, want 42", got)
	}

	lbl := LabelEventMessage(3, "mode", "party!", 0)
	if !bytes.Equal(lbl[7:12], []byte("party")) {
		t.Errorf("label value = %q, want %q", lbl[7:12], "party")
	}
}

func TestOTAMessages(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{name: "reset", got: OTAResetMessage(), want: []byte{FlagOTAReset, 0, 0, 0, 0, 0}},
		{name: "begin", got: OTABeginMessage(0x01020304), want: []byte{FlagOTABegin, 0, 4, 3, 2, 1}},
		{name: "end", got: OTAEndMessage(10), want: []byte{FlagOTAEnd, 0, 10, 0, 0, 0}},
		{name: "write", got: OTAWriteMessage(256, []byte{9, 8}), want: []byte{FlagOTAWrite, 0, 0, 1, 0, 0, 9, 8}},
		{name: "config", got: ConfigUpdateMessage([]byte("{}")), want: []byte{FlagConfigUpdateRequest, 0, 2, 0, 0, 0, '{', '}'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !bytes.Equal(tt.got, tt.want) {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}
