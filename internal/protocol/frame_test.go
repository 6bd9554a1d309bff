package protocol

import (
	"reflect"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []Frame{
		NewFrame("ping"),
		NewFrame("login", "alice"),
		NewFrame("post", "", "hi there"),
		NewFrame("info"),
		NewFrame("info", "a", "b", "c"),
	}
	for _, f := range cases {
		enc := f.Encode()
		got, ok := DecodeFrame(enc)
		if !ok {
			t.Fatalf("decode failed for %+v (encoded %q)", f, enc)
		}
		if got.Command != f.Command {
			t.Errorf("command mismatch: got %q want %q", got.Command, f.Command)
		}
		wantArgs := f.Args
		if len(wantArgs) == 0 {
			wantArgs = nil
		}
		if !reflect.DeepEqual(got.Args, wantArgs) {
			t.Errorf("args mismatch: got %#v want %#v", got.Args, wantArgs)
		}
	}
}

func TestDecodeFrameNoArgs(t *testing.T) {
	raw := []byte{STX, 'p', 'i', 'n', 'g', SYN, ETX}
	f, ok := DecodeFrame(raw)
	if !ok {
		t.Fatal("expected decode success")
	}
	if f.Command != "ping" || len(f.Args) != 0 {
		t.Errorf("got %+v", f)
	}
}

func TestDecodeFrameMalformed(t *testing.T) {
	cases := [][]byte{
		nil,
		{ETX},
		{STX, 'x'},
		{STX, 'x', ETX}, // missing SYN
		append([]byte{STX, 'x', SYN, 'a', EM}, 0xff), // bad trailer, no ETX
	}
	for _, c := range cases {
		if _, ok := DecodeFrame(c); ok {
			t.Errorf("expected decode failure for %v", c)
		}
	}
}

func TestFrameArgsMayContainAnyByteExceptDelimiters(t *testing.T) {
	f := NewFrame("post", "chan", "hello\x00world")
	got, ok := DecodeFrame(f.Encode())
	if !ok {
		t.Fatal("decode failed")
	}
	if got.Args[1] != "hello\x00world" {
		t.Errorf("got %q", got.Args[1])
	}
}
