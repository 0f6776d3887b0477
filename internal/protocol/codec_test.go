package protocol_test

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/1ureka/sendfile/internal/protocol"
)

// TestPayloadDecodeRoundTrip verifies that Payload and Decode are inverse
// operations for every packet variant.
func TestPayloadDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		pkt  protocol.Packet
	}{
		{"Send with two files", protocol.Send{Files: []protocol.FileMeta{
			{Name: "a.txt", Size: 5},
			{Name: "b.bin", Size: 1 << 40},
		}}},
		{"Send with no files", protocol.Send{Files: []protocol.FileMeta{}}},
		{"Accept", protocol.Accept{}},
		{"Reject", protocol.Reject{}},
		{"StartFile", protocol.StartFile{Header: protocol.FileTransferHeader{
			File:  protocol.FileMeta{Name: "a.txt", Size: 5},
			Index: 0,
			Total: 1,
		}}},
		{"FileData with small chunk", protocol.FileData{Data: []byte("hello")}},
		{"FileData with empty chunk", protocol.FileData{Data: []byte{}}},
		{"EndFile", protocol.EndFile{}},
		{"Finish", protocol.Finish{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := protocol.Payload(tc.pkt)
			if err != nil {
				t.Fatalf("Payload failed: %v", err)
			}

			decoded, err := protocol.Decode(uint8(tc.pkt.Action()), payload)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if decoded.Action() != tc.pkt.Action() {
				t.Fatalf("Action mismatch: got %s, want %s", decoded.Action(), tc.pkt.Action())
			}

			if data, ok := tc.pkt.(protocol.FileData); ok {
				if !bytes.Equal(decoded.(protocol.FileData).Data, data.Data) {
					t.Errorf("Data mismatch: got %v, want %v", decoded, data)
				}
				return
			}

			if !reflect.DeepEqual(decoded, tc.pkt) {
				t.Errorf("Packet mismatch: got %+v, want %+v", decoded, tc.pkt)
			}
		})
	}
}

// TestActionCodes pins the wire numbering of every variant.
func TestActionCodes(t *testing.T) {
	testCases := []struct {
		pkt  protocol.Packet
		code uint8
	}{
		{protocol.Send{}, 0},
		{protocol.Accept{}, 1},
		{protocol.Reject{}, 2},
		{protocol.StartFile{}, 3},
		{protocol.FileData{}, 4},
		{protocol.EndFile{}, 5},
		{protocol.Finish{}, 6},
	}

	for _, tc := range testCases {
		if got := uint8(tc.pkt.Action()); got != tc.code {
			t.Errorf("%T: got code %d, want %d", tc.pkt, got, tc.code)
		}
	}
}

// TestPayloadFieldNames verifies the JSON bodies keep their field names.
func TestPayloadFieldNames(t *testing.T) {
	payload, err := protocol.Payload(protocol.StartFile{Header: protocol.FileTransferHeader{
		File:  protocol.FileMeta{Name: "a.txt", Size: 5},
		Index: 1,
		Total: 2,
	}})
	if err != nil {
		t.Fatalf("Payload failed: %v", err)
	}

	want := `{"file_info":{"name":"a.txt","size":5},"index":1,"total":2}`
	if string(payload) != want {
		t.Errorf("StartFile payload: got %s, want %s", payload, want)
	}

	payload, err = protocol.Payload(protocol.Send{})
	if err != nil {
		t.Fatalf("Payload failed: %v", err)
	}
	if string(payload) != "[]" {
		t.Errorf("empty Send payload: got %s, want []", payload)
	}
}

// TestDecodeUnknownAction verifies that codes outside 0..6 are rejected.
func TestDecodeUnknownAction(t *testing.T) {
	for _, code := range []uint8{7, 8, 42, 255} {
		_, err := protocol.Decode(code, nil)
		if !errors.Is(err, protocol.ErrUnknownAction) {
			t.Errorf("code %d: expected ErrUnknownAction, got %v", code, err)
		}

		var decErr *protocol.DecodeError
		if !errors.As(err, &decErr) {
			t.Errorf("code %d: expected *DecodeError, got %T", code, err)
		}
	}
}

// TestDecodeMalformedPayload verifies that structured payloads never default
// silently.
func TestDecodeMalformedPayload(t *testing.T) {
	testCases := []struct {
		name    string
		action  protocol.Action
		payload string
	}{
		{"Send empty body", protocol.ActionSend, ""},
		{"Send null", protocol.ActionSend, "null"},
		{"Send not a list", protocol.ActionSend, `{"name":"a","size":1}`},
		{"Send null element", protocol.ActionSend, `[null]`},
		{"Send missing size", protocol.ActionSend, `[{"name":"a"}]`},
		{"Send missing name", protocol.ActionSend, `[{"size":1}]`},
		{"Send negative size", protocol.ActionSend, `[{"name":"a","size":-1}]`},
		{"Send trailing garbage", protocol.ActionSend, `[]x`},
		{"StartFile empty body", protocol.ActionStartFile, ""},
		{"StartFile null", protocol.ActionStartFile, "null"},
		{"StartFile missing file_info", protocol.ActionStartFile, `{"index":0,"total":1}`},
		{"StartFile missing index", protocol.ActionStartFile, `{"file_info":{"name":"a","size":1},"total":1}`},
		{"StartFile negative total", protocol.ActionStartFile, `{"file_info":{"name":"a","size":1},"index":0,"total":-1}`},
		{"StartFile float index", protocol.ActionStartFile, `{"file_info":{"name":"a","size":1},"index":0.5,"total":1}`},
		{"Accept with body", protocol.ActionAccept, "x"},
		{"Finish with body", protocol.ActionFinish, "{}"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := protocol.Decode(uint8(tc.action), []byte(tc.payload))
			if !errors.Is(err, protocol.ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

// TestDecodePreservesPayload verifies that FileData does not alias the
// caller's buffer.
func TestDecodePreservesPayload(t *testing.T) {
	buf := []byte("original")

	decoded, err := protocol.Decode(uint8(protocol.ActionFileData), buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	buf[0] = 0xFF

	if got := decoded.(protocol.FileData).Data; !bytes.Equal(got, []byte("original")) {
		t.Errorf("Payload was incorrectly aliased: got %v", got)
	}
}

// FuzzDecode tests that decoding arbitrary bytes doesn't panic.
func FuzzDecode(f *testing.F) {
	f.Add(uint8(0), []byte(`[{"name":"a.txt","size":5}]`))
	f.Add(uint8(3), []byte(`{"file_info":{"name":"a.txt","size":5},"index":0,"total":1}`))
	f.Add(uint8(4), []byte("chunk"))
	f.Add(uint8(6), []byte{})
	f.Add(uint8(200), []byte{0x01})

	f.Fuzz(func(t *testing.T, action uint8, payload []byte) {
		pkt, err := protocol.Decode(action, payload)
		if err == nil && pkt == nil {
			t.Fatal("nil packet without error")
		}
		if action > 6 && err == nil {
			t.Fatalf("action %d decoded without error", action)
		}
	})
}
