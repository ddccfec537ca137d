package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadIntegers(t *testing.T) {
	buf := bytes.NewReader([]byte{
		0x00, 0x00, 0x01, 0x02,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0a,
	})
	u32, err := ReadU32(buf)
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	if u32 != 258 {
		t.Errorf("ReadU32 = %d, want 258", u32)
	}
	u64, err := ReadU64(buf)
	if err != nil {
		t.Fatalf("ReadU64: %v", err)
	}
	if u64 != 10 {
		t.Errorf("ReadU64 = %d, want 10", u64)
	}
}

func TestWriteU64BigEndian(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteU64(&buf, 0x0102030405060708); err != nil {
		t.Fatalf("WriteU64: %v", err)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("WriteU64 wrote %x, want %x", buf.Bytes(), want)
	}
}

func TestReadStringErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty stream", nil, io.ErrUnexpectedEOF},
		{"short length", []byte{0, 0}, io.ErrUnexpectedEOF},
		{"short body", []byte{0, 0, 0, 5, 'a', 'b'}, io.ErrUnexpectedEOF},
		{"too long", []byte{0, 1, 0, 0}, ErrStringTooLong},
		{"bad utf8", []byte{0, 0, 0, 2, 0xff, 0xfe}, ErrInvalidUTF8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadString(bytes.NewReader(tt.data))
			var pe *ProtocolError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ProtocolError, got %v", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{ClientName: "stationA", Size: 10, Filename: "img.jpg", UploadID: "u1"}
	var buf bytes.Buffer
	if err := WriteHeader(&buf, h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	// 4+8 + 8 + 4+7 + 4+2
	if buf.Len() != 37 {
		t.Errorf("encoded header is %d bytes, want 37", buf.Len())
	}
	got, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got != h {
		t.Errorf("ReadHeader = %+v, want %+v", got, h)
	}
}

func TestReadHeaderTruncatedNamesField(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteString(&buf, "stationA")
	_ = WriteU64(&buf, 10)
	buf.WriteString("\x00\x00")

	_, err := ReadHeader(&buf)
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProtocolError, got %v", err)
	}
	if pe.Field != "filename" {
		t.Errorf("Field = %q, want filename", pe.Field)
	}
	if !strings.Contains(err.Error(), "filename") {
		t.Errorf("error %q does not name the field", err)
	}
}

func TestAck(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteAck(&buf, true)
	_ = WriteAck(&buf, false)
	if buf.String() != "OKER" {
		t.Fatalf("acks encoded as %q", buf.String())
	}
	ok, err := ReadAck(&buf)
	if err != nil || !ok {
		t.Errorf("first ack = %v, %v; want true, nil", ok, err)
	}
	ok, err = ReadAck(&buf)
	if err != nil || ok {
		t.Errorf("second ack = %v, %v; want false, nil", ok, err)
	}
	if _, err := ReadAck(strings.NewReader("NO")); !errors.Is(err, ErrInvalidAck) {
		t.Errorf("expected ErrInvalidAck, got %v", err)
	}
}
