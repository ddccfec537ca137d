package protocol

import (
	"bytes"
	"fmt"
	"io"
)

// Terminal response codes.
const (
	AckOK    = "OK"
	AckError = "ER"
)

// Header is the request a client sends before any body bytes.
type Header struct {
	ClientName string
	Size       uint64
	Filename   string
	UploadID   string
}

// ReadHeader reads the four header fields in wire order.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	var err error
	if h.ClientName, err = ReadString(r); err != nil {
		return Header{}, fieldErr("client_name", err)
	}
	if h.Size, err = ReadU64(r); err != nil {
		return Header{}, fieldErr("declared_size", err)
	}
	if h.Filename, err = ReadString(r); err != nil {
		return Header{}, fieldErr("filename", err)
	}
	if h.UploadID, err = ReadString(r); err != nil {
		return Header{}, fieldErr("upload_id", err)
	}
	return h, nil
}

// WriteHeader encodes h in a single write.
func WriteHeader(w io.Writer, h Header) error {
	var buf bytes.Buffer
	if err := WriteString(&buf, h.ClientName); err != nil {
		return fmt.Errorf("client_name: %w", err)
	}
	if err := WriteU64(&buf, h.Size); err != nil {
		return err
	}
	if err := WriteString(&buf, h.Filename); err != nil {
		return fmt.Errorf("filename: %w", err)
	}
	if err := WriteString(&buf, h.UploadID); err != nil {
		return fmt.Errorf("upload_id: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteAck writes the two-byte terminal response.
func WriteAck(w io.Writer, ok bool) error {
	code := AckError
	if ok {
		code = AckOK
	}
	_, err := io.WriteString(w, code)
	return err
}

// ReadAck reads the terminal response and reports whether it was OK.
func ReadAck(r io.Reader) (bool, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, protoErr("ack", err)
	}
	switch string(buf[:]) {
	case AckOK:
		return true, nil
	case AckError:
		return false, nil
	default:
		return false, protoErr("ack", fmt.Errorf("%w: %q", ErrInvalidAck, buf[:]))
	}
}

func fieldErr(field string, err error) error {
	if pe, ok := err.(*ProtocolError); ok {
		return &ProtocolError{Field: field, Err: pe.Err}
	}
	return &ProtocolError{Field: field, Err: err}
}
