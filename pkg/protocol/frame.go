// Package protocol implements the uplink wire format: fixed-width big-endian
// integers and u32 length-prefixed UTF-8 strings exchanged once per
// connection.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxStringLen bounds every length-prefixed string in a header.
const MaxStringLen = 4096

var (
	// ErrStringTooLong indicates a length prefix above MaxStringLen.
	ErrStringTooLong = errors.New("string too long")
	// ErrInvalidUTF8 indicates a string field that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid utf-8")
	// ErrInvalidAck indicates a terminal response other than OK or ER.
	ErrInvalidAck = errors.New("invalid ack")
)

// ProtocolError reports a malformed or truncated frame. The connection that
// produced it is unusable; recovery is a reconnect with the same upload id.
type ProtocolError struct {
	Field string
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: read %s: %v", e.Field, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protoErr(field string, err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &ProtocolError{Field: field, Err: err}
}

// ReadU32 reads a big-endian uint32.
func ReadU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, protoErr("u32", err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// ReadU64 reads a big-endian uint64.
func ReadU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, protoErr("u64", err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// ReadString reads a u32 length followed by that many UTF-8 bytes.
func ReadString(r io.Reader) (string, error) {
	n, err := ReadU32(r)
	if err != nil {
		return "", protoErr("string length", errors.Unwrap(err))
	}
	if n > MaxStringLen {
		return "", protoErr("string", fmt.Errorf("%w: %d bytes", ErrStringTooLong, n))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", protoErr("string", err)
	}
	if !utf8.Valid(buf) {
		return "", protoErr("string", ErrInvalidUTF8)
	}
	return string(buf), nil
}

// WriteU64 writes v big-endian.
func WriteU64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteString writes s with a u32 length prefix.
func WriteString(w io.Writer, s string) error {
	if len(s) > MaxStringLen {
		return ErrStringTooLong
	}
	buf := make([]byte, 4+len(s))
	binary.BigEndian.PutUint32(buf, uint32(len(s)))
	copy(buf[4:], s)
	_, err := w.Write(buf)
	return err
}
