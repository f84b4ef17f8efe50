// Package wire implements the binary layout of addresses, connect events and
// service-list snapshots exchanged with the message router. Integers are
// big-endian; strings and containers are length-prefixed and bound-checked on
// decode.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/morezero/component-runtime/pkg/service"
)

// Connect event tags.
const (
	TagStubConnect  byte = 0x01
	TagProxyConnect byte = 0x02
)

// Decode limits.
const (
	MaxStringLen = 4 * 1024
	MaxListLen   = 64 * 1024
)

var (
	ErrStringTooLong = errors.New("wire: string too long")
	ErrListTooLong   = errors.New("wire: list too long")
	ErrUnknownTag    = errors.New("wire: unknown connect event tag")
	ErrBadStatus     = errors.New("wire: invalid connection status")
)

func writeString(w *bytes.Buffer, s string) error {
	if len(s) > MaxStringLen {
		return ErrStringTooLong
	}
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	w.Write(n[:])
	w.WriteString(s)
	return nil
}

func readString(r io.Reader) (string, error) {
	var n [2]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return "", err
	}
	ln := binary.BigEndian.Uint16(n[:])
	if ln > MaxStringLen {
		return "", ErrStringTooLong
	}
	buf := make([]byte, ln)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeUint64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// EncodeAddress appends the wire form of an address to buf.
func EncodeAddress(buf *bytes.Buffer, a service.Address) error {
	if err := writeString(buf, a.Interface); err != nil {
		return err
	}
	if err := writeString(buf, a.Role); err != nil {
		return err
	}
	buf.WriteByte(byte(a.Category))
	writeUint64(buf, uint64(a.Cookie))
	writeUint64(buf, uint64(a.Source))
	writeUint64(buf, uint64(a.Channel.Cookie))
	writeUint64(buf, uint64(a.Channel.Source))
	writeUint64(buf, uint64(a.Channel.Target))
	return nil
}

// DecodeAddress reads one address from r.
func DecodeAddress(r io.Reader) (service.Address, error) {
	var a service.Address
	var err error
	if a.Interface, err = readString(r); err != nil {
		return a, err
	}
	if a.Role, err = readString(r); err != nil {
		return a, err
	}
	var cat [1]byte
	if _, err = io.ReadFull(r, cat[:]); err != nil {
		return a, err
	}
	a.Category = service.Category(cat[0])
	v, err := readUint64(r)
	if err != nil {
		return a, err
	}
	a.Cookie = service.Cookie(v)
	if v, err = readUint64(r); err != nil {
		return a, err
	}
	a.Source = service.SourceID(v)
	if v, err = readUint64(r); err != nil {
		return a, err
	}
	a.Channel.Cookie = service.Cookie(v)
	if v, err = readUint64(r); err != nil {
		return a, err
	}
	a.Channel.Source = service.SourceID(v)
	if v, err = readUint64(r); err != nil {
		return a, err
	}
	a.Channel.Target = service.SourceID(v)
	return a, nil
}

// ConnectEventFrame is the decoded wire form of a connect notification.
type ConnectEventFrame struct {
	Tag    byte
	Proxy  service.ProxyAddress
	Stub   service.StubAddress
	Status service.ConnectionStatus
}

// EncodeConnectEvent serializes a connect notification: tag byte, proxy
// address, stub address, one status byte.
func EncodeConnectEvent(f ConnectEventFrame) ([]byte, error) {
	if f.Tag != TagStubConnect && f.Tag != TagProxyConnect {
		return nil, ErrUnknownTag
	}
	var buf bytes.Buffer
	buf.WriteByte(f.Tag)
	if err := EncodeAddress(&buf, f.Proxy.Address); err != nil {
		return nil, fmt.Errorf("wire: encode proxy: %w", err)
	}
	if err := EncodeAddress(&buf, f.Stub.Address); err != nil {
		return nil, fmt.Errorf("wire: encode stub: %w", err)
	}
	buf.WriteByte(byte(f.Status))
	return buf.Bytes(), nil
}

// DecodeConnectEvent parses a connect notification frame.
func DecodeConnectEvent(data []byte) (ConnectEventFrame, error) {
	var f ConnectEventFrame
	r := bytes.NewReader(data)
	tag, err := r.ReadByte()
	if err != nil {
		return f, err
	}
	if tag != TagStubConnect && tag != TagProxyConnect {
		return f, ErrUnknownTag
	}
	f.Tag = tag
	if f.Proxy.Address, err = DecodeAddress(r); err != nil {
		return f, fmt.Errorf("wire: decode proxy: %w", err)
	}
	if f.Stub.Address, err = DecodeAddress(r); err != nil {
		return f, fmt.Errorf("wire: decode stub: %w", err)
	}
	status, err := r.ReadByte()
	if err != nil {
		return f, err
	}
	if status > byte(service.StatusDisconnected) {
		return f, ErrBadStatus
	}
	f.Status = service.ConnectionStatus(status)
	return f, nil
}

// EncodeAddressList serializes count followed by count addresses, in slice
// order.
func EncodeAddressList(addrs []service.Address) ([]byte, error) {
	if len(addrs) > MaxListLen {
		return nil, ErrListTooLong
	}
	var buf bytes.Buffer
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(addrs)))
	buf.Write(n[:])
	for _, a := range addrs {
		if err := EncodeAddress(&buf, a); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeAddressList parses a count-prefixed address list, validating the
// count against MaxListLen before allocating.
func DecodeAddressList(data []byte) ([]service.Address, error) {
	r := bytes.NewReader(data)
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(n[:])
	if count > MaxListLen {
		return nil, ErrListTooLong
	}
	addrs := make([]service.Address, 0, count)
	for i := uint32(0); i < count; i++ {
		a, err := DecodeAddress(r)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}
