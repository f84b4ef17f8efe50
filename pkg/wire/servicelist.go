package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/morezero/component-runtime/pkg/service"
)

// EncodeServiceList serializes a directory snapshot: the stub list followed
// by the proxy list, each count-prefixed.
func EncodeServiceList(stubs []service.StubAddress, proxies []service.ProxyAddress) ([]byte, error) {
	if len(stubs) > MaxListLen || len(proxies) > MaxListLen {
		return nil, ErrListTooLong
	}
	var buf bytes.Buffer
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(stubs)))
	buf.Write(n[:])
	for _, s := range stubs {
		if err := EncodeAddress(&buf, s.Address); err != nil {
			return nil, err
		}
	}
	binary.BigEndian.PutUint32(n[:], uint32(len(proxies)))
	buf.Write(n[:])
	for _, p := range proxies {
		if err := EncodeAddress(&buf, p.Address); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeServiceList parses a snapshot produced by EncodeServiceList.
func DecodeServiceList(data []byte) ([]service.StubAddress, []service.ProxyAddress, error) {
	r := bytes.NewReader(data)
	readCount := func() (uint32, error) {
		var n [4]byte
		if _, err := io.ReadFull(r, n[:]); err != nil {
			return 0, err
		}
		count := binary.BigEndian.Uint32(n[:])
		if count > MaxListLen {
			return 0, ErrListTooLong
		}
		return count, nil
	}

	count, err := readCount()
	if err != nil {
		return nil, nil, err
	}
	stubs := make([]service.StubAddress, 0, count)
	for i := uint32(0); i < count; i++ {
		a, err := DecodeAddress(r)
		if err != nil {
			return nil, nil, err
		}
		stubs = append(stubs, service.StubAddress{Address: a})
	}

	if count, err = readCount(); err != nil {
		return nil, nil, err
	}
	proxies := make([]service.ProxyAddress, 0, count)
	for i := uint32(0); i < count; i++ {
		a, err := DecodeAddress(r)
		if err != nil {
			return nil, nil, err
		}
		proxies = append(proxies, service.ProxyAddress{Address: a})
	}
	return stubs, proxies, nil
}

// EncodeAnnounce wraps an address announcement with the sender's instance id
// so a process can ignore its own broadcasts.
func EncodeAnnounce(instanceID string, a service.Address) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeString(&buf, instanceID); err != nil {
		return nil, err
	}
	if err := EncodeAddress(&buf, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeAnnounce parses an announcement frame.
func DecodeAnnounce(data []byte) (string, service.Address, error) {
	r := bytes.NewReader(data)
	instanceID, err := readString(r)
	if err != nil {
		return "", service.Address{}, err
	}
	a, err := DecodeAddress(r)
	if err != nil {
		return "", service.Address{}, err
	}
	return instanceID, a, nil
}
