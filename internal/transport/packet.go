package transport

import "bytes"

// Packet is one datagram payload. A Packet owns its bytes; copying the value
// is cheap and never aliases the caller's buffers.
type Packet struct {
	payload []byte
}

// NewPacket returns a Packet holding a copy of payload.
func NewPacket(payload []byte) Packet {
	b := make([]byte, len(payload))
	copy(b, payload)
	return Packet{payload: b}
}

// Payload returns the packet bytes. Callers must not modify the result.
func (p Packet) Payload() []byte {
	return p.payload
}

// Len returns the payload length.
func (p Packet) Len() int {
	return len(p.payload)
}

// Equal reports whether both packets carry the same bytes.
func (p Packet) Equal(other Packet) bool {
	return bytes.Equal(p.payload, other.payload)
}
