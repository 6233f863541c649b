package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// HeaderLen is the fixed per-packet overhead: 2-byte length + 8-byte tag.
	HeaderLen = 10
	// TagLen is the width of the zero-padded ASCII tag field.
	TagLen = 8
	// MaxPayloadLen bounds the payload carried by one packet.
	MaxPayloadLen = 512
	// MaxFrameLen is the largest total length a frame may declare.
	MaxFrameLen = HeaderLen + MaxPayloadLen
)

// Recognized wire tags.
const (
	TagDataPort = "DPORT"
	TagList     = "LIST"
	TagGet      = "GET"
	TagOkay     = "OKAY"
	TagError    = "ERROR"
	TagClose    = "CLOSE"
	TagFileName = "FNAME"
	TagFile     = "FILE"
	TagDone     = "DONE"
	TagAck      = "ACK"
)

var (
	ErrTagTooLong       = errors.New("packet: tag longer than tag field")
	ErrPayloadTooLarge  = errors.New("packet: payload too large")
	ErrFrameTooShort    = errors.New("packet: declared length shorter than header")
	ErrFrameTooLarge    = errors.New("packet: declared length exceeds frame maximum")
	ErrConnectionClosed = errors.New("packet: connection closed mid-frame")
)

// Write encodes one tagged packet onto w: big-endian u16 total length,
// zero-padded tag field, raw payload with no terminator.
func Write(w io.Writer, tag string, payload []byte) error {
	if len(tag) > TagLen {
		return fmt.Errorf("%w: %q", ErrTagTooLong, tag)
	}
	if len(payload) > MaxPayloadLen {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	buf := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(HeaderLen+len(payload)))
	copy(buf[2:2+TagLen], tag)
	copy(buf[HeaderLen:], payload)

	if _, err := w.Write(buf); err != nil {
		return wrapClosed(err)
	}
	return nil
}

// Read decodes one packet from r. The declared length is validated against
// the protocol maximum before any payload buffer is filled. The tag is
// returned with trailing zero padding trimmed.
func Read(r io.Reader) (string, []byte, error) {
	var header [HeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", nil, wrapClosed(err)
	}

	total := binary.BigEndian.Uint16(header[0:2])
	if total < HeaderLen {
		return "", nil, fmt.Errorf("%w: %d", ErrFrameTooShort, total)
	}
	if total > MaxFrameLen {
		return "", nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, total)
	}

	tag := strings.TrimRight(string(header[2:2+TagLen]), "\x00")

	payload := make([]byte, total-HeaderLen)
	if len(payload) > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return "", nil, wrapClosed(err)
		}
	}
	return tag, payload, nil
}

func wrapClosed(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return err
}
