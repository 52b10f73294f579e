package aggregation

import (
	"encoding/binary"
	"fmt"

	"VDAF/internal/prio3"
)

// Frame types exchanged between aggregators during preparation.
const (
	FrameShare   = 0x01 // FrameShare carries an encoded prepare share
	FrameMessage = 0x02 // FrameMessage carries an encoded prepare message
	FrameReject  = 0x03 // FrameReject reports that a report failed; Payload is the reason
)

// frameHeaderSize is the fixed header length: type, nonce, aggregator id, payload length.
const frameHeaderSize = 1 + prio3.NonceSize + 1 + 4

// Frame is one per-report preparation message.
type Frame struct {
	Type    byte        // Type is one of FrameShare, FrameMessage, FrameReject
	Nonce   prio3.Nonce // Nonce identifies the report
	AggID   uint8       // AggID is the sending aggregator
	Payload []byte      // Payload is the encoded protocol message or the rejection reason
}

// rejectFrame builds a rejection for one report.
func rejectFrame(nonce prio3.Nonce, aggID uint8, err error) Frame {
	return Frame{Type: FrameReject, Nonce: nonce, AggID: aggID, Payload: []byte(err.Error())}
}

// EncodeFrame encodes a frame to bytes.
// Format: [1B type] [16B nonce] [1B aggID] [4B payloadLen] [NB payload]
func EncodeFrame(f Frame) []byte {
	buf := make([]byte, frameHeaderSize+len(f.Payload))

	buf[0] = f.Type
	copy(buf[1:17], f.Nonce[:])
	buf[17] = f.AggID
	binary.BigEndian.PutUint32(buf[18:22], uint32(len(f.Payload)))
	copy(buf[22:], f.Payload)

	return buf
}

// DecodeFrame decodes one frame and returns the number of bytes it used.
func DecodeFrame(data []byte) (Frame, int, error) {
	if len(data) < frameHeaderSize {
		return Frame{}, 0, fmt.Errorf("frame too short: %d < %d", len(data), frameHeaderSize)
	}

	t := data[0]
	if t != FrameShare && t != FrameMessage && t != FrameReject {
		return Frame{}, 0, fmt.Errorf("invalid frame type: 0x%02x", t)
	}

	payloadLen := int(binary.BigEndian.Uint32(data[18:22]))
	if len(data) < frameHeaderSize+payloadLen {
		return Frame{}, 0, fmt.Errorf("payload truncated: need %d, have %d", frameHeaderSize+payloadLen, len(data))
	}

	f := Frame{Type: t, AggID: data[17]}
	copy(f.Nonce[:], data[1:17])

	if payloadLen > 0 {
		f.Payload = make([]byte, payloadLen)
		copy(f.Payload, data[frameHeaderSize:frameHeaderSize+payloadLen])
	}

	return f, frameHeaderSize + payloadLen, nil
}

// EncodeFrames concatenates the encodings of frames.
func EncodeFrames(frames []Frame) []byte {
	var buf []byte
	for _, f := range frames {
		buf = append(buf, EncodeFrame(f)...)
	}
	return buf
}

// DecodeFrames decodes a concatenation of frames.
func DecodeFrames(data []byte) ([]Frame, error) {
	var frames []Frame

	for off := 0; off < len(data); {
		f, n, err := DecodeFrame(data[off:])
		if err != nil {
			return nil, fmt.Errorf("frame %d at offset %d:\n%w", len(frames), off, err)
		}

		frames = append(frames, f)
		off += n
	}

	return frames, nil
}
