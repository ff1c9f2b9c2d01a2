// Package hist implements the historical REST client: bearer-token lifecycle,
// bar/tick history, top-n movers, bhavcopy and the length-prefixed LZ4
// response codec.
package hist

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Response body framing used by the history server:
// uint32 LE uncompressed_length | uint32 LE compressed_length | payload.
// When the two lengths are equal the payload is already uncompressed and is
// passed through verbatim; otherwise the payload is an LZ4 block that must
// expand to exactly uncompressed_length bytes.

const frameHeaderSize = 8

// Decompress decodes a framed history response body into its plain bytes.
func Decompress(body []byte) ([]byte, error) {
	if len(body) < frameHeaderSize {
		return nil, fmt.Errorf("framed body too short: %d bytes", len(body))
	}
	uncompressedLen := binary.LittleEndian.Uint32(body[0:4])
	compressedLen := binary.LittleEndian.Uint32(body[4:8])
	payload := body[frameHeaderSize:]

	if uint32(len(payload)) < compressedLen {
		return nil, fmt.Errorf("framed body truncated: have %d payload bytes, header says %d",
			len(payload), compressedLen)
	}
	payload = payload[:compressedLen]

	if compressedLen == uncompressedLen {
		out := make([]byte, uncompressedLen)
		copy(out, payload)
		return out, nil
	}

	out := make([]byte, uncompressedLen)
	n, err := lz4.UncompressBlock(payload, out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if uint32(n) != uncompressedLen {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, header says %d", n, uncompressedLen)
	}
	return out, nil
}

// Compress produces a framed body from plain bytes. The inverse of Decompress;
// used by tests and by anything that replays captured responses.
func Compress(plain []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(plain)))
	n, err := lz4.CompressBlock(plain, buf, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock reports 0 for incompressible input; store it verbatim with
	// equal lengths so Decompress passes it through.
	payload := buf[:n]
	if n == 0 || n >= len(plain) {
		payload = plain
	}

	out := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(plain)))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(payload)))
	copy(out[frameHeaderSize:], payload)
	return out, nil
}
