package token

import (
	"fmt"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression identifies how a token body is packed on the wire. The values
// are written into every token and must not change.
type Compression uint8

const (
	CompressionNone   Compression = 0
	CompressionSnappy Compression = 1
	CompressionZstd   Compression = 2
)

// maxBodySize caps the decoded bundle size.
const maxBodySize = 16 << 10

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses a compression name as used in configuration.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown token compression: %q", name)
	}
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression),
	)
	if err != nil {
		panic("token: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderMaxMemory(maxBodySize),
	)
	if err != nil {
		panic("token: zstd decoder initialization failed: " + err.Error())
	}
}

// compressBody packs data with the preferred algorithm and falls back to no
// compression when that does not make the body smaller.
func compressBody(data []byte, preferred Compression) (Compression, []byte, error) {
	var packed []byte
	switch preferred {
	case CompressionNone:
		return CompressionNone, data, nil
	case CompressionSnappy:
		packed = snappy.Encode(nil, data)
	case CompressionZstd:
		packed = zstdEncoder.EncodeAll(data, nil)
	default:
		return 0, nil, fmt.Errorf("unsupported compression: %s", preferred)
	}
	if len(packed) >= len(data) {
		return CompressionNone, data, nil
	}
	return preferred, packed, nil
}

func decompressBody(body []byte, tag Compression) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(body) > maxBodySize {
			return nil, malformed("body exceeds %d bytes", maxBodySize)
		}
		return body, nil
	case CompressionSnappy:
		size, err := snappy.DecodedLen(body)
		if err != nil {
			return nil, malformed("snappy: %v", err)
		}
		if size > maxBodySize {
			return nil, malformed("body exceeds %d bytes", maxBodySize)
		}
		out, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, malformed("snappy: %v", err)
		}
		return out, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return nil, malformed("zstd: %v", err)
		}
		if len(out) > maxBodySize {
			return nil, malformed("body exceeds %d bytes", maxBodySize)
		}
		return out, nil
	default:
		return nil, malformed("unknown compression tag %d", uint8(tag))
	}
}
