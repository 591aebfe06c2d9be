// Package serialization encodes values for storage: a codec (JSON or
// MessagePack) followed by optional compression (gzip or zstd).
package serialization

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns values into bytes and back.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Name() string
}

// Compression names a compression algorithm.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// Config selects the codec and compression of a Serializer.
type Config struct {
	Codec       Codec
	Compression Compression
}

// Serializer runs the codec and compression steps in sequence.
type Serializer struct {
	config Config
}

// New creates a serializer. An unknown compression is rejected.
func New(config Config) (*Serializer, error) {
	if config.Codec == nil {
		return nil, fmt.Errorf("serialization: codec is required")
	}
	switch config.Compression {
	case "":
		config.Compression = CompressionNone
	case CompressionNone, CompressionGzip, CompressionZstd:
	default:
		return nil, fmt.Errorf("serialization: unknown compression %q", config.Compression)
	}
	return &Serializer{config: config}, nil
}

// Default uses MessagePack with zstd compression.
func Default() *Serializer {
	return &Serializer{config: Config{Codec: MsgPack(), Compression: CompressionZstd}}
}

// Format describes the serializer, e.g. "msgpack+zstd".
func (s *Serializer) Format() string {
	return s.config.Codec.Name() + "+" + string(s.config.Compression)
}

// Serialize encodes and compresses v.
func (s *Serializer) Serialize(v any) ([]byte, error) {
	data, err := s.config.Codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("codec encoding failed: %w", err)
	}
	data, err = s.compress(data)
	if err != nil {
		return nil, fmt.Errorf("compression failed: %w", err)
	}
	return data, nil
}

// Deserialize decompresses and decodes data into v.
func (s *Serializer) Deserialize(data []byte, v any) error {
	data, err := s.decompress(data)
	if err != nil {
		return fmt.Errorf("decompression failed: %w", err)
	}
	if err := s.config.Codec.Decode(data, v); err != nil {
		return fmt.Errorf("codec decoding failed: %w", err)
	}
	return nil
}

func (s *Serializer) compress(data []byte) ([]byte, error) {
	switch s.config.Compression {
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return data, nil
	}
}

func (s *Serializer) decompress(data []byte) ([]byte, error) {
	switch s.config.Compression {
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	default:
		return data, nil
	}
}

type jsonCodec struct{}

func (jsonCodec) Encode(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return "json" }

type msgpackCodec struct{}

func (msgpackCodec) Encode(v any) ([]byte, error) { return msgpack.Marshal(v) }
func (msgpackCodec) Decode(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (msgpackCodec) Name() string { return "msgpack" }

// JSON returns the JSON codec.
func JSON() Codec { return jsonCodec{} }

// MsgPack returns the MessagePack codec.
func MsgPack() Codec { return msgpackCodec{} }

// CodecByName resolves "json" or "msgpack".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "json":
		return JSON(), nil
	case "msgpack":
		return MsgPack(), nil
	default:
		return nil, fmt.Errorf("serialization: unknown codec %q", name)
	}
}
