// Package compress holds the body compressors a frame header can name.
package compress

import (
	"fmt"
	"strings"
)

const (
	CodeNone   byte = 0
	CodeGzip   byte = 1
	CodeSnappy byte = 2
	CodeLZ4    byte = 3
)

// Compressor transforms frame bodies; Code is its header byte.
type Compressor interface {
	Code() byte
	Compress(data []byte) ([]byte, error)
	Uncompress(data []byte) ([]byte, error)
}

var compressors = map[byte]Compressor{
	CodeNone:   None{},
	CodeGzip:   Gzip{},
	CodeSnappy: Snappy{},
	CodeLZ4:    LZ4{},
}

var names = map[string]byte{
	"":       CodeNone,
	"none":   CodeNone,
	"gzip":   CodeGzip,
	"snappy": CodeSnappy,
	"lz4":    CodeLZ4,
}

// Get returns the compressor for a header code.
func Get(code byte) (Compressor, bool) {
	c, ok := compressors[code]
	return c, ok
}

// Parse maps a config name to a compressor.
func Parse(name string) (Compressor, error) {
	code, ok := names[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("compress: unknown compressor %q", name)
	}
	return compressors[code], nil
}

// None passes data through.
type None struct{}

func (None) Code() byte { return CodeNone }

func (None) Compress(data []byte) ([]byte, error) { return data, nil }

func (None) Uncompress(data []byte) ([]byte, error) { return data, nil }
