package compress

import (
	"github.com/golang/snappy"
)

// Snappy uses the block format; frames already carry the body length.
type Snappy struct{}

func (Snappy) Code() byte { return CodeSnappy }

func (Snappy) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (Snappy) Uncompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}
