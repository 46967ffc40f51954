// Package utils holds the sonic-backed JSON codec shared by the cache
// envelope and the provider response parsers.
package utils

import (
	"bytes"
	"sync"

	"github.com/bytedance/sonic"
)

const maxPooledBufferSize = 16 * 1024

var bufPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

// Marshal encodes v with sonic, reusing pooled buffers across calls. The
// returned slice is always a fresh copy, safe to retain.
func Marshal(v interface{}) ([]byte, error) {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		if buf.Cap() <= maxPooledBufferSize {
			bufPool.Put(buf)
		}
	}()

	if err := sonic.ConfigDefault.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// Unmarshal decodes data into target with sonic.
func Unmarshal[T any](data []byte, target *T) error {
	return sonic.ConfigDefault.Unmarshal(data, target)
}
