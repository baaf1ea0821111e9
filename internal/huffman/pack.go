package huffman

import (
	"bytes"
	"fmt"
	"io"

	"github.com/icza/bitio"
)

// Pack writes bits most-significant first into bytes. The final byte is
// padded with zero bits.
func Pack(bits string) ([]byte, error) {
	if err := validateBits(bits); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	for i := 0; i < len(bits); i++ {
		if err := w.WriteBool(bits[i] == '1'); err != nil {
			return nil, fmt.Errorf("writing bit %d: %w", i, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("flushing packed bits: %w", err)
	}
	return buf.Bytes(), nil
}

// Unpack reads the first nbits bits of data back into a '0'/'1' string.
func Unpack(data []byte, nbits int) (string, error) {
	if nbits < 0 || nbits > len(data)*8 {
		return "", fmt.Errorf("%w: want %d bits from %d bytes", ErrTruncatedStream, nbits, len(data))
	}
	r := bitio.NewReader(bytes.NewReader(data))
	out := make([]byte, nbits)
	for i := 0; i < nbits; i++ {
		bit, err := r.ReadBool()
		if err != nil {
			if err == io.EOF {
				return "", fmt.Errorf("%w: at bit %d", ErrTruncatedStream, i)
			}
			return "", fmt.Errorf("reading bit %d: %w", i, err)
		}
		if bit {
			out[i] = '1'
		} else {
			out[i] = '0'
		}
	}
	return string(out), nil
}
