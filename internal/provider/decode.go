package provider

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"

	apperrors "github.com/Adithya-Monish-Kumar-K/docstats/pkg/errors"
)

// minConfidence is the lowest chardet confidence (0-100) accepted for a
// non-UTF-8 guess.
const minConfidence = 10

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF32LE = []byte{0xFF, 0xFE, 0x00, 0x00}
	bomUTF32BE = []byte{0x00, 0x00, 0xFE, 0xFF}
)

// DecodeText turns raw file bytes into a UTF-8 string. Byte order marks win,
// then valid UTF-8, then the best chardet guess. Anything that cannot be
// decoded losslessly fails with ErrDecodeFailure.
func DecodeText(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF32LE):
		return decodeWith(utf32.UTF32(utf32.LittleEndian, utf32.ExpectBOM), data, "UTF-32LE", utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM))
	case bytes.HasPrefix(data, bomUTF32BE):
		return decodeWith(utf32.UTF32(utf32.BigEndian, utf32.ExpectBOM), data, "UTF-32BE", utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM))
	case bytes.HasPrefix(data, bomUTF8):
		data = data[len(bomUTF8):]
	case bytes.HasPrefix(data, bomUTF16LE):
		return decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), data, "UTF-16LE", unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM))
	case bytes.HasPrefix(data, bomUTF16BE):
		return decodeWith(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), data, "UTF-16BE", unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM))
	}

	if utf8.Valid(data) {
		return string(data), nil
	}

	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result.Confidence < minConfidence {
		return "", apperrors.Wrap(apperrors.ErrDecodeFailure, "text encoding could not be detected")
	}
	enc, err := lookupEncoding(result.Charset)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrDecodeFailure, fmt.Sprintf("unsupported text encoding %s", result.Charset))
	}
	return decodeWith(enc, data, result.Charset, enc)
}

func lookupEncoding(charset string) (encoding.Encoding, error) {
	switch strings.ToUpper(charset) {
	case "UTF-8":
		return encoding.Nop, nil
	case "UTF-16LE":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case "UTF-16BE":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	case "UTF-32LE":
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM), nil
	case "UTF-32BE":
		return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM), nil
	case "GB-18030":
		charset = "gb18030"
	}
	return htmlindex.Get(charset)
}

// decodeWith decodes data with enc. x/text decoders substitute U+FFFD for
// malformed input, so the output may hold no more replacement characters
// than data encodes literally; plain is enc without BOM handling and is
// used to spell U+FFFD in the source encoding.
func decodeWith(enc encoding.Encoding, data []byte, name string, plain encoding.Encoding) (string, error) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrDecodeFailure, fmt.Sprintf("decoding %s: %v", name, err))
	}
	if !utf8.Valid(out) {
		return "", apperrors.Wrap(apperrors.ErrDecodeFailure, fmt.Sprintf("decoding %s produced invalid text", name))
	}
	if got := bytes.Count(out, replacementUTF8); got > 0 {
		if lost := got - literalReplacements(plain, data); lost > 0 {
			return "", apperrors.Wrap(apperrors.ErrDecodeFailure, fmt.Sprintf("decoding %s lost %d malformed sequences", name, lost))
		}
	}
	return string(bytes.TrimPrefix(out, bomUTF8)), nil
}

var replacementUTF8 = []byte(string(utf8.RuneError))

// literalReplacements counts U+FFFD characters spelled out in data.
func literalReplacements(plain encoding.Encoding, data []byte) int {
	marker, err := plain.NewEncoder().Bytes(replacementUTF8)
	if err != nil || len(marker) == 0 {
		return 0
	}
	return bytes.Count(data, marker)
}
