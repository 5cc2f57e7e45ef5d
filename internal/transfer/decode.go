package transfer

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// Encoding is a named strict decoder.
type Encoding struct {
	Name   string
	decode func([]byte) (string, bool)
}

var (
	UTF8    = Encoding{Name: "utf-8", decode: decodeUTF8}
	GBK     = Encoding{Name: "gbk", decode: strict(simplifiedchinese.GBK)}
	GB18030 = Encoding{Name: "gb18030", decode: strict(simplifiedchinese.GB18030)}
	UTF16   = Encoding{Name: "utf-16", decode: decodeUTF16}
	Latin1  = Encoding{Name: "latin-1", decode: strict(charmap.ISO8859_1)}
)

// DefaultEncodings is the order in which downloaded text is tried.
var DefaultEncodings = []Encoding{UTF8, GBK, GB18030, UTF16, Latin1}

// Decode tries DefaultEncodings in order and returns the first clean result.
func Decode(b []byte) (text, enc string, err error) {
	return DecodeWith(b, DefaultEncodings)
}

// DecodeWith tries encs in order.
func DecodeWith(b []byte, encs []Encoding) (text, enc string, err error) {
	for _, e := range encs {
		if s, ok := e.decode(b); ok {
			return s, e.Name, nil
		}
	}
	return "", "", ErrUndecodable
}

func decodeUTF8(b []byte) (string, bool) {
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

func decodeUTF16(b []byte) (string, bool) {
	if len(b)%2 != 0 {
		return "", false
	}
	return strict(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM))(b)
}

// strict wraps an x/text decoder, which substitutes U+FFFD for invalid input,
// so that any substitution counts as failure.
func strict(e encoding.Encoding) func([]byte) (string, bool) {
	return func(b []byte) (string, bool) {
		out, err := e.NewDecoder().Bytes(b)
		if err != nil {
			return "", false
		}
		s := string(out)
		if strings.ContainsRune(s, utf8.RuneError) {
			return "", false
		}
		return s, true
	}
}
