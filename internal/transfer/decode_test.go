package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestDecodeOrder(t *testing.T) {
	gbk, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte("中文内容"))
	require.NoError(t, err)

	tests := []struct {
		name     string
		in       []byte
		wantText string
		wantEnc  string
	}{
		{"utf-8", []byte("héllo 世界"), "héllo 世界", "utf-8"},
		{"empty", []byte{}, "", "utf-8"},
		{"gbk", gbk, "中文内容", "gbk"},
		{"utf-16 with bom", []byte{0xff, 0xfe, 'A', 0x00, 'B', 0x00}, "AB", "utf-16"},
		{"latin-1 last resort", []byte{0x81}, "\u0081", "latin-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, enc, err := Decode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantEnc, enc)
		})
	}
}

func TestDecodeWithUndecodable(t *testing.T) {
	// Latin-1 maps every byte, so failure needs a narrower list.
	_, _, err := DecodeWith([]byte{0x81}, []Encoding{UTF8, GBK, GB18030, UTF16})
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestDecodeUTF16RejectsOddLength(t *testing.T) {
	_, ok := UTF16.decode([]byte{0xff, 0xfe, 'A'})
	assert.False(t, ok)
}
