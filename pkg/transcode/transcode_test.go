package transcode_test

import (
	"bytes"
	"testing"

	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/transcode"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	allBytes := make([]byte, 256)
	for i := range allBytes {
		allBytes[i] = byte(i)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"single", []byte{0x00}},
		{"two", []byte{0x01, 0x02}},
		{"full range", allBytes},
		{"full range reversed", reversed(allBytes)},
		{"text", []byte("hello, agora")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := transcode.DecodeBase64(transcode.EncodeBase64(tt.data))
			if err != nil {
				t.Fatalf("DecodeBase64: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("round trip mismatch: got %v, want %v", got, tt.data)
			}
		})
	}
}

func TestEncodeBase64_Known(t *testing.T) {
	t.Parallel()
	if got := transcode.EncodeBase64([]byte{0x01, 0x02}); got != "AQI=" {
		t.Errorf("EncodeBase64 = %q, want AQI=", got)
	}
}

func TestDecodeBase64_DataURL(t *testing.T) {
	t.Parallel()
	got, err := transcode.DecodeBase64("data:audio/webm;base64,AQI=")
	if err != nil {
		t.Fatalf("DecodeBase64: %v", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x02}) {
		t.Errorf("got %v", got)
	}
}

func TestDecodeBase64_Invalid(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"not base64!!", "AQI", "data:audio/webm,AQI="} {
		_, err := transcode.DecodeBase64(in)
		if !apperr.Is(err, apperr.KindTranscoding) {
			t.Errorf("DecodeBase64(%q): expected TranscodingError, got %v", in, err)
		}
	}
}

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
