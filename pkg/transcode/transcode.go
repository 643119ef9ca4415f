// Package transcode converts audio payloads between their base64 wire form and
// raw bytes.
package transcode

import (
	"encoding/base64"
	"strings"

	"github.com/MrWong99/agora/pkg/apperr"
)

// EncodeBase64 returns the standard, padded base64 encoding of data.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes standard base64. A leading data URL header such as
// "data:audio/webm;base64," and surrounding whitespace are ignored. Failures
// are reported as [apperr.KindTranscoding].
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ";base64,")
		if i < 0 {
			return nil, apperr.Transcoding("invalid data URL", nil)
		}
		s = s[i+len(";base64,"):]
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, apperr.Transcoding("invalid base64 payload", err)
	}
	return b, nil
}
