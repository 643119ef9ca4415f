package audio

import (
	"mime"
	"strings"
)

// extensions maps the audio container types browsers and TTS services emit to
// the file extension transcription services use to sniff the format.
var extensions = map[string]string{
	"audio/webm":   "webm",
	"video/webm":   "webm",
	"audio/ogg":    "ogg",
	"audio/mpeg":   "mp3",
	"audio/mp3":    "mp3",
	"audio/mp4":    "m4a",
	"audio/x-m4a":  "m4a",
	"audio/wav":    "wav",
	"audio/x-wav":  "wav",
	"audio/wave":   "wav",
	"audio/flac":   "flac",
	"audio/x-flac": "flac",
}

// FileName returns the upload file name for a recording of the given mime
// type, e.g. "audio.webm". Codec parameters are ignored. Unknown or empty
// types fall back to "audio.webm".
func FileName(mimeType string) string {
	return "audio." + Extension(mimeType)
}

// Extension returns the file extension, without the dot, for mimeType.
func Extension(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mimeType))
	}
	if ext, ok := extensions[mt]; ok {
		return ext
	}
	return "webm"
}
