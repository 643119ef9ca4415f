// Package audio inspects the audio payloads that pass through Agora's voice
// pipeline: synthesized mp3 replies and browser recordings.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tcolgate/mp3"
)

// MP3Duration returns the playback length of an mp3 stream by summing the
// duration of every frame. Bytes that do not form a frame (ID3 tags, padding)
// are skipped. An empty payload has zero duration.
func MP3Duration(data []byte) (time.Duration, error) {
	var (
		total   time.Duration
		dec     = mp3.NewDecoder(bytes.NewReader(data))
		frame   mp3.Frame
		skipped int
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return total, nil
			}
			return total, fmt.Errorf("audio: decode mp3 frame: %w", err)
		}
		total += frame.Duration()
	}
}
