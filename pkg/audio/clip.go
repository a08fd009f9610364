// Package audio handles uploaded consultation recordings: WAV container
// parsing, content hashing for duplicate detection, and PCM conversion into
// the formats the transcription providers consume.
package audio

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

// Clip is a decoded recording held in memory. The PCM payload is 16-bit
// little-endian, interleaved when stereo. Clips are immutable after Decode.
type Clip struct {
	// PCM is the raw sample payload from the data chunk.
	PCM []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	raw  []byte
	hash string
}

// Decode parses a WAV container and returns its PCM payload. Only 16-bit PCM
// is accepted; compressed or float encodings are rejected so no clip reaches
// transcription in a format the converters cannot handle.
func Decode(raw []byte) (*Clip, error) {
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, fmt.Errorf("audio: not a RIFF/WAVE container")
	}

	var (
		clip     Clip
		haveFmt  bool
		haveData bool
	)
	// Walk the chunk list. Chunks beyond fmt and data (LIST, fact, cue)
	// are skipped; writers pad odd-sized chunks with one byte.
	off := 12
	for off+8 <= len(raw) {
		id := string(raw[off : off+4])
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(raw) {
			return nil, fmt.Errorf("audio: truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("audio: fmt chunk too short (%d bytes)", size)
			}
			format := binary.LittleEndian.Uint16(raw[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("audio: unsupported WAV format code %d, want PCM", format)
			}
			clip.Channels = int(binary.LittleEndian.Uint16(raw[body+2 : body+4]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(raw[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(raw[body+14 : body+16])
			if bits != 16 {
				return nil, fmt.Errorf("audio: unsupported bit depth %d, want 16", bits)
			}
			haveFmt = true
		case "data":
			clip.PCM = raw[body : body+size]
			haveData = true
		}

		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt {
		return nil, fmt.Errorf("audio: missing fmt chunk")
	}
	if !haveData {
		return nil, fmt.Errorf("audio: missing data chunk")
	}
	if clip.Channels != 1 && clip.Channels != 2 {
		return nil, fmt.Errorf("audio: unsupported channel count %d", clip.Channels)
	}
	if clip.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", clip.SampleRate)
	}
	if len(clip.PCM)%(2*clip.Channels) != 0 {
		return nil, fmt.Errorf("audio: data chunk not aligned to %d-channel int16 frames", clip.Channels)
	}

	sum := sha256.Sum256(raw)
	clip.raw = raw
	clip.hash = hex.EncodeToString(sum[:])
	return &clip, nil
}

// Container returns the original WAV bytes, for providers that upload the
// file rather than consume decoded samples.
func (c *Clip) Container() []byte { return c.raw }

// Hash returns the hex SHA-256 of the original container bytes. Two uploads
// of the same file hash identically regardless of filename or upload time.
func (c *Clip) Hash() string { return c.hash }

// Duration returns the playback length of the clip.
func (c *Clip) Duration() time.Duration {
	frames := len(c.PCM) / (2 * c.Channels)
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// SamplesMono returns the clip as float32 mono samples in [-1, 1] at the
// requested rate, downmixing and resampling as needed. This is the input
// shape native speech models expect.
func (c *Clip) SamplesMono(rate int) []float32 {
	pcm := c.PCM
	if c.Channels == 2 {
		pcm = StereoToMono(pcm)
	}
	if c.SampleRate != rate {
		pcm = ResampleMono16(pcm, c.SampleRate, rate)
	}

	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768
	}
	return out
}
