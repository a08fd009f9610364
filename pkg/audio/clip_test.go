package audio

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"
	"time"
)

// buildWAV assembles a minimal RIFF/WAVE container around pcm.
func buildWAV(sampleRate, channels, bits int, pcm []byte) []byte {
	var b []byte
	app16 := func(v uint16) { b = binary.LittleEndian.AppendUint16(b, v) }
	app32 := func(v uint32) { b = binary.LittleEndian.AppendUint32(b, v) }

	b = append(b, "RIFF"...)
	app32(uint32(36 + len(pcm)))
	b = append(b, "WAVE"...)

	b = append(b, "fmt "...)
	app32(16)
	app16(1) // PCM
	app16(uint16(channels))
	app32(uint32(sampleRate))
	app32(uint32(sampleRate * channels * bits / 8))
	app16(uint16(channels * bits / 8))
	app16(uint16(bits))

	b = append(b, "data"...)
	app32(uint32(len(pcm)))
	b = append(b, pcm...)
	return b
}

func sine16(rate int, seconds float64) []byte {
	n := int(float64(rate) * seconds)
	pcm := make([]byte, n*2)
	for i := range n {
		s := int16(10000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

func TestDecodeMono(t *testing.T) {
	raw := buildWAV(16000, 1, 16, sine16(16000, 0.5))
	clip, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Errorf("got %dHz %dch, want 16000Hz 1ch", clip.SampleRate, clip.Channels)
	}
	if got, want := clip.Duration(), 500*time.Millisecond; got != want {
		t.Errorf("Duration = %v, want %v", got, want)
	}
	if len(clip.Hash()) != 64 {
		t.Errorf("Hash length = %d, want 64 hex chars", len(clip.Hash()))
	}
}

func TestDecodeHashStable(t *testing.T) {
	raw := buildWAV(16000, 1, 16, sine16(16000, 0.1))
	a, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	b, err := Decode(append([]byte(nil), raw...))
	if err != nil {
		t.Fatalf("Decode copy: %v", err)
	}
	if a.Hash() != b.Hash() {
		t.Errorf("same bytes hashed differently: %s vs %s", a.Hash(), b.Hash())
	}
}

func TestDecodeRejectsBadContainers(t *testing.T) {
	valid := buildWAV(16000, 1, 16, sine16(16000, 0.01))

	eightBit := buildWAV(16000, 1, 8, []byte{1, 2, 3, 4})

	float32Fmt := buildWAV(16000, 1, 16, sine16(16000, 0.01))
	binary.LittleEndian.PutUint16(float32Fmt[20:], 3) // IEEE float format code

	tests := []struct {
		name    string
		raw     []byte
		wantErr string
	}{
		{"empty", nil, "RIFF"},
		{"not riff", []byte("OGGSxxxxxxxxxxxxxxxx"), "RIFF"},
		{"truncated data chunk", valid[:len(valid)-10], "truncated"},
		{"eight bit", eightBit, "bit depth"},
		{"float format", float32Fmt, "format code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			if err == nil {
				t.Fatal("Decode succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSamplesMonoDownmixAndResample(t *testing.T) {
	// Stereo at 48kHz with identical channels.
	mono := sine16(48000, 0.25)
	stereo := make([]byte, len(mono)*2)
	for i := 0; i+1 < len(mono); i += 2 {
		copy(stereo[i*2:], mono[i:i+2])
		copy(stereo[i*2+2:], mono[i:i+2])
	}
	clip, err := Decode(buildWAV(48000, 2, 16, stereo))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	samples := clip.SamplesMono(16000)
	want := int(0.25 * 16000)
	if len(samples) != want {
		t.Fatalf("got %d samples, want %d", len(samples), want)
	}
	for i, s := range samples {
		if s < -1 || s > 1 {
			t.Fatalf("sample %d = %f out of [-1, 1]", i, s)
		}
	}
}

func TestStereoToMonoAverages(t *testing.T) {
	pcm := make([]byte, 4)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(int16(100)))
	binary.LittleEndian.PutUint16(pcm[2:], uint16(int16(300)))

	out := StereoToMono(pcm)
	if len(out) != 2 {
		t.Fatalf("got %d bytes, want 2", len(out))
	}
	got := int16(binary.LittleEndian.Uint16(out))
	if got != 200 {
		t.Errorf("averaged sample = %d, want 200", got)
	}
}

func TestResampleMono16Halves(t *testing.T) {
	pcm := sine16(32000, 0.1)
	out := ResampleMono16(pcm, 32000, 16000)
	if len(out) != len(pcm)/2 {
		t.Errorf("got %d bytes, want %d", len(out), len(pcm)/2)
	}
	if same := ResampleMono16(pcm, 16000, 16000); len(same) != len(pcm) {
		t.Errorf("same-rate resample changed length")
	}
}
