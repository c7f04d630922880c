// Package audio wraps raw synthesizer output into containers a browser can
// play from a base64 data URL.
package audio

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
)

const (
	FormatWAV = "wav"

	defaultPCMRate = 16000
)

// PCMSampleRate reports the rate of a "pcm_<hz>" output format.
func PCMSampleRate(format string) (int, bool) {
	rest, ok := strings.CutPrefix(strings.ToLower(strings.TrimSpace(format)), "pcm_")
	if !ok {
		return 0, false
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, false
	}
	return rate, true
}

// Playable returns data in a self-describing container. Raw PCM16LE mono
// is wrapped in WAV; every other format passes through unchanged.
func Playable(data []byte, format string) ([]byte, string) {
	rate, ok := PCMSampleRate(format)
	if !ok {
		return data, format
	}
	return EncodeWAV(data, rate), FormatWAV
}

// EncodeWAV wraps PCM16LE mono samples in a 44-byte RIFF header.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
		pcmFormat     = 1
	)
	if sampleRate <= 0 {
		sampleRate = defaultPCMRate
	}

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	le := binary.LittleEndian
	u16 := func(v uint16) { _ = binary.Write(&buf, le, v) }
	u32 := func(v uint32) { _ = binary.Write(&buf, le, v) }

	buf.WriteString("RIFF")
	u32(36 + uint32(len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	u32(16)
	u16(pcmFormat)
	u16(channels)
	u32(uint32(sampleRate))
	u32(uint32(sampleRate * channels * bitsPerSample / 8))
	u16(channels * bitsPerSample / 8)
	u16(bitsPerSample)

	buf.WriteString("data")
	u32(uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
