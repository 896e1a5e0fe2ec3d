// Package audio converts raw float32 model output into client-facing audio
// encodings: WAV and raw PCM directly, compressed formats via ffmpeg.
package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Format is a client-facing audio encoding.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatOpus Format = "opus"
	FormatPCM  Format = "pcm"
	FormatAAC  Format = "aac"
	FormatFLAC Format = "flac"
)

// ParseFormat validates a response_format value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatWAV, FormatMP3, FormatOpus, FormatPCM, FormatAAC, FormatFLAC:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unsupported response_format %q (use wav|mp3|opus|pcm|aac|flac)", s)
	}
}

// MediaType returns the Content-Type for the format.
func (f Format) MediaType() string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatMP3:
		return "audio/mpeg"
	case FormatOpus:
		return "audio/ogg"
	case FormatAAC:
		return "audio/aac"
	case FormatFLAC:
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

// PCM16Bytes converts float32 mono samples to raw s16le bytes.
// Samples are clamped to [-1, 1] before scaling.
func PCM16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		if sample > 1.0 {
			sample = 1.0
		} else if sample < -1.0 {
			sample = -1.0
		}
		pcm := int16(math.Round(float64(sample) * 32767.0))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(pcm))
	}
	return out
}

// WAVBytes wraps float32 mono samples in a 16-bit PCM RIFF/WAVE container.
func WAVBytes(samples []float32, sampleRate int) []byte {
	pcm := PCM16Bytes(samples)

	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	out := make([]byte, 0, 44+len(pcm))
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(36+len(pcm)))
	out = append(out, "WAVE"...)
	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, 16) // PCM fmt chunk size
	out = binary.LittleEndian.AppendUint16(out, 1)  // PCM format tag
	out = binary.LittleEndian.AppendUint16(out, channels)
	out = binary.LittleEndian.AppendUint32(out, uint32(sampleRate))
	out = binary.LittleEndian.AppendUint32(out, uint32(byteRate))
	out = binary.LittleEndian.AppendUint16(out, uint16(blockAlign))
	out = binary.LittleEndian.AppendUint16(out, bitsPerSample)
	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(pcm)))
	out = append(out, pcm...)
	return out
}

// Encoder produces complete response bodies in any supported format.
// Compressed formats shell out to ffmpeg with a bounded timeout.
type Encoder struct {
	transcoder *Transcoder
}

// NewEncoder creates an encoder. ffmpegBin may be empty to discover the
// binary from PATH and fixed candidate locations.
func NewEncoder(ffmpegBin string, timeout time.Duration) *Encoder {
	return &Encoder{transcoder: NewTranscoder(ffmpegBin, timeout)}
}

// Encode renders samples into the requested format and returns the bytes
// plus the media type.
func (e *Encoder) Encode(ctx context.Context, samples []float32, sampleRate int, format Format) ([]byte, string, error) {
	switch format {
	case FormatWAV:
		return WAVBytes(samples, sampleRate), format.MediaType(), nil
	case FormatPCM:
		return PCM16Bytes(samples), format.MediaType(), nil
	case FormatMP3, FormatOpus, FormatAAC, FormatFLAC:
		out, err := e.transcoder.Transcode(ctx, WAVBytes(samples, sampleRate), format)
		if err != nil {
			return nil, "", err
		}
		return out, format.MediaType(), nil
	default:
		return nil, "", fmt.Errorf("unsupported response_format %q", format)
	}
}
