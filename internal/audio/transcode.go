package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/bradsjm/mlx-openai-tts/internal/observability"
)

// Transcode errors. Per-request failures; the gateway never retries a
// transcode automatically.
var (
	ErrTranscoderUnavailable = errors.New("ffmpeg not found (required for mp3/opus/aac/flac)")
	ErrTranscodeTimeout      = errors.New("ffmpeg transcode timed out")
)

// Locations probed when ffmpeg is not on PATH.
var ffmpegCandidates = []string{
	"/opt/homebrew/bin/ffmpeg",
	"/usr/local/bin/ffmpeg",
	"/usr/bin/ffmpeg",
}

// Transcoder converts WAV bytes into compressed formats by piping them
// through ffmpeg with a bounded timeout.
type Transcoder struct {
	bin     string
	timeout time.Duration
}

// NewTranscoder creates a transcoder. bin may be empty; discovery then runs
// at first use.
func NewTranscoder(bin string, timeout time.Duration) *Transcoder {
	return &Transcoder{bin: bin, timeout: timeout}
}

// Available reports whether an ffmpeg binary can be located.
func (t *Transcoder) Available() bool {
	_, err := t.resolveBin()
	return err == nil
}

func (t *Transcoder) resolveBin() (string, error) {
	if t.bin != "" {
		return t.bin, nil
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path, nil
	}
	for _, candidate := range ffmpegCandidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", ErrTranscoderUnavailable
}

func transcodeArgs(format Format) ([]string, error) {
	common := []string{"-hide_banner", "-loglevel", "error", "-i", "pipe:0"}
	switch format {
	case FormatMP3:
		return append(common, "-f", "mp3", "pipe:1"), nil
	case FormatOpus:
		return append(common, "-c:a", "libopus", "-b:a", "48k", "-f", "ogg", "pipe:1"), nil
	case FormatAAC:
		return append(common, "-f", "adts", "pipe:1"), nil
	case FormatFLAC:
		return append(common, "-f", "flac", "pipe:1"), nil
	default:
		return nil, fmt.Errorf("unsupported transcode format %q", format)
	}
}

// Transcode pipes wavBytes through ffmpeg into the requested format.
func (t *Transcoder) Transcode(ctx context.Context, wavBytes []byte, format Format) ([]byte, error) {
	bin, err := t.resolveBin()
	if err != nil {
		observability.RecordTranscode(string(format), "unavailable")
		return nil, err
	}
	args, err := transcodeArgs(format)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = bytes.NewReader(wavBytes)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			observability.RecordTranscode(string(format), "timeout")
			return nil, ErrTranscodeTimeout
		}
		observability.RecordTranscode(string(format), "error")
		detail := stderr.String()
		if len(detail) > 500 {
			detail = detail[:500]
		}
		return nil, fmt.Errorf("ffmpeg transcode failed: %s: %w", detail, err)
	}

	observability.RecordTranscode(string(format), "success")
	return stdout.Bytes(), nil
}
