package mlx

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"sync"
)

// maxFrameSamples bounds a single frame to keep a misbehaving runner from
// forcing an unbounded allocation (16M samples is ~11 minutes at 24kHz).
const maxFrameSamples = 16 << 20

// frameStream reads length-prefixed little-endian float32 frames from the
// generation subprocess, one frame per Next call.
type frameStream struct {
	cmd *exec.Cmd
	out *bufio.Reader

	closeOnce sync.Once
	closeErr  error
	done      bool
}

func newFrameStream(cmd *exec.Cmd, out io.Reader) *frameStream {
	return &frameStream{cmd: cmd, out: bufio.NewReader(out)}
}

// Next returns the next frame. A clean subprocess exit after the final
// frame yields io.EOF; a non-zero exit yields the runner's error.
func (s *frameStream) Next(ctx context.Context) ([]float32, error) {
	if s.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := readFrame(s.out)
	if err == io.EOF {
		s.done = true
		if waitErr := s.cmd.Wait(); waitErr != nil {
			return nil, fmt.Errorf("runner generate failed: %w", waitErr)
		}
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// Close kills the subprocess if it is still running. Safe to call after
// normal exhaustion and more than once.
func (s *frameStream) Close() error {
	s.closeOnce.Do(func() {
		if s.done {
			return
		}
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		s.closeErr = nil
		_ = s.cmd.Wait()
		s.done = true
	})
	return s.closeErr
}

// readFrame decodes one frame: a uint32 sample count followed by that many
// little-endian float32 samples.
func readFrame(r io.Reader) ([]float32, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("truncated frame header")
		}
		return nil, err
	}
	count := binary.LittleEndian.Uint32(header[:])
	if count == 0 {
		return []float32{}, nil
	}
	if count > maxFrameSamples {
		return nil, fmt.Errorf("frame of %d samples exceeds limit", count)
	}

	raw := make([]byte, int(count)*4)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("truncated frame payload: %w", err)
	}
	samples := make([]float32, count)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, nil
}
