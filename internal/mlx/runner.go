// Package mlx bridges the gateway to a local model-runner binary. The
// runner owns the neural model itself; this package only speaks its wire
// protocol: a JSON capabilities probe at load time and length-prefixed
// float32 frames during generation.
package mlx

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/bradsjm/mlx-openai-tts/internal/tts"
)

// Runner locates and launches the model runner binary. It implements
// tts.Loader.
type Runner struct {
	bin    string
	logger zerolog.Logger
}

// NewRunner creates a runner around the given binary.
func NewRunner(bin string, logger zerolog.Logger) *Runner {
	return &Runner{bin: bin, logger: logger}
}

// capabilities is the runner's describe output.
type capabilities struct {
	SampleRate     int      `json:"sample_rate"`
	GenerateParams []string `json:"generate_params"`
}

// Load probes the runner for the model's capabilities. The probe forces the
// runner to open the weights, so shape/version mismatches surface here.
func (r *Runner) Load(ctx context.Context, repoID string, strict bool) (tts.Handle, error) {
	args := []string{"describe", "--model", repoID}
	if strict {
		args = append(args, "--strict")
	}
	cmd := exec.CommandContext(ctx, r.bin, args...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("runner describe failed for %q: %s", repoID, truncate(string(exitErr.Stderr), 500))
		}
		return nil, fmt.Errorf("runner describe failed for %q: %w", repoID, err)
	}

	var caps capabilities
	if err := json.Unmarshal(out, &caps); err != nil {
		return nil, fmt.Errorf("invalid runner capabilities for %q: %w", repoID, err)
	}

	r.logger.Debug().
		Str("repo_id", repoID).
		Int("sample_rate", caps.SampleRate).
		Strs("generate_params", caps.GenerateParams).
		Msg("Runner capabilities probed")

	return &handle{runner: r, repoID: repoID, strict: strict, caps: caps}, nil
}

// handle is one loaded model. The gateway's inference lock guarantees the
// runner is never asked to generate twice concurrently.
type handle struct {
	runner *Runner
	repoID string
	strict bool
	caps   capabilities
}

func (h *handle) SampleRate() int          { return h.caps.SampleRate }
func (h *handle) GenerateParams() []string { return h.caps.GenerateParams }
func (h *handle) Close() error             { return nil }

// generateRequest is the param document written to the runner's stdin.
type generateRequest struct {
	Model  string         `json:"model"`
	Strict bool           `json:"strict"`
	Params map[string]any `json:"params"`
}

// Generate spawns one generation process and exposes its stdout frames as a
// chunk stream. Cancelling ctx kills the subprocess.
func (h *handle) Generate(ctx context.Context, params map[string]any) (tts.ChunkStream, error) {
	cmd := exec.CommandContext(ctx, h.runner.bin, "generate")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("runner stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("runner stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start runner generate: %w", err)
	}

	req := generateRequest{Model: h.repoID, Strict: h.strict, Params: params}
	if err := json.NewEncoder(stdin).Encode(req); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("failed to send generate request: %w", err)
	}
	_ = stdin.Close()

	return newFrameStream(cmd, stdout), nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
