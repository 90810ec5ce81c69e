package transcode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// stderrTailBytes bounds how much transcoder diagnostics we retain. ffmpeg
// can emit megabytes of warnings on damaged sources; only the tail carries
// the actual failure reason.
const stderrTailBytes = 4 * 1024

// Invoker spawns the external transcoder with caller-built argument vectors.
// Nothing is ever written to the child's stdin.
type Invoker struct {
	binary string
	logger *slog.Logger
}

func NewInvoker(binary string, logger *slog.Logger) *Invoker {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{binary: bin, logger: logger}
}

// Run executes an invocation whose output lands in a file named inside the
// argument vector. It blocks until the child exits; a non-zero exit is
// reported with the captured stderr tail. Context cancellation hard-kills
// the child.
func (inv *Invoker) Run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, inv.binary, args...)
	stderr := newTailBuffer(stderrTailBytes)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if msg := stderr.String(); msg != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}

	inv.logger.Debug("ffmpeg run finished",
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// Output executes an invocation and returns its captured stdout. Used for
// encoder enumeration where the listing itself is the result.
func (inv *Invoker) Output(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, inv.binary, args...)
	stderr := newTailBuffer(stderrTailBytes)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if msg := stderr.String(); msg != "" {
			return nil, fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	return stdout.Bytes(), nil
}

// Stream executes an invocation whose stdout is piped to w, typically an
// HTTP response. Client disconnect (context cancellation or a write error)
// hard-kills the child and is not reported as an error; the child's exit
// status is only meaningful while the client is still reading.
func (inv *Invoker) Stream(ctx context.Context, args []string, w io.Writer) error {
	cmd := exec.CommandContext(ctx, inv.binary, args...)
	stderr := newTailBuffer(stderrTailBytes)
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}

	_, copyErr := io.Copy(w, stdout)
	if copyErr != nil && cmd.Process != nil {
		// The consumer is gone; stop the child or Wait blocks on a full pipe.
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()

	if ctx.Err() != nil || copyErr != nil {
		inv.logger.Debug("ffmpeg stream ended by client",
			slog.Any("ctxErr", ctx.Err()),
			slog.Any("copyErr", copyErr),
		)
		return nil
	}
	if waitErr != nil {
		if msg := stderr.String(); msg != "" {
			return fmt.Errorf("ffmpeg: %w: %s", waitErr, msg)
		}
		return fmt.Errorf("ffmpeg: %w", waitErr)
	}
	if msg := stderr.String(); msg != "" {
		inv.logger.Debug("ffmpeg stream finished with warnings",
			slog.String("stderr", msg),
		)
	}
	return nil
}

// tailBuffer is an io.Writer retaining only the last max bytes written.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
