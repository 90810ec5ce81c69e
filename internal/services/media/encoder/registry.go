package encoder

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mediastream/internal/domain"
)

const (
	enumerateTimeout = 5 * time.Second
	selfTestTimeout  = 10 * time.Second
)

// runner is the slice of the transcoder invoker the registry needs.
type runner interface {
	Run(ctx context.Context, args []string) error
	Output(ctx context.Context, args []string) ([]byte, error)
}

// Registry detects the best locally available H.264 encoder once per process
// and emits per-tier encoding arguments for it.
type Registry struct {
	invoker runner
	logger  *slog.Logger

	once     sync.Once
	detected Descriptor
}

func NewRegistry(invoker runner, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{invoker: invoker, logger: logger}
}

// Detect returns the best usable encoder. The probe runs exactly once; later
// calls return the cached result.
func (r *Registry) Detect(ctx context.Context) Descriptor {
	r.once.Do(func() {
		r.detected = r.detect(ctx)
		r.logger.Info("encoder selected",
			slog.String("name", r.detected.Name),
			slog.String("encoder", r.detected.Encoder),
			slog.String("kind", string(r.detected.Kind)),
		)
	})
	return r.detected
}

// Active returns the encoder to use for a generation. A detected hardware
// encoder is demoted to software x264 when settings disable hardware
// acceleration.
func (r *Registry) Active(ctx context.Context, settings domain.TranscodingSettings) Descriptor {
	detected := r.Detect(ctx)
	if detected.Kind == Hardware && !settings.EnableHardwareAccel {
		return softwareFallback()
	}
	return detected
}

func (r *Registry) detect(ctx context.Context) Descriptor {
	listCtx, cancel := context.WithTimeout(ctx, enumerateTimeout)
	defer cancel()

	out, err := r.invoker.Output(listCtx, []string{"-hide_banner", "-encoders"})
	if err != nil {
		r.logger.Warn("encoder enumeration failed, assuming software x264",
			slog.String("error", err.Error()))
		return softwareFallback()
	}
	available := parseEncoderList(out)

	for _, cand := range candidates {
		if !available[cand.Encoder] {
			continue
		}
		// x264 is trusted without a self-test.
		if cand.Kind == Software {
			return cand
		}
		if err := r.selfTest(ctx, cand); err != nil {
			r.logger.Warn("hardware encoder failed self-test, skipping",
				slog.String("encoder", cand.Encoder),
				slog.String("error", err.Error()),
			)
			continue
		}
		return cand
	}

	// ffmpeg builds without libx264 exist but are not worth supporting;
	// every candidate failing still yields the software descriptor.
	return softwareFallback()
}

// selfTest encodes a single frame of a synthetic black source through the
// candidate's own argument emission. An encoder that cannot survive this
// will not survive segment generation either.
func (r *Registry) selfTest(ctx context.Context, cand Descriptor) error {
	testCtx, cancel := context.WithTimeout(ctx, selfTestTimeout)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "lavfi",
		"-i", "color=black:s=640x360:d=1",
	}
	args = append(args, cand.VideoArgs(1000, 640, 360, domain.DefaultTranscodingSettings())...)
	args = append(args, "-frames:v", "1", "-f", "null", "-")

	return r.invoker.Run(testCtx, args)
}

// parseEncoderList extracts video encoder identifiers from `ffmpeg -encoders`
// output. Relevant lines look like ` V....D h264_nvenc  NVIDIA NVENC ...`;
// legend lines (` V..... = Video`) are skipped.
func parseEncoderList(out []byte) map[string]bool {
	available := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if !strings.HasPrefix(fields[0], "V") {
			continue
		}
		if fields[1] == "=" {
			continue
		}
		available[fields[1]] = true
	}
	return available
}
