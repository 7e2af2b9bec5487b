package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// commandContext is swapped out by tests.
var commandContext = exec.CommandContext

// Encoder drives the ffmpeg binary. Every invocation runs under the caller's
// context, so a deadline kills the subprocess instead of waiting it out.
type Encoder struct {
	binary string
}

type Option func(*Encoder)

func WithBinary(binary string) Option {
	return func(e *Encoder) {
		e.binary = binary
	}
}

func New(opts ...Option) *Encoder {
	e := &Encoder{binary: "ffmpeg"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StillClip renders a single still image into an H.264 clip of the given
// length, letterboxed into a 1080x1920 vertical canvas.
func (e *Encoder) StillClip(ctx context.Context, framePath, clipPath string, seconds float64) error {
	if framePath == "" {
		return fmt.Errorf("render clip: missing frame path")
	}
	if clipPath == "" {
		return fmt.Errorf("render clip: missing clip path")
	}
	if seconds <= 0 {
		return fmt.Errorf("render clip: invalid duration %.2f", seconds)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-loop", "1",
		"-i", framePath,
		"-t", fmt.Sprintf("%.2f", seconds),
		"-vf", "scale=1080:1920:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2,format=yuv420p",
		"-r", "30",
		"-c:v", "libx264",
		"-preset", "medium",
		"-an",
		clipPath,
	}
	return e.run(ctx, "render clip", args)
}

// Concat joins the clips listed in listPath into outPath. When audioPath is
// set, the track is looped under the video at the given volume and the output
// ends with the video.
func (e *Encoder) Concat(ctx context.Context, listPath, audioPath, outPath string, audioVolume float64) error {
	if listPath == "" {
		return fmt.Errorf("concat: missing clip list")
	}
	if outPath == "" {
		return fmt.Errorf("concat: missing output path")
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
	}
	if audioPath != "" {
		args = append(args,
			"-stream_loop", "-1",
			"-i", audioPath,
			"-filter_complex", fmt.Sprintf("[1:a]volume=%.2f[bg]", audioVolume),
			"-map", "0:v",
			"-map", "[bg]",
			"-c:v", "copy",
			"-c:a", "aac",
			"-shortest",
		)
	} else {
		args = append(args, "-c", "copy")
	}
	args = append(args, outPath)

	return e.run(ctx, "concat", args)
}

func (e *Encoder) run(ctx context.Context, op string, args []string) error {
	cmd := commandContext(ctx, e.binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %s killed: %w", op, e.binary, ctx.Err())
		}
		return fmt.Errorf("%s: %w: %s", op, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// WriteConcatList writes the concat demuxer input file for the given clips.
func WriteConcatList(path string, clips []string) error {
	var b strings.Builder
	for _, clip := range clips {
		// Single quotes in paths must be escaped for the concat demuxer.
		escaped := strings.ReplaceAll(clip, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}
