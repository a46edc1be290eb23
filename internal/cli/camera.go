package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"strings"

	"github.com/ad/go-telegram-screening/internal/imaging"
)

// FrameSource produces a single still frame.
type FrameSource interface {
	Capture(ctx context.Context) (image.Image, error)
}

// CommandCamera runs a shell command that writes one encoded frame (JPEG or
// PNG) to stdout, e.g. "ffmpeg -f v4l2 -i /dev/video0 -frames:v 1 -f image2pipe -".
type CommandCamera struct {
	Command string
}

func (c CommandCamera) Capture(ctx context.Context) (image.Image, error) {
	if strings.TrimSpace(c.Command) == "" {
		return nil, errors.New("no capture command configured")
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", c.Command)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("capture command: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("capture command: %w", err)
	}
	frame, _, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("capture command output: %w", err)
	}
	return frame, nil
}
