package capture

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"arpguard/internal/model"

	"github.com/sirupsen/logrus"
)

// Source is the capture collaborator. How frames are physically captured is
// outside this system; a source only has to deliver them in order. Stream
// returns when the feed ends or the context is cancelled; any other error is
// a capture failure that stops the detection feed without killing the
// process.
type Source interface {
	Stream(ctx context.Context, emit func(model.Frame)) error
}

// JSONLineSource reads one JSON-encoded frame per line, the shape an external
// capture process pipes in over stdin or a socket.
type JSONLineSource struct {
	r      io.Reader
	logger *logrus.Logger
}

// NewJSONLineSource wraps a reader producing newline-delimited frames.
func NewJSONLineSource(r io.Reader, logger *logrus.Logger) *JSONLineSource {
	return &JSONLineSource{r: r, logger: logger}
}

// Stream decodes frames until EOF or cancellation. Undecodable lines are
// logged and skipped; they are not capture failures.
func (s *JSONLineSource) Stream(ctx context.Context, emit func(model.Frame)) error {
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var f model.Frame
		if err := json.Unmarshal(line, &f); err != nil {
			s.logger.Warnf("Skipping undecodable capture line: %v", err)
			continue
		}
		emit(f)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("capture feed read failed: %w", err)
	}
	return nil
}

// ReplaySource emits a fixed set of frames, used by tests and offline
// analysis of recorded traffic.
type ReplaySource struct {
	Frames []model.Frame
}

// Stream emits every frame in order.
func (s *ReplaySource) Stream(ctx context.Context, emit func(model.Frame)) error {
	for _, f := range s.Frames {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		emit(f)
	}
	return nil
}
