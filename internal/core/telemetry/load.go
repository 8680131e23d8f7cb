package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/protocol"
	"github.com/dimensify/dimensify/pkg/jsonl"
)

const maxLine = 8 << 20

// LoadStats summarizes one telemetry file load.
type LoadStats struct {
	Lines   int
	Loaded  int
	Skipped int
}

// LoadFile pushes every TelemetryEvent in a JSON-lines file into s. Bad
// lines are logged with their 1-based number and skipped; an unreadable file
// is logged and leaves s untouched. Files ending in ".zst" are zstd
// compressed. Only context cancellation is returned as an error.
func LoadFile(ctx context.Context, path string, s *Store, logger log.Log) (LoadStats, error) {
	logger = logger.With(log.Component("telemetry"), log.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		logger.Error("failed to read telemetry file", log.Error(err))
		return LoadStats{}, nil
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			logger.Error("failed to open zstd stream", log.Error(err))
			return LoadStats{}, nil
		}
		defer dec.Close()
		r = dec
	}

	var stats LoadStats
	lines := jsonl.NewReader(r, maxLine)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		raw, err := lines.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !errors.Is(err, jsonl.ErrLineTooLong) {
			logger.Warn("telemetry file read stopped early", log.Int("line", stats.Lines+1), log.Error(err))
			break
		}
		stats.Lines++
		var e protocol.TelemetryEvent
		if err == nil {
			line := bytes.TrimSpace(raw)
			if len(line) == 0 {
				continue
			}
			e, err = protocol.DecodeTelemetryEvent(line)
		}
		if err == nil {
			err = s.Push(e)
		}
		if err != nil {
			stats.Skipped++
			logger.Warn("failed to parse telemetry", log.Int("line", stats.Lines), log.Error(err))
			continue
		}
		stats.Loaded++
	}
	logger.Info("loaded telemetry events", log.Int("loaded", stats.Loaded), log.Int("retained", s.Len()))
	return stats, nil
}
