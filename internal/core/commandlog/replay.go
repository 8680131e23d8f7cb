package commandlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/protocol"
	"github.com/dimensify/dimensify/pkg/jsonl"
)

// maxReplayLine bounds a single JSON line in a replay file.
const maxReplayLine = 8 << 20

// ReplayStats summarizes one replay load.
type ReplayStats struct {
	Lines   int
	Loaded  int
	Skipped int
}

// LoadReplay appends every command in a JSON-lines replay file to l with
// ReplayOrigin. Blank lines are ignored. Lines that fail to decode are
// logged with their 1-based line number and skipped, as are lines above
// 8 MiB. A missing or unreadable
// file is logged and leaves l untouched. Files ending in ".zst" are zstd
// compressed. The only returned error is a context cancellation.
func LoadReplay(ctx context.Context, path string, l *Log, logger log.Log) (ReplayStats, error) {
	logger = logger.With(log.Component("replay"), log.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("failed to open replay file", log.Error(err))
		return ReplayStats{}, nil
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			logger.Warn("failed to open zstd stream", log.Error(err))
			return ReplayStats{}, nil
		}
		defer dec.Close()
		r = dec
	}

	stats, err := readReplay(ctx, r, l, logger)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("replay file read stopped early", log.Error(err), log.Int("loaded", stats.Loaded))
		err = nil
	}
	logger.Info("loaded replay commands",
		log.Int("loaded", stats.Loaded),
		log.Int("skipped", stats.Skipped),
	)
	return stats, err
}

func readReplay(ctx context.Context, r io.Reader, l *Log, logger log.Log) (ReplayStats, error) {
	var stats ReplayStats
	lines := jsonl.NewReader(r, maxReplayLine)

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		raw, err := lines.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil && !errors.Is(err, jsonl.ErrLineTooLong) {
			return stats, fmt.Errorf("read line %d: %w", stats.Lines+1, err)
		}
		stats.Lines++
		var cmd protocol.WorldCommand
		if err == nil {
			line := bytes.TrimSpace(raw)
			if len(line) == 0 {
				continue
			}
			cmd, err = protocol.DecodeCommand(line)
		}
		if err != nil {
			stats.Skipped++
			logger.Warn("failed to parse replay command",
				log.Int("line", stats.Lines),
				log.Error(err),
			)
			continue
		}
		if _, err := l.Append(ReplayOrigin, cmd); err != nil {
			logger.Warn("replay command subscriber failed", log.Int("line", stats.Lines), log.Error(err))
		}
		stats.Loaded++
	}
}
