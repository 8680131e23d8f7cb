package config

import (
	"github.com/dimensify/dimensify/internal/core/observability/log"
)

type SourceKind string

const (
	SourceLocal SourceKind = "local"
	SourceFile  SourceKind = "file"
	SourceDB    SourceKind = "db"
)

// Source is a resolved data source. Path is empty for SourceLocal.
type Source struct {
	Kind SourceKind
	Path string
}

// ResolveSource picks the command log source. A file or db source without a
// path, or an unknown kind, falls back to local with a warning.
func (c DataConfig) ResolveSource(logger log.Log) Source {
	return resolve(c.Source, map[SourceKind]string{SourceFile: c.File, SourceDB: c.DBAddr}, "data", logger)
}

// ResolveSource picks the telemetry source. Only local and file exist.
func (c TelemetryConfig) ResolveSource(logger log.Log) Source {
	return resolve(c.Source, map[SourceKind]string{SourceFile: c.File}, "telemetry", logger)
}

func resolve(kind string, paths map[SourceKind]string, what string, logger log.Log) Source {
	k := SourceKind(kind)
	if k == "" || k == SourceLocal {
		return Source{Kind: SourceLocal}
	}
	path, known := paths[k]
	switch {
	case !known:
		logger.Warn("unknown source, using local", log.String("source", what), log.String("kind", kind))
	case path == "":
		logger.Warn("source has no path, using local", log.String("source", what), log.String("kind", kind))
	default:
		return Source{Kind: k, Path: path}
	}
	return Source{Kind: SourceLocal}
}
