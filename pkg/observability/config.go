// Package observability provides OpenTelemetry tracing, replay metrics and
// structured logging for every gitexporter command.
package observability

import (
	"io"
	"log/slog"
)

// AppMode identifies the command the binary was launched with.
type AppMode string

const (
	// ModeExport replays source history into the target.
	ModeExport AppMode = "export"
	// ModeVerify compares source and target trees.
	ModeVerify AppMode = "verify"
	// ModeInspect prints an export log.
	ModeInspect AppMode = "log"
)

const (
	defaultServiceName        = "gitexporter"
	defaultShutdownTimeoutSec = 5
)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the version of the running binary.
	ServiceVersion string

	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address. Empty disables export.
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool

	// DebugTrace forces 100% trace sampling.
	DebugTrace bool

	// SampleRatio is the root sampling ratio; zero samples everything.
	SampleRatio float64

	LogLevel slog.Level
	LogJSON  bool

	// LogOutput receives log records. Nil means stderr.
	LogOutput io.Writer

	// MetricsAddr enables a Prometheus scrape endpoint on this address.
	MetricsAddr string

	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeExport,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
