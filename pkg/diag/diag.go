// Package diag implements Structured Diagnostics (spec C12): a
// zerolog-backed logger plus discovery-specific event helpers the engine
// and CLI emit progress and findings through, since the system has no
// persisted state of its own to inspect after the fact.
package diag

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level is the logging level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format is the logging output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config configures a Diag logger.
type Config struct {
	Level  Level
	Format Format
	Output io.Writer
}

// Diag wraps a zerolog.Logger with discovery-domain event helpers.
type Diag struct {
	logger zerolog.Logger
}

// New builds a Diag logger from cfg, defaulting to stdout and info level.
func New(cfg Config) *Diag {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var output io.Writer = cfg.Output
	if cfg.Format == FormatText {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339}
	}

	zlog := zerolog.New(output).With().Timestamp().Logger()
	switch cfg.Level {
	case LevelDebug:
		zlog = zlog.Level(zerolog.DebugLevel)
	case LevelWarn:
		zlog = zlog.Level(zerolog.WarnLevel)
	case LevelError:
		zlog = zlog.Level(zerolog.ErrorLevel)
	default:
		zlog = zlog.Level(zerolog.InfoLevel)
	}
	return &Diag{logger: zlog}
}

// Phase logs entry into a new pipeline stage (pool, partition, hypothesize,
// score, validate, assemble).
func (d *Diag) Phase(name string) {
	d.logger.Info().Str("phase", name).Msg("entering phase")
}

// ClusterFound logs a completed BankCluster.
func (d *Diag) ClusterFound(index, size int) {
	d.logger.Info().Int("cluster", index).Int("size", size).Msg("bank cluster found")
}

// PartitionFailed logs the insufficient-conflict-signal failure mode.
func (d *Diag) PartitionFailed(err error) {
	d.logger.Error().Err(err).Msg("bank partitioning failed")
}

// HypothesisFiltered logs a hypothesis dropped by the cheap pre-filter.
func (d *Diag) HypothesisFiltered(bits []int, failures int) {
	d.logger.Debug().Ints("bits", bits).Int("failures", failures).Msg("hypothesis filtered")
}

// HypothesisPromoted logs a hypothesis that passed full scoring.
func (d *Diag) HypothesisPromoted(bits []int, success, failure int) {
	d.logger.Info().Ints("bits", bits).Int("success", success).Int("failure", failure).Msg("hypothesis promoted")
}

// RefreshValidated logs a refresh-validator verdict for one hypothesis.
func (d *Diag) RefreshValidated(bits []int, median uint64, inWindowFrac float64, ok bool) {
	event := d.logger.Info()
	if !ok {
		event = d.logger.Warn()
	}
	event.Ints("bits", bits).
		Uint64("median_interval", median).
		Float64("in_window_frac", inWindowFrac).
		Bool("validated", ok).
		Msg("refresh validation result")
}

// MappingIncomplete logs the mapping-incomplete diagnostic, listing
// every surviving hypothesis's highest bit for quick triage.
func (d *Diag) MappingIncomplete(expected, got int, highestBits []int) {
	d.logger.Error().
		Int("expected", expected).
		Int("got", got).
		Ints("highest_bits", highestBits).
		Msg("mapping incomplete")
}

// MappingComplete logs a successfully assembled mapping.
func (d *Diag) MappingComplete(numFunctions int) {
	d.logger.Info().Int("functions", numFunctions).Msg("mapping assembled")
}

// WithComponent returns a child Diag tagging every event with component.
func (d *Diag) WithComponent(component string) *Diag {
	return &Diag{logger: d.logger.With().Str("component", component).Logger()}
}

// Zerolog returns the underlying zerolog.Logger for callers that need
// direct access (e.g. wiring cobra's error output).
func (d *Diag) Zerolog() zerolog.Logger { return d.logger }
