package orchestration

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/koscakluka/stella-core/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	utterancesFlushed  = int64Counter("stella.utterances.flushed", "Utterances handed to the transport")
	recognizerRestarts = int64Counter("stella.recognizer.restarts", "Automatic recognizer restarts")
	playbackFailures   = int64Counter("stella.playback.failures", "Synthesis or playback attempts that failed open")
)

func int64Counter(name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		logger.Warn("failed to create counter", "name", name, "error", err)
		return noop.Int64Counter{}
	}
	return counter
}
