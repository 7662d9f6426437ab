// Package reporter delivers terminal pipeline failures to an error sink.
// Pipeline timeouts and retry exhaustion are reported exactly once per run.
package reporter

import (
	"go.uber.org/zap"
)

type Reporter interface {
	Report(err error, fields map[string]any)
}

// ZapReporter writes reports to the global logger. Default sink until an
// external tracker is wired in.
type ZapReporter struct{}

func NewZapReporter() *ZapReporter {
	return &ZapReporter{}
}

func (r *ZapReporter) Report(err error, fields map[string]any) {
	kv := make([]any, 0, 2*len(fields)+2)
	kv = append(kv, "error", err)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	zap.S().Named("reporter").Errorw("terminal pipeline failure", kv...)
}
