package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// LogHook counts emitted log lines by level.
type LogHook struct {
	messages *prometheus.CounterVec
}

// NewLogHook registers log_messages_total on reg. The returned hook is
// passed to logger.Options.Hooks.
func NewLogHook(reg prometheus.Registerer) *LogHook {
	if reg == nil {
		return &LogHook{}
	}
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "log_messages_total",
		Help: "Log lines written by level.",
	}, []string{"level"})
	reg.MustRegister(messages)
	return &LogHook{messages: messages}
}

// Run implements zerolog.Hook.
func (h *LogHook) Run(_ *zerolog.Event, level zerolog.Level, _ string) {
	if h == nil || h.messages == nil || level == zerolog.NoLevel {
		return
	}
	h.messages.WithLabelValues(level.String()).Inc()
}
