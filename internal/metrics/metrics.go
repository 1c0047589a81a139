// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsReceived counts webhook deliveries that carried a message.
	EventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_events_received_total",
		Help: "Inbound message events accepted for processing.",
	})

	// EventsIgnored counts events dropped without flow execution.
	EventsIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_events_ignored_total",
		Help: "Inbound events ignored (no message, no published bot).",
	})

	// SessionsStarted counts conversations begun by an intent match.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_sessions_started_total",
		Help: "Flow sessions created.",
	})

	// SessionsEnded counts sessions deactivated by reaching a terminal
	// step or an exhausted question policy.
	SessionsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_sessions_ended_total",
		Help: "Flow sessions deactivated.",
	})

	// StepsExecuted counts steps executed, labelled by step type.
	StepsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbot_steps_executed_total",
		Help: "Flow steps executed.",
	}, []string{"type"})

	// SendFailures counts outbound message deliveries that failed.
	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_send_failures_total",
		Help: "Outbound message deliveries that reported failure.",
	})

	// APICallFailures counts api_call steps that did not complete.
	APICallFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_api_call_failures_total",
		Help: "api_call steps that failed to build, send, or succeed.",
	})
)
