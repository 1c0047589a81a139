// Package domain holds the core data model of the chatbot: bots, flows,
// the step graph, sessions, and normalized inbound events. It has no
// dependencies on transports or storage.
package domain
