/*
Package ports defines the driven ports (interfaces) for the flow engine.

These interfaces decouple the engine from external implementations so the
core can work against any persistence gateway or messaging transport.

# Key Interfaces

  - BotStore / FlowStore / SessionStore: the persistence gateway.
  - Messenger: outbound delivery over the messaging channel.
*/
package ports
