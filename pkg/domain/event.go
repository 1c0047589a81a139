package domain

// InboundKind classifies the message carried by a webhook event.
type InboundKind string

const (
	InboundText        InboundKind = "text"
	InboundInteractive InboundKind = "interactive"
	InboundDocument    InboundKind = "document"
	InboundAudio       InboundKind = "audio"
	InboundImage       InboundKind = "image"
	InboundUnknown     InboundKind = "unknown"
)

// Event is the canonical record of one inbound webhook delivery carrying
// a user message.
type Event struct {
	// AccountID is the messaging-channel business account the event belongs to.
	AccountID string
	// PhoneNumberID is the channel identifier replies are sent from.
	PhoneNumberID string
	// UserName is the sender's profile display name.
	UserName string
	// UserPhoneNumber is the sender's address on the channel.
	UserPhoneNumber string
	Message         InboundMessage
}

// InboundMessage is the typed message of an event.
type InboundMessage struct {
	ID   string
	Kind InboundKind
	// Text is set for text messages.
	Text string
	// Selection is set for interactive replies.
	Selection *Selection
}

// Selection is the option a user picked from an interactive message.
type Selection struct {
	ID    string
	Title string
}

// MatchesMessageType reports whether the inbound kind answers a question
// that was asked with the given outbound message type.
func (m InboundMessage) MatchesMessageType(t MessageType) bool {
	switch t {
	case MessageText:
		return m.Kind == InboundText
	case MessageInteractive:
		return m.Kind == InboundInteractive
	case MessageDocument:
		return m.Kind == InboundDocument
	case MessageAudio:
		return m.Kind == InboundAudio
	case MessageImage:
		return m.Kind == InboundImage
	default:
		return false
	}
}
