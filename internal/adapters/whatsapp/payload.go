// Package whatsapp adapts the WhatsApp Cloud API: it normalizes inbound
// webhook payloads and delivers outbound messages.
package whatsapp

import "github.com/LugmanS/chatbot/pkg/domain"

// WebhookPayload is the raw body of an inbound webhook delivery.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one business-account entry of a webhook delivery.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change wraps the value object carrying the actual event data.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value carries sender metadata, contact profiles, and messages. Status
// notifications arrive with no messages.
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts"`
	Messages         []Message `json:"messages"`
}

// Metadata identifies the channel phone number the event belongs to.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact is the sender's profile.
type Contact struct {
	Profile Profile `json:"profile"`
	WaID    string  `json:"wa_id"`
}

// Profile carries the sender's display name.
type Profile struct {
	Name string `json:"name"`
}

// Message is one inbound message in its raw wire shape.
type Message struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Document    *Media       `json:"document,omitempty"`
	Audio       *Media       `json:"audio,omitempty"`
	Image       *Media       `json:"image,omitempty"`
}

// Text is the body of a text message.
type Text struct {
	Body string `json:"body"`
}

// Interactive is a reply to an interactive message. Type selects which
// reply block is present.
type Interactive struct {
	Type        string `json:"type"`
	ListReply   *Reply `json:"list_reply,omitempty"`
	ButtonReply *Reply `json:"button_reply,omitempty"`
}

// Reply is the option the user selected.
type Reply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Media is an inbound media attachment.
type Media struct {
	ID       string `json:"id,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// ParseEvent converts a raw webhook payload into the canonical event
// record. It returns false when the payload carries no message (for
// example a delivery-status notification); callers must check this and
// exit early without error.
func ParseEvent(p *WebhookPayload) (*domain.Event, bool) {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return nil, false
	}
	value := p.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 || len(value.Contacts) == 0 {
		return nil, false
	}
	contact := value.Contacts[0]
	return &domain.Event{
		AccountID:       p.Entry[0].ID,
		PhoneNumberID:   value.Metadata.PhoneNumberID,
		UserName:        contact.Profile.Name,
		UserPhoneNumber: contact.WaID,
		Message:         normalizeMessage(value.Messages[0]),
	}, true
}

func normalizeMessage(m Message) domain.InboundMessage {
	out := domain.InboundMessage{ID: m.ID}
	switch m.Type {
	case "text":
		out.Kind = domain.InboundText
		if m.Text != nil {
			out.Text = m.Text.Body
		}
	case "interactive":
		out.Kind = domain.InboundInteractive
		if m.Interactive != nil {
			var reply *Reply
			switch m.Interactive.Type {
			case "list_reply":
				reply = m.Interactive.ListReply
			case "button_reply":
				reply = m.Interactive.ButtonReply
			}
			if reply != nil {
				out.Selection = &domain.Selection{ID: reply.ID, Title: reply.Title}
			}
		}
	case "document":
		out.Kind = domain.InboundDocument
	case "audio":
		out.Kind = domain.InboundAudio
	case "image":
		out.Kind = domain.InboundImage
	default:
		out.Kind = domain.InboundUnknown
	}
	return out
}
