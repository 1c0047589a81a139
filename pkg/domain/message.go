package domain

import "fmt"

// MessageType discriminates outbound message payloads.
type MessageType string

const (
	MessageText        MessageType = "text"
	MessageDocument    MessageType = "document"
	MessageAudio       MessageType = "audio"
	MessageImage       MessageType = "image"
	MessageInteractive MessageType = "interactive"
)

// InteractionList is the only interactive variant the channel supports here.
const InteractionList = "list"

// MessageConfig describes one outbound message. Type selects the variant:
// text carries Text, media kinds carry Link and an optional Caption, and
// interactive carries the list fields.
type MessageConfig struct {
	Type MessageType `json:"messageType" yaml:"messageType" mapstructure:"messageType"`

	// text / interactive body
	Text string `json:"text,omitempty" yaml:"text,omitempty" mapstructure:"text"`

	// document / audio / image
	Link    string `json:"link,omitempty" yaml:"link,omitempty" mapstructure:"link"`
	Caption string `json:"caption,omitempty" yaml:"caption,omitempty" mapstructure:"caption"`

	// interactive list
	InteractionType string       `json:"interactionType,omitempty" yaml:"interactionType,omitempty" mapstructure:"interactionType"`
	HeaderText      string       `json:"headerText,omitempty" yaml:"headerText,omitempty" mapstructure:"headerText"`
	FooterText      string       `json:"footerText,omitempty" yaml:"footerText,omitempty" mapstructure:"footerText"`
	ButtonText      string       `json:"buttonText,omitempty" yaml:"buttonText,omitempty" mapstructure:"buttonText"`
	Options         []ListOption `json:"options,omitempty" yaml:"options,omitempty" mapstructure:"options"`
}

// ListOption is one selectable row of an interactive list message.
type ListOption struct {
	ID          string `json:"id" yaml:"id" mapstructure:"id"`
	Title       string `json:"title" yaml:"title" mapstructure:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
}

func (m *MessageConfig) validate(stepID string) error {
	switch m.Type {
	case MessageText:
		if m.Text == "" {
			return fmt.Errorf("text message of step %q has no text", stepID)
		}
	case MessageDocument, MessageAudio, MessageImage:
		if m.Link == "" {
			return fmt.Errorf("%s message of step %q has no link", m.Type, stepID)
		}
	case MessageInteractive:
		if m.InteractionType != InteractionList {
			return fmt.Errorf("interactive message of step %q has unsupported interaction %q", stepID, m.InteractionType)
		}
		if len(m.Options) == 0 {
			return fmt.Errorf("interactive message of step %q has no options", stepID)
		}
	default:
		return fmt.Errorf("message of step %q has unknown type %q", stepID, m.Type)
	}
	return nil
}
