package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"log/slog"

	"github.com/LugmanS/chatbot/internal/logging"
	"github.com/LugmanS/chatbot/pkg/domain"
)

// DefaultBaseURL is the Cloud API endpoint messages are posted to.
const DefaultBaseURL = "https://graph.facebook.com/v18.0"

const defaultListButton = "View options"

// Client delivers outbound messages through the Cloud API, authenticated
// with a bearer access token. It implements ports.Messenger.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL overrides the Cloud API endpoint (used by tests).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Cloud API client using the given access token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// outbound is the wire shape of one message send.
type outbound struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *outText     `json:"text,omitempty"`
	Document         *outMedia    `json:"document,omitempty"`
	Audio            *outMedia    `json:"audio,omitempty"`
	Image            *outMedia    `json:"image,omitempty"`
	Interactive      *outInteract `json:"interactive,omitempty"`
}

type outText struct {
	Body string `json:"body"`
}

type outMedia struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type outInteract struct {
	Type   string     `json:"type"`
	Header *outHeader `json:"header,omitempty"`
	Body   outText    `json:"body"`
	Footer *outText   `json:"footer,omitempty"`
	Action outAction  `json:"action"`
}

type outHeader struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outAction struct {
	Button   string       `json:"button"`
	Sections []outSection `json:"sections"`
}

type outSection struct {
	Rows []outRow `json:"rows"`
}

type outRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Send posts one message to the recipient from the given channel phone
// number identifier.
func (c *Client) Send(ctx context.Context, phoneNumberID, to string, msg *domain.MessageConfig) error {
	payload, err := buildPayload(to, msg)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding message payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending message to %s: %w", to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("cloud api rejected message to %s: status %d: %s", to, resp.StatusCode, detail)
	}
	c.logger.Debug("message delivered", "to", to, "type", msg.Type)
	return nil
}

// buildPayload maps a message config onto the Cloud API wire shape.
func buildPayload(to string, msg *domain.MessageConfig) (*outbound, error) {
	out := &outbound{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             string(msg.Type),
	}
	switch msg.Type {
	case domain.MessageText:
		out.Text = &outText{Body: msg.Text}
	case domain.MessageDocument:
		out.Document = &outMedia{Link: msg.Link, Caption: msg.Caption}
	case domain.MessageAudio:
		out.Audio = &outMedia{Link: msg.Link, Caption: msg.Caption}
	case domain.MessageImage:
		out.Image = &outMedia{Link: msg.Link, Caption: msg.Caption}
	case domain.MessageInteractive:
		rows := make([]outRow, 0, len(msg.Options))
		for _, opt := range msg.Options {
			rows = append(rows, outRow{ID: opt.ID, Title: opt.Title, Description: opt.Description})
		}
		button := msg.ButtonText
		if button == "" {
			button = defaultListButton
		}
		interact := &outInteract{
			Type: msg.InteractionType,
			Body: outText{Body: msg.Text},
			Action: outAction{
				Button:   button,
				Sections: []outSection{{Rows: rows}},
			},
		}
		if msg.HeaderText != "" {
			interact.Header = &outHeader{Type: "text", Text: msg.HeaderText}
		}
		if msg.FooterText != "" {
			interact.Footer = &outText{Body: msg.FooterText}
		}
		out.Interactive = interact
	default:
		return nil, fmt.Errorf("unsupported message type %q", msg.Type)
	}
	return out, nil
}
