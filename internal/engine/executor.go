package engine

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/LugmanS/chatbot/internal/interpolate"
	"github.com/LugmanS/chatbot/internal/metrics"
	"github.com/LugmanS/chatbot/pkg/domain"
)

// executeStep performs the side effect of one step. Delivery and call
// failures are logged and treated as complete; they never halt the walk.
func (e *Engine) executeStep(ctx context.Context, step domain.Step, ev *domain.Event, vars map[string]string) {
	switch step.Type {
	case domain.StepSendMessage, domain.StepAskQuestion:
		e.sendMessage(ctx, ev, renderMessage(step.Message, vars))
	case domain.StepAPICall:
		e.executeAPICall(ctx, step, vars)
	}
}

// sendMessage delivers one outbound message, absorbing delivery failure.
func (e *Engine) sendMessage(ctx context.Context, ev *domain.Event, msg *domain.MessageConfig) {
	if err := e.messenger.Send(ctx, ev.PhoneNumberID, ev.UserPhoneNumber, msg); err != nil {
		metrics.SendFailures.Inc()
		e.logger.Error("message delivery failed",
			"user", ev.UserPhoneNumber,
			"type", msg.Type,
			"err", err,
		)
	}
}

// renderMessage applies stored variables to the template parts of a
// message config. Free-text bodies and media captions are templated;
// interactive list content goes out verbatim.
func renderMessage(msg *domain.MessageConfig, vars map[string]string) *domain.MessageConfig {
	out := *msg
	switch msg.Type {
	case domain.MessageText:
		out.Text = interpolate.Render(msg.Text, vars)
	case domain.MessageDocument, domain.MessageAudio, domain.MessageImage:
		out.Caption = interpolate.Render(msg.Caption, vars)
	}
	return &out
}

// executeAPICall issues the step's configured request with the templated
// payload and stores the response body under the step's variable name. A
// failed call is logged and the walk continues without a captured value.
func (e *Engine) executeAPICall(ctx context.Context, step domain.Step, vars map[string]string) {
	var body io.Reader
	contentType := ""
	if step.Body != nil && step.Body.Payload != "" {
		body = strings.NewReader(interpolate.Render(step.Body.Payload, vars))
		switch step.Body.ContentType {
		case "URLEncoded":
			contentType = "application/x-www-form-urlencoded"
		default:
			contentType = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, step.Method, step.URL, body)
	if err != nil {
		metrics.APICallFailures.Inc()
		e.logger.Error("api_call request build failed", "step", step.ID, "url", step.URL, "err", err)
		return
	}
	for k, v := range step.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		metrics.APICallFailures.Inc()
		e.logger.Error("api_call failed", "step", step.ID, "url", step.URL, "err", err)
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode >= 400 {
		metrics.APICallFailures.Inc()
		e.logger.Error("api_call returned failure",
			"step", step.ID,
			"url", step.URL,
			"status", resp.StatusCode,
			"err", err,
		)
		return
	}
	if step.StorageVariable != "" {
		vars[step.StorageVariable] = string(data)
	}
}
