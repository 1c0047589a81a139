package engine

import (
	"context"
	"regexp"
	"unicode/utf8"

	"github.com/LugmanS/chatbot/pkg/domain"
)

// validateAnswer checks an inbound event against the blocking step it
// answers. Non-question steps always validate. On an inbound-kind
// mismatch the original question is resent unmodified; on a constraint
// failure the configured error text (or the question itself) is sent.
// A valid answer is captured into vars under the step's variable name.
func (e *Engine) validateAnswer(ctx context.Context, step domain.Step, ev *domain.Event, vars map[string]string) bool {
	if step.Type != domain.StepAskQuestion {
		return true
	}

	if !ev.Message.MatchesMessageType(step.Message.Type) {
		// Resend the question as configured, without interpolation.
		e.sendMessage(ctx, ev, step.Message)
		e.logger.Info("inbound kind mismatch, question resent",
			"step", step.ID,
			"expected", step.Message.Type,
			"got", ev.Message.Kind,
		)
		return false
	}

	switch step.Message.Type {
	case domain.MessageText:
		input := ev.Message.Text
		if !checkConstraints(step.Validations, input) {
			errText := step.InvalidInputErrorText
			if errText == "" {
				errText = step.Message.Text
			}
			e.sendMessage(ctx, ev, renderMessage(&domain.MessageConfig{
				Type: domain.MessageText,
				Text: errText,
			}, vars))
			e.logger.Info("answer failed validation", "step", step.ID, "user", ev.UserPhoneNumber)
			return false
		}
		if step.StorageVariable != "" {
			vars[step.StorageVariable] = input
		}
		return true
	case domain.MessageInteractive:
		// An interactive reply with no usable selection (an unrecognized
		// reply subtype) cannot answer the question.
		if ev.Message.Selection == nil {
			e.sendMessage(ctx, ev, step.Message)
			e.logger.Info("interactive reply without selection, question resent",
				"step", step.ID,
				"user", ev.UserPhoneNumber,
			)
			return false
		}
		// A selection is always accepted; its title is stored verbatim.
		if step.StorageVariable != "" {
			vars[step.StorageVariable] = ev.Message.Selection.Title
		}
		return true
	default:
		return true
	}
}

// checkConstraints applies a question's validation rules to a text
// answer. A nil config accepts everything; any one violation rejects the
// whole input. Length bounds count characters, not bytes.
func checkConstraints(v *domain.ValidationConfig, input string) bool {
	if v == nil {
		return true
	}
	length := utf8.RuneCountInString(input)
	if v.Min > 0 && length < v.Min {
		return false
	}
	if v.Max > 0 && length > v.Max {
		return false
	}
	if v.Regex != "" {
		re, err := regexp.Compile(v.Regex)
		if err != nil || !re.MatchString(input) {
			return false
		}
	}
	return true
}
