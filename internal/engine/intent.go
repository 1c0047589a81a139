package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/LugmanS/chatbot/pkg/domain"
)

// matchIntent maps a user's first text message to a flow. An exact
// intent match wins; otherwise a wildcard flow is used if one exists.
func matchIntent(refs []domain.FlowRef, text string) (domain.FlowRef, bool) {
	var wildcard *domain.FlowRef
	for i, ref := range refs {
		if ref.Intent == text {
			return ref, true
		}
		if ref.Intent == domain.WildcardIntent && wildcard == nil {
			wildcard = &refs[i]
		}
	}
	if wildcard != nil {
		return *wildcard, true
	}
	return domain.FlowRef{}, false
}

// sendFallback tells the user which intents the bot understands. Sent
// when no conversation can start from the inbound message.
func (e *Engine) sendFallback(ctx context.Context, ev *domain.Event, refs []domain.FlowRef) {
	intents := make([]string, 0, len(refs))
	for _, ref := range refs {
		intents = append(intents, ref.Intent)
	}
	e.sendMessage(ctx, ev, &domain.MessageConfig{
		Type: domain.MessageText,
		Text: fallbackText(ev.UserName, intents),
	})
}

// fallbackText builds the greeting with a numbered list of available
// intent keywords.
func fallbackText(username string, intents []string) string {
	var list strings.Builder
	for i, intent := range intents {
		fmt.Fprintf(&list, "\n%d. %s", i+1, intent)
	}
	return fmt.Sprintf("Hey %s,\nThanks for contacting us. We couldn't land you on exactly what you are looking for. Try sending any of the below keys.%s", username, list.String())
}
