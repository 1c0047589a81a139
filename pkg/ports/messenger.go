package ports

import (
	"context"

	"github.com/LugmanS/chatbot/pkg/domain"
)

// Messenger delivers one outbound message over the messaging channel.
// Implementations must not panic on delivery failure; the engine treats a
// returned error as a logged, non-fatal outcome.
type Messenger interface {
	// Send delivers msg to the user address, sent from the channel
	// identifier phoneNumberID. Template placeholders are expected to be
	// resolved by the caller; Send transmits the config as given.
	Send(ctx context.Context, phoneNumberID, to string, msg *domain.MessageConfig) error
}
