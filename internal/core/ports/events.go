package ports

import "github.com/melih/lighthouse/internal/core/domain"

// Publisher accepts status events. Publish never blocks; it returns the
// number of subscribers that received the event, which may be zero.
type Publisher interface {
	Publish(event domain.Event) int
}
