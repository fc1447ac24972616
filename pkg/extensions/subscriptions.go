package extensions

import (
	"github.com/openfroyo/editengine/pkg/edit"
)

// TypeSubscribers is the transaction type of subscriber changes.
const TypeSubscribers = "core:subscribers"

// Subscribable is implemented by objects which keep a subscriber list.
type Subscribable interface {
	edit.Object
	SubscriberPHIDs() []string
	SetSubscriberPHIDs(phids []string)
}

// Subscriptions contributes a subscribers field to every subscribable
// object, whatever engine edits it.
type Subscriptions struct{}

var _ edit.FieldContributor = (*Subscriptions)(nil)

// NewSubscriptions creates the subscriptions contributor.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{}
}

// ExtensionKey implements edit.FieldContributor.
func (s *Subscriptions) ExtensionKey() string {
	return "subscriptions"
}

// SupportsObject implements edit.FieldContributor.
func (s *Subscriptions) SupportsObject(_ edit.Definition, obj edit.Object) bool {
	_, ok := obj.(Subscribable)
	return ok
}

// BuildFields implements edit.FieldContributor.
func (s *Subscriptions) BuildFields(_ edit.Definition, _ edit.Object) []*edit.Field {
	return []*edit.Field{
		edit.NewListField("subscribers", "Subscribers").
			WithTransaction(TypeSubscribers).
			WithDescription("PHIDs of users to notify about changes.").
			WithExamples("PHID-USER-alice,PHID-USER-bob").
			WithRules(`value.all(p, p.startsWith("PHID-USER-"))`).
			CommentAction().
			Bind(
				func(o edit.Object) any {
					return append([]string(nil), o.(Subscribable).SubscriberPHIDs()...)
				},
				func(o edit.Object, v any) {
					o.(Subscribable).SetSubscriberPHIDs(append([]string{}, v.([]string)...))
				},
			),
	}
}
