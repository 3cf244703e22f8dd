package shared

// BaseAggregateRoot is embedded by records that are saved with optimistic
// locking and raise events. Version starts at 1 and moves by one per saved
// mutation; repositories compare it with the stored value.
//
// Events accumulate until the owner has persisted the change, then are
// drained with ClearDomainEvents and handed to an EventPublisher.
type BaseAggregateRoot struct {
	BaseEntity
	Version int

	events []DomainEvent
}

// NewBaseAggregateRoot returns an aggregate at version 1 with no events
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntity(), Version: 1}
}

func (a *BaseAggregateRoot) IncrementVersion() { a.Version++ }

func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.events = append(a.events, event)
}

// GetDomainEvents returns the pending events without draining them
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.events
}

func (a *BaseAggregateRoot) ClearDomainEvents() { a.events = nil }
