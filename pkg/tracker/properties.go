package tracker

import (
	"context"

	"github.com/ethpandaops/promotoor/pkg/api/store"
	"github.com/ethpandaops/promotoor/pkg/entity"
)

// GetProperties returns the extension properties attached to an entity,
// ordered by extension namespace then property name.
func (s *Service) GetProperties(
	ctx context.Context, kind entity.Kind, entityID uint,
) ([]store.Property, error) {
	if !entity.Valid(kind) {
		return nil, validationErr("unknown entity kind %q", kind)
	}

	props, err := s.store.GetProperties(ctx, kind, entityID)

	return props, mapErr(err, "properties of %s %d", kind, entityID)
}

// SetProperties upserts extension property values on an entity.
func (s *Service) SetProperties(
	ctx context.Context, kind entity.Kind, entityID uint, props []store.Property,
) error {
	if !entity.Valid(kind) {
		return validationErr("unknown entity kind %q", kind)
	}

	for i := range props {
		props[i].EntityKind = kind
		props[i].EntityID = entityID
	}

	return mapErr(
		s.store.SetProperties(ctx, props),
		"setting properties of %s %d", kind, entityID,
	)
}

// ListEvents returns a page of the global audit trail, newest first.
func (s *Service) ListEvents(
	ctx context.Context, offset, count int,
) ([]store.Event, error) {
	evts, err := s.store.ListEvents(ctx, offset, count)

	return evts, mapErr(err, "listing events")
}

// ListEntityEvents returns a page of the audit trail scoped to one
// entity, the events of its descendants included through ancestor
// references.
func (s *Service) ListEntityEvents(
	ctx context.Context, kind entity.Kind, entityID uint, offset, count int,
) ([]store.Event, error) {
	if !entity.Valid(kind) {
		return nil, validationErr("unknown entity kind %q", kind)
	}

	evts, err := s.store.ListEventsByEntity(ctx, kind, entityID, offset, count)

	return evts, mapErr(err, "listing events for %s %d", kind, entityID)
}
