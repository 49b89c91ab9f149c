// Package events records audit events for entity changes. Every event
// carries the full ancestor context of the entity it concerns, so that
// a build event is also searchable from its branch and project.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethpandaops/promotoor/pkg/api/store"
	"github.com/ethpandaops/promotoor/pkg/entity"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event types.
const (
	TypeProjectCreated        = "project.created"
	TypeProjectUpdated        = "project.updated"
	TypeProjectDeleted        = "project.deleted"
	TypeBranchCreated         = "branch.created"
	TypeBranchUpdated         = "branch.updated"
	TypeBranchDeleted         = "branch.deleted"
	TypeBranchCloned          = "branch.cloned"
	TypePromotionLevelCreated = "promotion_level.created"
	TypePromotionLevelUpdated = "promotion_level.updated"
	TypePromotionLevelDeleted = "promotion_level.deleted"
	TypeValidationStampCreate = "validation_stamp.created"
	TypeValidationStampUpdate = "validation_stamp.updated"
	TypeValidationStampDelete = "validation_stamp.deleted"
	TypeImageUpdated          = "image.updated"
	TypeBuildCreated          = "build.created"
	TypeBuildUpdated          = "build.updated"
	TypeBuildDeleted          = "build.deleted"
	TypeValidationRunCreated  = "validation_run.created"
	TypeRunStatusCreated      = "validation_run.status"
	TypeBuildPromoted         = "build.promoted"
	TypePromotionDeleted      = "build.promotion_deleted"
	TypeCommentCreated        = "comment.created"
)

// Signature identifies the actor behind an event.
type Signature struct {
	Name      string
	AccountID *uint
}

// CollectRefs resolves the full ancestor context of an entity, the
// entity itself included. Ancestors are resolved transitively following
// the entity parent table; relations that do not apply to the instance
// (an unlinked stamp's promotion level) are skipped.
func CollectRefs(
	ctx context.Context, s store.Store, ref entity.Ref,
) ([]entity.Ref, error) {
	seen := make(map[entity.Ref]struct{})
	refs := make([]entity.Ref, 0, 4)

	var walk func(r entity.Ref) error

	walk = func(r entity.Ref) error {
		if _, ok := seen[r]; ok {
			return nil
		}

		seen[r] = struct{}{}
		refs = append(refs, r)

		for _, parentKind := range entity.ParentKinds(r.Kind) {
			parentID, err := s.ParentID(ctx, parentKind, r.Kind, r.ID)
			if err != nil {
				return fmt.Errorf(
					"resolving %s parent of %s %d: %w",
					parentKind, r.Kind, r.ID, err,
				)
			}

			if parentID == nil {
				continue
			}

			if err := walk(entity.Ref{Kind: parentKind, ID: *parentID}); err != nil {
				return err
			}
		}

		return nil
	}

	if err := walk(ref); err != nil {
		return nil, err
	}

	return refs, nil
}

// Emitter writes audit events through a store.
type Emitter struct {
	log logrus.FieldLogger
}

// NewEmitter creates an event emitter.
func NewEmitter(log logrus.FieldLogger) *Emitter {
	return &Emitter{
		log: log.WithField("component", "events"),
	}
}

// Emit records an event of the given type against the entity, expanding
// the entity into its full ancestor context first. Extra refs are
// attached as-is, without ancestor expansion, for entities that annotate
// the anchor rather than contain it (a comment on a branch). The store
// passed in is used for both context resolution and the write, so
// callers inside a transaction get transactional event emission for
// free.
func (e *Emitter) Emit(
	ctx context.Context,
	s store.Store,
	eventType string,
	sig Signature,
	values map[string]string,
	ref entity.Ref,
	extra ...entity.Ref,
) error {
	refs, err := CollectRefs(ctx, s, ref)
	if err != nil {
		return fmt.Errorf("collecting entity context: %w", err)
	}

	refs = append(refs, extra...)

	event := &store.Event{
		UUID:      uuid.NewString(),
		EventType: eventType,
		Author:    sig.Name,
		AuthorID:  sig.AccountID,
	}

	if len(values) > 0 {
		data, err := json.Marshal(values)
		if err != nil {
			return fmt.Errorf("encoding event values: %w", err)
		}

		event.Values = string(data)
	}

	for _, r := range refs {
		event.SetRef(r.Kind, r.ID)
	}

	if err := s.CreateEvent(ctx, event); err != nil {
		return fmt.Errorf("recording event: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"type":   eventType,
		"entity": ref.Kind,
		"id":     ref.ID,
	}).Debug("Event recorded")

	return nil
}
