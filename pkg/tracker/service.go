// Package tracker implements the promotion and validation domain on top
// of the store: entity lifecycle, derived-state aggregation, the
// auto-promotion evaluator, branch cloning and audit event emission.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/ethpandaops/promotoor/pkg/api/store"
	"github.com/ethpandaops/promotoor/pkg/entity"
	"github.com/ethpandaops/promotoor/pkg/events"
	"github.com/sirupsen/logrus"
)

// Signature identifies the acting account for authorship and audit.
// Callers resolve it before invoking any mutating operation.
type Signature struct {
	Name      string
	AccountID *uint
}

func (sig Signature) event() events.Signature {
	return events.Signature{Name: sig.Name, AccountID: sig.AccountID}
}

// Service exposes the tracking engine. All mutating operations emit
// exactly one audit event on success and none on failure.
type Service struct {
	log           logrus.FieldLogger
	store         store.Store
	emitter       *events.Emitter
	imageMaxBytes int
}

// NewService creates a tracker service on top of a store.
func NewService(
	log logrus.FieldLogger, st store.Store, imageMaxBytes int,
) *Service {
	return &Service{
		log:           log.WithField("component", "tracker"),
		store:         st,
		emitter:       events.NewEmitter(log),
		imageMaxBytes: imageMaxBytes,
	}
}

// namePattern constrains entity names to a safe identifier alphabet.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func checkName(kind, name string) error {
	if name == "" {
		return validationErr("%s name is required", kind)
	}

	if !namePattern.MatchString(name) {
		return validationErr("invalid %s name %q", kind, name)
	}

	return nil
}

// isNotFound reports whether err is a not-found outcome, whether raw
// from the store or already classified.
func isNotFound(err error) bool {
	if errors.Is(err, store.ErrNotFound) {
		return true
	}

	var te *Error

	return errors.As(err, &te) && te.Code == CodeNotFound
}

// mapErr classifies store errors: the not-found sentinel becomes a
// NotFound tracker error, already-classified errors pass through, and
// anything else is a store failure.
func mapErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	var te *Error
	if errors.As(err, &te) {
		return err
	}

	if errors.Is(err, store.ErrNotFound) {
		return notFoundErr(format, args...)
	}

	return storeErr(fmt.Sprintf(format, args...), err)
}

func (s *Service) emit(
	ctx context.Context,
	st store.Store,
	eventType string,
	sig Signature,
	values map[string]string,
	ref entity.Ref,
	extra ...entity.Ref,
) error {
	if err := s.emitter.Emit(
		ctx, st, eventType, sig.event(), values, ref, extra...,
	); err != nil {
		return storeErr("emitting event", err)
	}

	return nil
}
