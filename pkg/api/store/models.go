package store

import (
	"time"

	"github.com/ethpandaops/promotoor/pkg/entity"
)

// Account source constants.
const (
	SourceConfig = "config"
	SourceAdmin  = "admin"
)

// Status is the outcome of a validation run.
type Status string

// Closed set of validation run statuses. StatusPassed is the value the
// promotion evaluator treats as passing.
const (
	StatusPassed        Status = "PASSED"
	StatusFailed        Status = "FAILED"
	StatusDefective     Status = "DEFECTIVE"
	StatusInterrupted   Status = "INTERRUPTED"
	StatusInvestigating Status = "INVESTIGATING"
	StatusExplained     Status = "EXPLAINED"
	StatusFixed         Status = "FIXED"
)

// Statuses lists all valid validation run statuses.
var Statuses = []Status{
	StatusPassed,
	StatusFailed,
	StatusDefective,
	StatusInterrupted,
	StatusInvestigating,
	StatusExplained,
	StatusFixed,
}

// ValidStatus reports whether s is a member of the closed status set.
func ValidStatus(s Status) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}

	return false
}

// Account represents a user that can act on the system. Mutating
// operations record the acting account as the author signature.
type Account struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         string    `gorm:"not null" json:"role"`
	Source       string    `gorm:"not null" json:"source"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Project is the root of the entity hierarchy.
type Project struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Branch belongs to exactly one project. Its name is unique within the
// project.
type Branch struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProjectID   uint      `gorm:"not null;uniqueIndex:idx_branch_project_name" json:"project_id"`
	Name        string    `gorm:"not null;uniqueIndex:idx_branch_project_name" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// PromotionLevel is a release gate builds may achieve. LevelNb orders the
// gates within a branch.
type PromotionLevel struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	BranchID    uint      `gorm:"not null;index" json:"branch_id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	LevelNb     int       `gorm:"not null" json:"level_nb"`
	AutoPromote bool      `gorm:"not null" json:"auto_promote"`
	Image       []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// ValidationStamp is a named check category builds are validated against.
// OrderNb orders the stamps within a branch; PromotionLevelID optionally
// links the stamp to a promotion level of the same branch.
type ValidationStamp struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	BranchID         uint      `gorm:"not null;index" json:"branch_id"`
	Name             string    `gorm:"not null" json:"name"`
	Description      string    `json:"description"`
	OrderNb          int       `gorm:"not null" json:"order_nb"`
	OwnerID          *uint     `json:"owner_id,omitempty"`
	PromotionLevelID *uint     `gorm:"index" json:"promotion_level_id,omitempty"`
	Image            []byte    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

// Build belongs to exactly one branch. Creation order (monotonically
// increasing id) defines "last build" semantics.
type Build struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	BranchID    uint      `gorm:"not null;index" json:"branch_id"`
	Name        string    `gorm:"not null;index" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// ValidationRun is one execution of a validation stamp against a build.
// RunOrder is strictly increasing per (build, stamp) pair.
type ValidationRun struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	BuildID           uint      `gorm:"not null;index:idx_run_build_stamp" json:"build_id"`
	ValidationStampID uint      `gorm:"not null;index:idx_run_build_stamp" json:"validation_stamp_id"`
	RunOrder          int       `gorm:"not null" json:"run_order"`
	Description       string    `json:"description"`
	CreatedAt         time.Time `json:"created_at"`
}

// ValidationRunStatus is an append-only outcome record for a validation
// run. The most recently created status for a run is authoritative.
type ValidationRunStatus struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ValidationRunID uint      `gorm:"not null;index" json:"validation_run_id"`
	Status          Status    `gorm:"not null" json:"status"`
	Description     string    `json:"description"`
	Author          string    `json:"author"`
	AuthorID        *uint     `json:"author_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// PromotedRun records that a build achieved a promotion level. At most
// one live row exists per (build, promotion level) pair; a new promotion
// replaces the prior one.
type PromotedRun struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	BuildID          uint      `gorm:"not null;uniqueIndex:idx_promoted_build_level" json:"build_id"`
	PromotionLevelID uint      `gorm:"not null;uniqueIndex:idx_promoted_build_level" json:"promotion_level_id"`
	Description      string    `json:"description"`
	Author           string    `json:"author"`
	AuthorID         *uint     `json:"author_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Comment is an append-only note attached to any entity.
type Comment struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	EntityKind entity.Kind `gorm:"not null;index:idx_comment_entity" json:"entity_kind"`
	EntityID   uint        `gorm:"not null;index:idx_comment_entity" json:"entity_id"`
	Content    string      `gorm:"not null" json:"content"`
	Author     string      `json:"author"`
	AuthorID   *uint       `json:"author_id,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Property is an extension property value attached to an entity, keyed by
// (extension namespace, property name).
type Property struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	EntityKind entity.Kind `gorm:"not null;uniqueIndex:idx_property_key" json:"entity_kind"`
	EntityID   uint        `gorm:"not null;uniqueIndex:idx_property_key" json:"entity_id"`
	Extension  string      `gorm:"not null;uniqueIndex:idx_property_key" json:"extension"`
	Name       string      `gorm:"not null;uniqueIndex:idx_property_key" json:"name"`
	Value      string      `json:"value"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Event is an immutable audit record. One nullable column per entity kind
// holds the ancestor references collected for the event; Values carries
// free-form key/value fields as JSON.
type Event struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      string    `gorm:"uniqueIndex;not null" json:"uuid"`
	EventType string    `gorm:"not null;index" json:"event_type"`
	Author    string    `json:"author"`
	AuthorID  *uint     `json:"author_id,omitempty"`
	Values    string    `json:"values,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	ProjectID             *uint `gorm:"index" json:"project_id,omitempty"`
	BranchID              *uint `gorm:"index" json:"branch_id,omitempty"`
	PromotionLevelID      *uint `gorm:"index" json:"promotion_level_id,omitempty"`
	ValidationStampID     *uint `gorm:"index" json:"validation_stamp_id,omitempty"`
	BuildID               *uint `gorm:"index" json:"build_id,omitempty"`
	ValidationRunID       *uint `gorm:"index" json:"validation_run_id,omitempty"`
	ValidationRunStatusID *uint `json:"validation_run_status_id,omitempty"`
	PromotedRunID         *uint `json:"promoted_run_id,omitempty"`
	CommentID             *uint `json:"comment_id,omitempty"`
}

// SetRef records a reference to the given entity on the event. Unknown
// kinds are ignored.
func (e *Event) SetRef(kind entity.Kind, id uint) {
	v := id

	switch kind {
	case entity.KindProject:
		e.ProjectID = &v
	case entity.KindBranch:
		e.BranchID = &v
	case entity.KindPromotionLevel:
		e.PromotionLevelID = &v
	case entity.KindValidationStamp:
		e.ValidationStampID = &v
	case entity.KindBuild:
		e.BuildID = &v
	case entity.KindValidationRun:
		e.ValidationRunID = &v
	case entity.KindValidationRunStatus:
		e.ValidationRunStatusID = &v
	case entity.KindPromotedRun:
		e.PromotedRunID = &v
	case entity.KindComment:
		e.CommentID = &v
	}
}

// Ref returns the reference recorded for the given kind, if any.
func (e *Event) Ref(kind entity.Kind) *uint {
	switch kind {
	case entity.KindProject:
		return e.ProjectID
	case entity.KindBranch:
		return e.BranchID
	case entity.KindPromotionLevel:
		return e.PromotionLevelID
	case entity.KindValidationStamp:
		return e.ValidationStampID
	case entity.KindBuild:
		return e.BuildID
	case entity.KindValidationRun:
		return e.ValidationRunID
	case entity.KindValidationRunStatus:
		return e.ValidationRunStatusID
	case entity.KindPromotedRun:
		return e.PromotedRunID
	case entity.KindComment:
		return e.CommentID
	default:
		return nil
	}
}

// Refs returns all entity references recorded on the event.
func (e *Event) Refs() []entity.Ref {
	refs := make([]entity.Ref, 0, 6)

	for _, kind := range []entity.Kind{
		entity.KindProject,
		entity.KindBranch,
		entity.KindPromotionLevel,
		entity.KindValidationStamp,
		entity.KindBuild,
		entity.KindValidationRun,
		entity.KindValidationRunStatus,
		entity.KindPromotedRun,
		entity.KindComment,
	} {
		if id := e.Ref(kind); id != nil {
			refs = append(refs, entity.Ref{Kind: kind, ID: *id})
		}
	}

	return refs
}
