// Package entity defines the closed set of tracked entity kinds and the
// static ancestor table used when collecting audit event context.
package entity

// Kind identifies one of the tracked entity kinds.
type Kind string

const (
	KindProject             Kind = "project"
	KindBranch              Kind = "branch"
	KindPromotionLevel      Kind = "promotion_level"
	KindValidationStamp     Kind = "validation_stamp"
	KindBuild               Kind = "build"
	KindValidationRun       Kind = "validation_run"
	KindValidationRunStatus Kind = "validation_run_status"
	KindPromotedRun         Kind = "promoted_run"
	KindComment             Kind = "comment"
)

// Ref is a typed reference to a single entity instance.
type Ref struct {
	Kind Kind `json:"kind"`
	ID   uint `json:"id"`
}

// parents maps each kind to its immediate parent kinds, in the order the
// context collector walks them. Optional relations (a validation stamp's
// promotion level) appear here too; resolution decides whether they apply.
var parents = map[Kind][]Kind{
	KindProject:             nil,
	KindBranch:              {KindProject},
	KindPromotionLevel:      {KindBranch},
	KindValidationStamp:     {KindPromotionLevel, KindBranch},
	KindBuild:               {KindBranch},
	KindValidationRun:       {KindValidationStamp, KindBuild},
	KindValidationRunStatus: {KindValidationRun},
	KindPromotedRun:         {KindPromotionLevel, KindBuild},
	KindComment:             nil,
}

// ParentKinds returns the ordered immediate parent kinds for the given
// kind. The returned slice must not be modified.
func ParentKinds(kind Kind) []Kind {
	return parents[kind]
}

// Valid reports whether the kind is one of the known entity kinds.
func Valid(kind Kind) bool {
	_, ok := parents[kind]

	return ok
}

// Kinds returns all known entity kinds.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(parents))
	for k := range parents {
		kinds = append(kinds, k)
	}

	return kinds
}
