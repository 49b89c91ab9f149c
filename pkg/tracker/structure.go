package tracker

import (
	"context"

	"github.com/ethpandaops/promotoor/pkg/api/store"
	"github.com/ethpandaops/promotoor/pkg/entity"
	"github.com/ethpandaops/promotoor/pkg/events"
)

// --- Projects ---

// CreateProject creates a project. The name must be unique across all
// projects.
func (s *Service) CreateProject(
	ctx context.Context, sig Signature, name, description string,
) (*store.Project, error) {
	if err := checkName("project", name); err != nil {
		return nil, err
	}

	p := &store.Project{Name: name, Description: description}

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetProjectByName(ctx, name); err == nil {
			return conflictErr("project %q already exists", name)
		} else if !isNotFound(err) {
			return mapErr(err, "checking project name %q", name)
		}

		if err := tx.CreateProject(ctx, p); err != nil {
			return mapErr(err, "creating project %q", name)
		}

		return s.emit(ctx, tx, events.TypeProjectCreated, sig, nil,
			entity.Ref{Kind: entity.KindProject, ID: p.ID})
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}

// GetProject returns a project by id.
func (s *Service) GetProject(
	ctx context.Context, id uint,
) (*store.Project, error) {
	p, err := s.store.GetProject(ctx, id)

	return p, mapErr(err, "project %d", id)
}

// GetProjectByName returns a project by its unique name.
func (s *Service) GetProjectByName(
	ctx context.Context, name string,
) (*store.Project, error) {
	p, err := s.store.GetProjectByName(ctx, name)

	return p, mapErr(err, "project %q", name)
}

// ListProjects returns all projects sorted by name.
func (s *Service) ListProjects(ctx context.Context) ([]store.Project, error) {
	projects, err := s.store.ListProjects(ctx)

	return projects, mapErr(err, "listing projects")
}

// UpdateProject renames or redescribes a project.
func (s *Service) UpdateProject(
	ctx context.Context, sig Signature, id uint, name, description string,
) (*store.Project, error) {
	if err := checkName("project", name); err != nil {
		return nil, err
	}

	var p *store.Project

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var err error

		p, err = tx.GetProject(ctx, id)
		if err != nil {
			return mapErr(err, "project %d", id)
		}

		if name != p.Name {
			if _, err := tx.GetProjectByName(ctx, name); err == nil {
				return conflictErr("project %q already exists", name)
			} else if !isNotFound(err) {
				return mapErr(err, "checking project name %q", name)
			}
		}

		p.Name = name
		p.Description = description

		if err := tx.UpdateProject(ctx, p); err != nil {
			return mapErr(err, "updating project %d", id)
		}

		return s.emit(ctx, tx, events.TypeProjectUpdated, sig, nil,
			entity.Ref{Kind: entity.KindProject, ID: p.ID})
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}

// DeleteProject removes a project. The store cascades to children.
func (s *Service) DeleteProject(
	ctx context.Context, sig Signature, id uint,
) error {
	return s.store.Transaction(ctx, func(tx store.Store) error {
		p, err := tx.GetProject(ctx, id)
		if err != nil {
			return mapErr(err, "project %d", id)
		}

		if err := tx.DeleteProject(ctx, id); err != nil {
			return mapErr(err, "deleting project %d", id)
		}

		return s.emit(ctx, tx, events.TypeProjectDeleted, sig,
			map[string]string{"name": p.Name}, entity.Ref{})
	})
}

// --- Branches ---

// CreateBranch creates a branch under a project. The name must be
// unique within the project.
func (s *Service) CreateBranch(
	ctx context.Context, sig Signature, projectID uint, name, description string,
) (*store.Branch, error) {
	if err := checkName("branch", name); err != nil {
		return nil, err
	}

	b := &store.Branch{ProjectID: projectID, Name: name, Description: description}

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetProject(ctx, projectID); err != nil {
			return mapErr(err, "project %d", projectID)
		}

		if _, err := tx.GetBranchByName(ctx, projectID, name); err == nil {
			return conflictErr("branch %q already exists in project %d", name, projectID)
		} else if !isNotFound(err) {
			return mapErr(err, "checking branch name %q", name)
		}

		if err := tx.CreateBranch(ctx, b); err != nil {
			return mapErr(err, "creating branch %q", name)
		}

		return s.emit(ctx, tx, events.TypeBranchCreated, sig, nil,
			entity.Ref{Kind: entity.KindBranch, ID: b.ID})
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}

// GetBranch returns a branch by id.
func (s *Service) GetBranch(
	ctx context.Context, id uint,
) (*store.Branch, error) {
	b, err := s.store.GetBranch(ctx, id)

	return b, mapErr(err, "branch %d", id)
}

// GetBranchByName returns a branch by name within a project.
func (s *Service) GetBranchByName(
	ctx context.Context, projectID uint, name string,
) (*store.Branch, error) {
	b, err := s.store.GetBranchByName(ctx, projectID, name)

	return b, mapErr(err, "branch %q", name)
}

// ListBranches returns a project's branches sorted by name.
func (s *Service) ListBranches(
	ctx context.Context, projectID uint,
) ([]store.Branch, error) {
	branches, err := s.store.ListBranchesByProject(ctx, projectID)

	return branches, mapErr(err, "listing branches of project %d", projectID)
}

// UpdateBranch renames or redescribes a branch.
func (s *Service) UpdateBranch(
	ctx context.Context, sig Signature, id uint, name, description string,
) (*store.Branch, error) {
	if err := checkName("branch", name); err != nil {
		return nil, err
	}

	var b *store.Branch

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var err error

		b, err = tx.GetBranch(ctx, id)
		if err != nil {
			return mapErr(err, "branch %d", id)
		}

		if name != b.Name {
			if _, err := tx.GetBranchByName(ctx, b.ProjectID, name); err == nil {
				return conflictErr("branch %q already exists in project %d", name, b.ProjectID)
			} else if !isNotFound(err) {
				return mapErr(err, "checking branch name %q", name)
			}
		}

		b.Name = name
		b.Description = description

		if err := tx.UpdateBranch(ctx, b); err != nil {
			return mapErr(err, "updating branch %d", id)
		}

		return s.emit(ctx, tx, events.TypeBranchUpdated, sig, nil,
			entity.Ref{Kind: entity.KindBranch, ID: b.ID})
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}

// DeleteBranch removes a branch.
func (s *Service) DeleteBranch(
	ctx context.Context, sig Signature, id uint,
) error {
	return s.store.Transaction(ctx, func(tx store.Store) error {
		b, err := tx.GetBranch(ctx, id)
		if err != nil {
			return mapErr(err, "branch %d", id)
		}

		if err := tx.DeleteBranch(ctx, id); err != nil {
			return mapErr(err, "deleting branch %d", id)
		}

		return s.emit(ctx, tx, events.TypeBranchDeleted, sig,
			map[string]string{"name": b.Name},
			entity.Ref{Kind: entity.KindProject, ID: b.ProjectID})
	})
}

// --- Promotion levels ---

// CreatePromotionLevel creates a gate at the end of the branch's level
// sequence.
func (s *Service) CreatePromotionLevel(
	ctx context.Context, sig Signature, branchID uint, name, description string,
) (*store.PromotionLevel, error) {
	if err := checkName("promotion level", name); err != nil {
		return nil, err
	}

	pl := &store.PromotionLevel{BranchID: branchID, Name: name, Description: description}

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetBranch(ctx, branchID); err != nil {
			return mapErr(err, "branch %d", branchID)
		}

		if _, err := tx.GetPromotionLevelByName(ctx, branchID, name); err == nil {
			return conflictErr("promotion level %q already exists in branch %d", name, branchID)
		} else if !isNotFound(err) {
			return mapErr(err, "checking promotion level name %q", name)
		}

		if err := tx.CreatePromotionLevel(ctx, pl); err != nil {
			return mapErr(err, "creating promotion level %q", name)
		}

		return s.emit(ctx, tx, events.TypePromotionLevelCreated, sig, nil,
			entity.Ref{Kind: entity.KindPromotionLevel, ID: pl.ID})
	})
	if err != nil {
		return nil, err
	}

	return pl, nil
}

// GetPromotionLevel returns a promotion level by id.
func (s *Service) GetPromotionLevel(
	ctx context.Context, id uint,
) (*store.PromotionLevel, error) {
	pl, err := s.store.GetPromotionLevel(ctx, id)

	return pl, mapErr(err, "promotion level %d", id)
}

// ListPromotionLevels returns a branch's gates in level order.
func (s *Service) ListPromotionLevels(
	ctx context.Context, branchID uint,
) ([]store.PromotionLevel, error) {
	levels, err := s.store.ListPromotionLevelsByBranch(ctx, branchID)

	return levels, mapErr(err, "listing promotion levels of branch %d", branchID)
}

// UpdatePromotionLevel renames or redescribes a promotion level.
func (s *Service) UpdatePromotionLevel(
	ctx context.Context, sig Signature, id uint, name, description string,
) (*store.PromotionLevel, error) {
	if err := checkName("promotion level", name); err != nil {
		return nil, err
	}

	var pl *store.PromotionLevel

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var err error

		pl, err = tx.GetPromotionLevel(ctx, id)
		if err != nil {
			return mapErr(err, "promotion level %d", id)
		}

		if name != pl.Name {
			if _, err := tx.GetPromotionLevelByName(ctx, pl.BranchID, name); err == nil {
				return conflictErr("promotion level %q already exists in branch %d", name, pl.BranchID)
			} else if !isNotFound(err) {
				return mapErr(err, "checking promotion level name %q", name)
			}
		}

		pl.Name = name
		pl.Description = description

		if err := tx.UpdatePromotionLevel(ctx, pl); err != nil {
			return mapErr(err, "updating promotion level %d", id)
		}

		return s.emit(ctx, tx, events.TypePromotionLevelUpdated, sig, nil,
			entity.Ref{Kind: entity.KindPromotionLevel, ID: pl.ID})
	})
	if err != nil {
		return nil, err
	}

	return pl, nil
}

// DeletePromotionLevel removes a gate, unlinking its stamps first.
func (s *Service) DeletePromotionLevel(
	ctx context.Context, sig Signature, id uint,
) error {
	return s.store.Transaction(ctx, func(tx store.Store) error {
		pl, err := tx.GetPromotionLevel(ctx, id)
		if err != nil {
			return mapErr(err, "promotion level %d", id)
		}

		if err := tx.DeletePromotionLevel(ctx, id); err != nil {
			return mapErr(err, "deleting promotion level %d", id)
		}

		return s.emit(ctx, tx, events.TypePromotionLevelDeleted, sig,
			map[string]string{"name": pl.Name},
			entity.Ref{Kind: entity.KindBranch, ID: pl.BranchID})
	})
}

// MovePromotionLevel moves a gate one position up or down in its
// branch's sequence. It reports false when the gate is already at the
// boundary; that outcome is not an error.
func (s *Service) MovePromotionLevel(
	ctx context.Context, sig Signature, id uint, up bool,
) (bool, error) {
	var moved bool

	// Swap and emit share one transaction so a failed emit rolls the
	// reorder back.
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var err error

		moved, err = tx.SwapPromotionLevelOrder(ctx, id, up)
		if err != nil {
			return mapErr(err, "moving promotion level %d", id)
		}

		if !moved {
			return nil
		}

		return s.emit(ctx, tx, events.TypePromotionLevelUpdated, sig,
			map[string]string{"reordered": "true"},
			entity.Ref{Kind: entity.KindPromotionLevel, ID: id})
	})
	if err != nil {
		return false, err
	}

	return moved, nil
}

// --- Validation stamps ---

// CreateValidationStamp creates an unlinked stamp at the end of the
// branch's display sequence.
func (s *Service) CreateValidationStamp(
	ctx context.Context, sig Signature, branchID uint, name, description string,
) (*store.ValidationStamp, error) {
	if err := checkName("validation stamp", name); err != nil {
		return nil, err
	}

	vs := &store.ValidationStamp{BranchID: branchID, Name: name, Description: description}

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetBranch(ctx, branchID); err != nil {
			return mapErr(err, "branch %d", branchID)
		}

		if err := tx.CreateValidationStamp(ctx, vs); err != nil {
			return mapErr(err, "creating validation stamp %q", name)
		}

		return s.emit(ctx, tx, events.TypeValidationStampCreate, sig, nil,
			entity.Ref{Kind: entity.KindValidationStamp, ID: vs.ID})
	})
	if err != nil {
		return nil, err
	}

	return vs, nil
}

// GetValidationStamp returns a stamp by id.
func (s *Service) GetValidationStamp(
	ctx context.Context, id uint,
) (*store.ValidationStamp, error) {
	vs, err := s.store.GetValidationStamp(ctx, id)

	return vs, mapErr(err, "validation stamp %d", id)
}

// ListValidationStamps returns a branch's stamps in display order.
func (s *Service) ListValidationStamps(
	ctx context.Context, branchID uint,
) ([]store.ValidationStamp, error) {
	stamps, err := s.store.ListValidationStampsByBranch(ctx, branchID)

	return stamps, mapErr(err, "listing validation stamps of branch %d", branchID)
}

// UpdateValidationStamp renames or redescribes a stamp.
func (s *Service) UpdateValidationStamp(
	ctx context.Context, sig Signature, id uint, name, description string,
) (*store.ValidationStamp, error) {
	if err := checkName("validation stamp", name); err != nil {
		return nil, err
	}

	var vs *store.ValidationStamp

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var err error

		vs, err = tx.GetValidationStamp(ctx, id)
		if err != nil {
			return mapErr(err, "validation stamp %d", id)
		}

		vs.Name = name
		vs.Description = description

		if err := tx.UpdateValidationStamp(ctx, vs); err != nil {
			return mapErr(err, "updating validation stamp %d", id)
		}

		return s.emit(ctx, tx, events.TypeValidationStampUpdate, sig, nil,
			entity.Ref{Kind: entity.KindValidationStamp, ID: vs.ID})
	})
	if err != nil {
		return nil, err
	}

	return vs, nil
}

// DeleteValidationStamp removes a stamp.
func (s *Service) DeleteValidationStamp(
	ctx context.Context, sig Signature, id uint,
) error {
	return s.store.Transaction(ctx, func(tx store.Store) error {
		vs, err := tx.GetValidationStamp(ctx, id)
		if err != nil {
			return mapErr(err, "validation stamp %d", id)
		}

		if err := tx.DeleteValidationStamp(ctx, id); err != nil {
			return mapErr(err, "deleting validation stamp %d", id)
		}

		return s.emit(ctx, tx, events.TypeValidationStampDelete, sig,
			map[string]string{"name": vs.Name},
			entity.Ref{Kind: entity.KindBranch, ID: vs.BranchID})
	})
}

// LinkValidationStamp links a stamp to a promotion level of the same
// branch, making the stamp part of the level's auto-promotion criteria.
func (s *Service) LinkValidationStamp(
	ctx context.Context, sig Signature, stampID, promotionLevelID uint,
) error {
	return s.store.Transaction(ctx, func(tx store.Store) error {
		vs, err := tx.GetValidationStamp(ctx, stampID)
		if err != nil {
			return mapErr(err, "validation stamp %d", stampID)
		}

		pl, err := tx.GetPromotionLevel(ctx, promotionLevelID)
		if err != nil {
			return mapErr(err, "promotion level %d", promotionLevelID)
		}

		if vs.BranchID != pl.BranchID {
			return invalidStateErr(
				"validation stamp %d and promotion level %d belong to different branches",
				stampID, promotionLevelID,
			)
		}

		if err := tx.LinkValidationStamp(ctx, stampID, promotionLevelID); err != nil {
			return mapErr(err, "linking validation stamp %d", stampID)
		}

		return s.emit(ctx, tx, events.TypeValidationStampUpdate, sig,
			map[string]string{"linked_to": pl.Name},
			entity.Ref{Kind: entity.KindValidationStamp, ID: stampID})
	})
}

// UnlinkValidationStamp detaches a stamp from its promotion level. When
// the level loses its last stamp, its auto-promote flag is cleared so
// the evaluator cannot become vacuously true.
func (s *Service) UnlinkValidationStamp(
	ctx context.Context, sig Signature, stampID uint,
) error {
	return s.store.Transaction(ctx, func(tx store.Store) error {
		vs, err := tx.GetValidationStamp(ctx, stampID)
		if err != nil {
			return mapErr(err, "validation stamp %d", stampID)
		}

		if vs.PromotionLevelID == nil {
			return nil
		}

		levelID := *vs.PromotionLevelID

		if err := tx.UnlinkValidationStamp(ctx, stampID); err != nil {
			return mapErr(err, "unlinking validation stamp %d", stampID)
		}

		remaining, err := tx.ListValidationStampsByPromotionLevel(ctx, levelID)
		if err != nil {
			return mapErr(err, "listing stamps of promotion level %d", levelID)
		}

		if len(remaining) == 0 {
			if err := tx.SetPromotionLevelAutoPromote(ctx, levelID, false); err != nil {
				return mapErr(err, "clearing auto promote on level %d", levelID)
			}
		}

		return s.emit(ctx, tx, events.TypeValidationStampUpdate, sig,
			map[string]string{"unlinked": "true"},
			entity.Ref{Kind: entity.KindValidationStamp, ID: stampID})
	})
}

// SetValidationStampOwner assigns or clears the stamp's owner account.
func (s *Service) SetValidationStampOwner(
	ctx context.Context, sig Signature, stampID uint, ownerID *uint,
) error {
	return s.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetValidationStamp(ctx, stampID); err != nil {
			return mapErr(err, "validation stamp %d", stampID)
		}

		values := map[string]string{"owner": "none"}

		if ownerID != nil {
			owner, err := tx.GetAccountByID(ctx, *ownerID)
			if err != nil {
				return mapErr(err, "account %d", *ownerID)
			}

			values["owner"] = owner.Username
		}

		if err := tx.SetValidationStampOwner(ctx, stampID, ownerID); err != nil {
			return mapErr(err, "setting owner on stamp %d", stampID)
		}

		return s.emit(ctx, tx, events.TypeValidationStampUpdate, sig, values,
			entity.Ref{Kind: entity.KindValidationStamp, ID: stampID})
	})
}

// MoveValidationStamp moves a stamp one position up or down in its
// branch's display sequence.
func (s *Service) MoveValidationStamp(
	ctx context.Context, sig Signature, id uint, up bool,
) (bool, error) {
	var moved bool

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var err error

		moved, err = tx.SwapValidationStampOrder(ctx, id, up)
		if err != nil {
			return mapErr(err, "moving validation stamp %d", id)
		}

		if !moved {
			return nil
		}

		return s.emit(ctx, tx, events.TypeValidationStampUpdate, sig,
			map[string]string{"reordered": "true"},
			entity.Ref{Kind: entity.KindValidationStamp, ID: id})
	})
	if err != nil {
		return false, err
	}

	return moved, nil
}

// --- Comments ---

// CreateComment attaches an append-only comment to any entity.
func (s *Service) CreateComment(
	ctx context.Context, sig Signature, kind entity.Kind, entityID uint, content string,
) (*store.Comment, error) {
	if !entity.Valid(kind) {
		return nil, validationErr("unknown entity kind %q", kind)
	}

	if content == "" {
		return nil, validationErr("comment content is required")
	}

	c := &store.Comment{
		EntityKind: kind,
		EntityID:   entityID,
		Content:    content,
		Author:     sig.Name,
		AuthorID:   sig.AccountID,
	}

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateComment(ctx, c); err != nil {
			return mapErr(err, "creating comment")
		}

		// The event carries the comment text and a ref to the comment
		// itself on top of the commented entity's ancestor context.
		return s.emit(ctx, tx, events.TypeCommentCreated, sig,
			map[string]string{"comment": content},
			entity.Ref{Kind: kind, ID: entityID},
			entity.Ref{Kind: entity.KindComment, ID: c.ID})
	})
	if err != nil {
		return nil, err
	}

	return c, nil
}

// ListComments returns an entity's comments, newest first.
func (s *Service) ListComments(
	ctx context.Context, kind entity.Kind, entityID uint, offset, count int,
) ([]store.Comment, error) {
	comments, err := s.store.ListCommentsByEntity(ctx, kind, entityID, offset, count)

	return comments, mapErr(err, "listing comments for %s %d", kind, entityID)
}
