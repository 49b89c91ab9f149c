package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/promotoor/pkg/config"
	"github.com/ethpandaops/promotoor/pkg/entity"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("not found")

// BuildQuery filters a branch's build listing. Builds are always returned
// most recent first regardless of the filter combination.
type BuildQuery struct {
	// MaxBuildID caps the candidate set to builds with id <= MaxBuildID.
	MaxBuildID *uint
	// WithPromotionLevel keeps only builds promoted to the named level.
	WithPromotionLevel string
	// Limit bounds the result count.
	Limit int
}

// Store provides persistence for all tracked entities.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Transaction runs fn against a transaction-scoped Store. Multi-step
	// writes (promotion replacement, branch cloning, status creation plus
	// event emission) must go through here.
	Transaction(ctx context.Context, fn func(Store) error) error

	// Accounts.
	GetAccountByID(ctx context.Context, id uint) (*Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	SeedAccounts(ctx context.Context, accounts []config.SeedAccount) error

	// Projects.
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id uint) (*Project, error)
	GetProjectByName(ctx context.Context, name string) (*Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	UpdateProject(ctx context.Context, p *Project) error
	DeleteProject(ctx context.Context, id uint) error

	// Branches.
	CreateBranch(ctx context.Context, b *Branch) error
	GetBranch(ctx context.Context, id uint) (*Branch, error)
	GetBranchByName(ctx context.Context, projectID uint, name string) (*Branch, error)
	ListBranchesByProject(ctx context.Context, projectID uint) ([]Branch, error)
	UpdateBranch(ctx context.Context, b *Branch) error
	DeleteBranch(ctx context.Context, id uint) error

	// Promotion levels.
	CreatePromotionLevel(ctx context.Context, pl *PromotionLevel) error
	GetPromotionLevel(ctx context.Context, id uint) (*PromotionLevel, error)
	GetPromotionLevelByName(ctx context.Context, branchID uint, name string) (*PromotionLevel, error)
	ListPromotionLevelsByBranch(ctx context.Context, branchID uint) ([]PromotionLevel, error)
	ListPromotionLevelsByBuild(ctx context.Context, buildID uint) ([]PromotionLevel, error)
	UpdatePromotionLevel(ctx context.Context, pl *PromotionLevel) error
	DeletePromotionLevel(ctx context.Context, id uint) error
	SetPromotionLevelAutoPromote(ctx context.Context, id uint, autoPromote bool) error
	SwapPromotionLevelOrder(ctx context.Context, id uint, up bool) (bool, error)
	UpdatePromotionLevelImage(ctx context.Context, id uint, image []byte) error
	GetPromotionLevelImage(ctx context.Context, id uint) ([]byte, error)

	// Validation stamps.
	CreateValidationStamp(ctx context.Context, vs *ValidationStamp) error
	GetValidationStamp(ctx context.Context, id uint) (*ValidationStamp, error)
	ListValidationStampsByBranch(ctx context.Context, branchID uint) ([]ValidationStamp, error)
	ListValidationStampsByPromotionLevel(ctx context.Context, promotionLevelID uint) ([]ValidationStamp, error)
	ListUnlinkedValidationStamps(ctx context.Context, branchID uint) ([]ValidationStamp, error)
	UpdateValidationStamp(ctx context.Context, vs *ValidationStamp) error
	DeleteValidationStamp(ctx context.Context, id uint) error
	LinkValidationStamp(ctx context.Context, id, promotionLevelID uint) error
	UnlinkValidationStamp(ctx context.Context, id uint) error
	SetValidationStampOwner(ctx context.Context, id uint, ownerID *uint) error
	SwapValidationStampOrder(ctx context.Context, id uint, up bool) (bool, error)
	UpdateValidationStampImage(ctx context.Context, id uint, image []byte) error
	GetValidationStampImage(ctx context.Context, id uint) ([]byte, error)

	// Builds.
	CreateBuild(ctx context.Context, b *Build) error
	GetBuild(ctx context.Context, id uint) (*Build, error)
	FindBuildByName(ctx context.Context, branchID uint, name string) (*Build, error)
	ListBuildsByBranch(ctx context.Context, branchID uint, offset, count int) ([]Build, error)
	LastBuildByBranch(ctx context.Context, branchID uint) (*Build, error)
	QueryBuilds(ctx context.Context, branchID uint, q BuildQuery) ([]Build, error)
	LastBuildWithPromotionLevel(ctx context.Context, promotionLevelID uint) (*Build, error)
	LastBuildWithStampStatus(ctx context.Context, stampID uint, statuses []Status) (*Build, error)
	DeleteBuild(ctx context.Context, id uint) error

	// Validation runs and statuses.
	CreateValidationRun(ctx context.Context, vr *ValidationRun) error
	GetValidationRun(ctx context.Context, id uint) (*ValidationRun, error)
	ListValidationRuns(ctx context.Context, buildID, stampID uint) ([]ValidationRun, error)
	LastValidationRun(ctx context.Context, buildID, stampID uint) (*ValidationRun, error)
	LastRunsByStamp(ctx context.Context, stampID uint, count int) ([]ValidationRun, error)
	CreateValidationRunStatus(ctx context.Context, vrs *ValidationRunStatus) error
	LastStatusForRun(ctx context.Context, runID uint) (*ValidationRunStatus, error)
	ListStatusesForRun(ctx context.Context, runID uint, offset, count int) ([]ValidationRunStatus, error)
	ListStatusesForStamp(ctx context.Context, stampID uint, offset, count int) ([]ValidationRunStatus, error)

	// Promoted runs.
	ReplacePromotedRun(ctx context.Context, pr *PromotedRun) error
	GetPromotedRun(ctx context.Context, buildID, promotionLevelID uint) (*PromotedRun, error)
	ListPromotedRunsByLevel(ctx context.Context, promotionLevelID uint, offset, count int) ([]PromotedRun, error)
	ListPromotedRunsByBuild(ctx context.Context, buildID uint) ([]PromotedRun, error)
	EarliestPromotedBuildID(ctx context.Context, buildID, promotionLevelID uint) (*uint, error)
	DeletePromotedRun(ctx context.Context, buildID, promotionLevelID uint) error

	// Comments.
	CreateComment(ctx context.Context, c *Comment) error
	ListCommentsByEntity(ctx context.Context, kind entity.Kind, entityID uint, offset, count int) ([]Comment, error)

	// Extension properties.
	GetProperties(ctx context.Context, kind entity.Kind, entityID uint) ([]Property, error)
	SetProperty(ctx context.Context, p *Property) error
	SetProperties(ctx context.Context, props []Property) error

	// Events.
	CreateEvent(ctx context.Context, e *Event) error
	ListEventsByEntity(ctx context.Context, kind entity.Kind, entityID uint, offset, count int) ([]Event, error)
	ListEvents(ctx context.Context, offset, count int) ([]Event, error)

	// ParentID resolves the immediate parent of a child instance, per the
	// entity ancestor table. It returns (nil, nil) when the relation does
	// not apply to the instance (e.g. an unlinked validation stamp's
	// promotion level).
	ParentID(ctx context.Context, parent, child entity.Kind, childID uint) (*uint, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Account{},
		&Project{},
		&Branch{},
		&PromotionLevel{},
		&ValidationStamp{},
		&Build{},
		&ValidationRun{},
		&ValidationRunStatus{},
		&PromotedRun{},
		&Comment{},
		&Property{},
		&Event{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// Transaction runs fn inside a database transaction.
func (s *store) Transaction(
	ctx context.Context, fn func(Store) error,
) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&store{log: s.log, cfg: s.cfg, db: tx})
	})
}

// notFound maps gorm's record-not-found to the store sentinel.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}

	return err
}

// --- Accounts ---

func (s *store) GetAccountByID(
	ctx context.Context, id uint,
) (*Account, error) {
	var a Account
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, fmt.Errorf("getting account %d: %w", id, notFound(err))
	}

	return &a, nil
}

func (s *store) GetAccountByUsername(
	ctx context.Context, username string,
) (*Account, error) {
	var a Account
	if err := s.db.WithContext(ctx).
		Where("username = ?", username).
		First(&a).Error; err != nil {
		return nil, fmt.Errorf("getting account %q: %w", username, notFound(err))
	}

	return &a, nil
}

func (s *store) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	return accounts, nil
}

// SeedAccounts upserts config-sourced accounts. Only accounts with
// source="config" are updated; admin-created accounts are preserved.
func (s *store) SeedAccounts(
	ctx context.Context, accounts []config.SeedAccount,
) error {
	for _, a := range accounts {
		hash, err := bcrypt.GenerateFromPassword(
			[]byte(a.Password), bcrypt.DefaultCost,
		)
		if err != nil {
			return fmt.Errorf("hashing password for %q: %w", a.Username, err)
		}

		var existing Account

		result := s.db.WithContext(ctx).
			Where("username = ? AND source = ?", a.Username, SourceConfig).
			First(&existing)

		if result.Error == nil {
			existing.PasswordHash = string(hash)
			existing.Role = a.Role
			existing.FullName = a.FullName

			if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
				return fmt.Errorf("updating config account %q: %w", a.Username, err)
			}
		} else {
			account := Account{
				Username:     a.Username,
				FullName:     a.FullName,
				PasswordHash: string(hash),
				Role:         a.Role,
				Source:       SourceConfig,
			}

			if err := s.db.WithContext(ctx).
				Where("username = ?", a.Username).
				FirstOrCreate(&account).Error; err != nil {
				return fmt.Errorf("seeding config account %q: %w", a.Username, err)
			}
		}
	}

	if len(accounts) > 0 {
		s.log.WithField("count", len(accounts)).
			Info("Seeded accounts from config")
	}

	return nil
}

// --- Projects ---

func (s *store) CreateProject(ctx context.Context, p *Project) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("creating project: %w", err)
	}

	return nil
}

func (s *store) GetProject(ctx context.Context, id uint) (*Project, error) {
	var p Project
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, fmt.Errorf("getting project %d: %w", id, notFound(err))
	}

	return &p, nil
}

func (s *store) GetProjectByName(
	ctx context.Context, name string,
) (*Project, error) {
	var p Project
	if err := s.db.WithContext(ctx).
		Where("name = ?", name).
		First(&p).Error; err != nil {
		return nil, fmt.Errorf("getting project %q: %w", name, notFound(err))
	}

	return &p, nil
}

func (s *store) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := s.db.WithContext(ctx).
		Order("name ASC").
		Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	return projects, nil
}

func (s *store) UpdateProject(ctx context.Context, p *Project) error {
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("updating project %d: %w", p.ID, err)
	}

	return nil
}

func (s *store) DeleteProject(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).
		Delete(&Project{}, id).Error; err != nil {
		return fmt.Errorf("deleting project %d: %w", id, err)
	}

	return nil
}

// --- Branches ---

func (s *store) CreateBranch(ctx context.Context, b *Branch) error {
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("creating branch: %w", err)
	}

	return nil
}

func (s *store) GetBranch(ctx context.Context, id uint) (*Branch, error) {
	var b Branch
	if err := s.db.WithContext(ctx).First(&b, id).Error; err != nil {
		return nil, fmt.Errorf("getting branch %d: %w", id, notFound(err))
	}

	return &b, nil
}

func (s *store) GetBranchByName(
	ctx context.Context, projectID uint, name string,
) (*Branch, error) {
	var b Branch
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND name = ?", projectID, name).
		First(&b).Error; err != nil {
		return nil, fmt.Errorf("getting branch %q: %w", name, notFound(err))
	}

	return &b, nil
}

func (s *store) ListBranchesByProject(
	ctx context.Context, projectID uint,
) ([]Branch, error) {
	var branches []Branch
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("name ASC").
		Find(&branches).Error; err != nil {
		return nil, fmt.Errorf("listing branches for project %d: %w", projectID, err)
	}

	return branches, nil
}

func (s *store) UpdateBranch(ctx context.Context, b *Branch) error {
	if err := s.db.WithContext(ctx).Save(b).Error; err != nil {
		return fmt.Errorf("updating branch %d: %w", b.ID, err)
	}

	return nil
}

func (s *store) DeleteBranch(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).
		Delete(&Branch{}, id).Error; err != nil {
		return fmt.Errorf("deleting branch %d: %w", id, err)
	}

	return nil
}

// --- Promotion levels ---

// CreatePromotionLevel creates a level at the end of the branch's gate
// sequence unless a level number is already set.
func (s *store) CreatePromotionLevel(
	ctx context.Context, pl *PromotionLevel,
) error {
	if pl.LevelNb == 0 {
		var maxNb int
		if err := s.db.WithContext(ctx).
			Model(&PromotionLevel{}).
			Where("branch_id = ?", pl.BranchID).
			Select("COALESCE(MAX(level_nb), 0)").
			Scan(&maxNb).Error; err != nil {
			return fmt.Errorf("computing level number: %w", err)
		}

		pl.LevelNb = maxNb + 1
	}

	if err := s.db.WithContext(ctx).Create(pl).Error; err != nil {
		return fmt.Errorf("creating promotion level: %w", err)
	}

	return nil
}

func (s *store) GetPromotionLevel(
	ctx context.Context, id uint,
) (*PromotionLevel, error) {
	var pl PromotionLevel
	if err := s.db.WithContext(ctx).First(&pl, id).Error; err != nil {
		return nil, fmt.Errorf("getting promotion level %d: %w", id, notFound(err))
	}

	return &pl, nil
}

func (s *store) GetPromotionLevelByName(
	ctx context.Context, branchID uint, name string,
) (*PromotionLevel, error) {
	var pl PromotionLevel
	if err := s.db.WithContext(ctx).
		Where("branch_id = ? AND name = ?", branchID, name).
		First(&pl).Error; err != nil {
		return nil, fmt.Errorf("getting promotion level %q: %w", name, notFound(err))
	}

	return &pl, nil
}

// ListPromotionLevelsByBranch returns the branch's levels sorted by level
// number, creation order breaking ties.
func (s *store) ListPromotionLevelsByBranch(
	ctx context.Context, branchID uint,
) ([]PromotionLevel, error) {
	var levels []PromotionLevel
	if err := s.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Order("level_nb ASC, id ASC").
		Find(&levels).Error; err != nil {
		return nil, fmt.Errorf("listing promotion levels for branch %d: %w", branchID, err)
	}

	return levels, nil
}

// ListPromotionLevelsByBuild returns the levels the build was actually
// promoted to, from recorded promoted runs.
func (s *store) ListPromotionLevelsByBuild(
	ctx context.Context, buildID uint,
) ([]PromotionLevel, error) {
	var levels []PromotionLevel
	if err := s.db.WithContext(ctx).
		Model(&PromotionLevel{}).
		Joins("JOIN promoted_runs pr ON pr.promotion_level_id = promotion_levels.id").
		Where("pr.build_id = ?", buildID).
		Order("promotion_levels.level_nb ASC").
		Find(&levels).Error; err != nil {
		return nil, fmt.Errorf("listing promotion levels for build %d: %w", buildID, err)
	}

	return levels, nil
}

func (s *store) UpdatePromotionLevel(
	ctx context.Context, pl *PromotionLevel,
) error {
	if err := s.db.WithContext(ctx).Save(pl).Error; err != nil {
		return fmt.Errorf("updating promotion level %d: %w", pl.ID, err)
	}

	return nil
}

func (s *store) DeletePromotionLevel(ctx context.Context, id uint) error {
	return s.Transaction(ctx, func(tx Store) error {
		txs, ok := tx.(*store)
		if !ok {
			return fmt.Errorf("unexpected store type")
		}

		// Unlink stamps pointing at the level before removing it.
		if err := txs.db.WithContext(ctx).
			Model(&ValidationStamp{}).
			Where("promotion_level_id = ?", id).
			Update("promotion_level_id", nil).Error; err != nil {
			return fmt.Errorf("unlinking stamps of promotion level %d: %w", id, err)
		}

		if err := txs.db.WithContext(ctx).
			Delete(&PromotionLevel{}, id).Error; err != nil {
			return fmt.Errorf("deleting promotion level %d: %w", id, err)
		}

		return nil
	})
}

func (s *store) SetPromotionLevelAutoPromote(
	ctx context.Context, id uint, autoPromote bool,
) error {
	result := s.db.WithContext(ctx).
		Model(&PromotionLevel{}).
		Where("id = ?", id).
		Update("auto_promote", autoPromote)
	if result.Error != nil {
		return fmt.Errorf("setting auto promote on level %d: %w", id, result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("setting auto promote on level %d: %w", id, ErrNotFound)
	}

	return nil
}

// SwapPromotionLevelOrder moves a level one position up or down in the
// branch's gate sequence by swapping level numbers with its neighbour.
// It reports false when the level already sits at the boundary.
func (s *store) SwapPromotionLevelOrder(
	ctx context.Context, id uint, up bool,
) (bool, error) {
	moved := false

	err := s.Transaction(ctx, func(tx Store) error {
		txs := tx.(*store)

		pl, err := txs.GetPromotionLevel(ctx, id)
		if err != nil {
			return err
		}

		var neighbour PromotionLevel

		q := txs.db.WithContext(ctx).Where("branch_id = ?", pl.BranchID)
		if up {
			q = q.Where("level_nb < ?", pl.LevelNb).Order("level_nb DESC")
		} else {
			q = q.Where("level_nb > ?", pl.LevelNb).Order("level_nb ASC")
		}

		if err := q.First(&neighbour).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}

			return fmt.Errorf("finding neighbour level: %w", err)
		}

		pl.LevelNb, neighbour.LevelNb = neighbour.LevelNb, pl.LevelNb

		if err := txs.db.WithContext(ctx).Save(pl).Error; err != nil {
			return fmt.Errorf("saving level %d: %w", pl.ID, err)
		}

		if err := txs.db.WithContext(ctx).Save(&neighbour).Error; err != nil {
			return fmt.Errorf("saving level %d: %w", neighbour.ID, err)
		}

		moved = true

		return nil
	})

	return moved, err
}

func (s *store) UpdatePromotionLevelImage(
	ctx context.Context, id uint, image []byte,
) error {
	result := s.db.WithContext(ctx).
		Model(&PromotionLevel{}).
		Where("id = ?", id).
		Update("image", image)
	if result.Error != nil {
		return fmt.Errorf("updating promotion level %d image: %w", id, result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("updating promotion level %d image: %w", id, ErrNotFound)
	}

	return nil
}

func (s *store) GetPromotionLevelImage(
	ctx context.Context, id uint,
) ([]byte, error) {
	pl, err := s.GetPromotionLevel(ctx, id)
	if err != nil {
		return nil, err
	}

	return pl.Image, nil
}

// --- Validation stamps ---

// CreateValidationStamp creates a stamp at the end of the branch's display
// sequence unless an order number is already set.
func (s *store) CreateValidationStamp(
	ctx context.Context, vs *ValidationStamp,
) error {
	if vs.OrderNb == 0 {
		var maxNb int
		if err := s.db.WithContext(ctx).
			Model(&ValidationStamp{}).
			Where("branch_id = ?", vs.BranchID).
			Select("COALESCE(MAX(order_nb), 0)").
			Scan(&maxNb).Error; err != nil {
			return fmt.Errorf("computing order number: %w", err)
		}

		vs.OrderNb = maxNb + 1
	}

	if err := s.db.WithContext(ctx).Create(vs).Error; err != nil {
		return fmt.Errorf("creating validation stamp: %w", err)
	}

	return nil
}

func (s *store) GetValidationStamp(
	ctx context.Context, id uint,
) (*ValidationStamp, error) {
	var vs ValidationStamp
	if err := s.db.WithContext(ctx).First(&vs, id).Error; err != nil {
		return nil, fmt.Errorf("getting validation stamp %d: %w", id, notFound(err))
	}

	return &vs, nil
}

func (s *store) ListValidationStampsByBranch(
	ctx context.Context, branchID uint,
) ([]ValidationStamp, error) {
	var stamps []ValidationStamp
	if err := s.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Order("order_nb ASC, id ASC").
		Find(&stamps).Error; err != nil {
		return nil, fmt.Errorf("listing validation stamps for branch %d: %w", branchID, err)
	}

	return stamps, nil
}

func (s *store) ListValidationStampsByPromotionLevel(
	ctx context.Context, promotionLevelID uint,
) ([]ValidationStamp, error) {
	var stamps []ValidationStamp
	if err := s.db.WithContext(ctx).
		Where("promotion_level_id = ?", promotionLevelID).
		Order("order_nb ASC, id ASC").
		Find(&stamps).Error; err != nil {
		return nil, fmt.Errorf("listing validation stamps for level %d: %w", promotionLevelID, err)
	}

	return stamps, nil
}

func (s *store) ListUnlinkedValidationStamps(
	ctx context.Context, branchID uint,
) ([]ValidationStamp, error) {
	var stamps []ValidationStamp
	if err := s.db.WithContext(ctx).
		Where("branch_id = ? AND promotion_level_id IS NULL", branchID).
		Order("order_nb ASC, id ASC").
		Find(&stamps).Error; err != nil {
		return nil, fmt.Errorf("listing unlinked stamps for branch %d: %w", branchID, err)
	}

	return stamps, nil
}

func (s *store) UpdateValidationStamp(
	ctx context.Context, vs *ValidationStamp,
) error {
	if err := s.db.WithContext(ctx).Save(vs).Error; err != nil {
		return fmt.Errorf("updating validation stamp %d: %w", vs.ID, err)
	}

	return nil
}

func (s *store) DeleteValidationStamp(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).
		Delete(&ValidationStamp{}, id).Error; err != nil {
		return fmt.Errorf("deleting validation stamp %d: %w", id, err)
	}

	return nil
}

func (s *store) LinkValidationStamp(
	ctx context.Context, id, promotionLevelID uint,
) error {
	result := s.db.WithContext(ctx).
		Model(&ValidationStamp{}).
		Where("id = ?", id).
		Update("promotion_level_id", promotionLevelID)
	if result.Error != nil {
		return fmt.Errorf("linking validation stamp %d: %w", id, result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("linking validation stamp %d: %w", id, ErrNotFound)
	}

	return nil
}

func (s *store) UnlinkValidationStamp(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).
		Model(&ValidationStamp{}).
		Where("id = ?", id).
		Update("promotion_level_id", nil)
	if result.Error != nil {
		return fmt.Errorf("unlinking validation stamp %d: %w", id, result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("unlinking validation stamp %d: %w", id, ErrNotFound)
	}

	return nil
}

func (s *store) SetValidationStampOwner(
	ctx context.Context, id uint, ownerID *uint,
) error {
	result := s.db.WithContext(ctx).
		Model(&ValidationStamp{}).
		Where("id = ?", id).
		Update("owner_id", ownerID)
	if result.Error != nil {
		return fmt.Errorf("setting owner on stamp %d: %w", id, result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("setting owner on stamp %d: %w", id, ErrNotFound)
	}

	return nil
}

// SwapValidationStampOrder moves a stamp one position up or down in the
// branch's display sequence. It reports false at the boundary.
func (s *store) SwapValidationStampOrder(
	ctx context.Context, id uint, up bool,
) (bool, error) {
	moved := false

	err := s.Transaction(ctx, func(tx Store) error {
		txs := tx.(*store)

		vs, err := txs.GetValidationStamp(ctx, id)
		if err != nil {
			return err
		}

		var neighbour ValidationStamp

		q := txs.db.WithContext(ctx).Where("branch_id = ?", vs.BranchID)
		if up {
			q = q.Where("order_nb < ?", vs.OrderNb).Order("order_nb DESC")
		} else {
			q = q.Where("order_nb > ?", vs.OrderNb).Order("order_nb ASC")
		}

		if err := q.First(&neighbour).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}

			return fmt.Errorf("finding neighbour stamp: %w", err)
		}

		vs.OrderNb, neighbour.OrderNb = neighbour.OrderNb, vs.OrderNb

		if err := txs.db.WithContext(ctx).Save(vs).Error; err != nil {
			return fmt.Errorf("saving stamp %d: %w", vs.ID, err)
		}

		if err := txs.db.WithContext(ctx).Save(&neighbour).Error; err != nil {
			return fmt.Errorf("saving stamp %d: %w", neighbour.ID, err)
		}

		moved = true

		return nil
	})

	return moved, err
}

func (s *store) UpdateValidationStampImage(
	ctx context.Context, id uint, image []byte,
) error {
	result := s.db.WithContext(ctx).
		Model(&ValidationStamp{}).
		Where("id = ?", id).
		Update("image", image)
	if result.Error != nil {
		return fmt.Errorf("updating validation stamp %d image: %w", id, result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("updating validation stamp %d image: %w", id, ErrNotFound)
	}

	return nil
}

func (s *store) GetValidationStampImage(
	ctx context.Context, id uint,
) ([]byte, error) {
	vs, err := s.GetValidationStamp(ctx, id)
	if err != nil {
		return nil, err
	}

	return vs.Image, nil
}

// --- Builds ---

func (s *store) CreateBuild(ctx context.Context, b *Build) error {
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("creating build: %w", err)
	}

	return nil
}

func (s *store) GetBuild(ctx context.Context, id uint) (*Build, error) {
	var b Build
	if err := s.db.WithContext(ctx).First(&b, id).Error; err != nil {
		return nil, fmt.Errorf("getting build %d: %w", id, notFound(err))
	}

	return &b, nil
}

func (s *store) FindBuildByName(
	ctx context.Context, branchID uint, name string,
) (*Build, error) {
	var b Build
	if err := s.db.WithContext(ctx).
		Where("branch_id = ? AND name = ?", branchID, name).
		Order("id DESC").
		First(&b).Error; err != nil {
		return nil, fmt.Errorf("finding build %q: %w", name, notFound(err))
	}

	return &b, nil
}

func (s *store) ListBuildsByBranch(
	ctx context.Context, branchID uint, offset, count int,
) ([]Build, error) {
	var builds []Build
	if err := s.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Order("id DESC").
		Offset(offset).
		Limit(count).
		Find(&builds).Error; err != nil {
		return nil, fmt.Errorf("listing builds for branch %d: %w", branchID, err)
	}

	return builds, nil
}

func (s *store) LastBuildByBranch(
	ctx context.Context, branchID uint,
) (*Build, error) {
	var b Build
	if err := s.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Order("id DESC").
		First(&b).Error; err != nil {
		return nil, fmt.Errorf("getting last build of branch %d: %w", branchID, notFound(err))
	}

	return &b, nil
}

// QueryBuilds applies the filter to the branch's builds. Ordering is
// always id descending.
func (s *store) QueryBuilds(
	ctx context.Context, branchID uint, q BuildQuery,
) ([]Build, error) {
	db := s.db.WithContext(ctx).
		Model(&Build{}).
		Where("builds.branch_id = ?", branchID)

	if q.MaxBuildID != nil {
		db = db.Where("builds.id <= ?", *q.MaxBuildID)
	}

	if q.WithPromotionLevel != "" {
		db = db.
			Joins("JOIN promoted_runs pr ON pr.build_id = builds.id").
			Joins("JOIN promotion_levels pl ON pl.id = pr.promotion_level_id").
			Where("pl.name = ?", q.WithPromotionLevel)
	}

	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}

	var builds []Build
	if err := db.Order("builds.id DESC").Find(&builds).Error; err != nil {
		return nil, fmt.Errorf("querying builds for branch %d: %w", branchID, err)
	}

	return builds, nil
}

func (s *store) LastBuildWithPromotionLevel(
	ctx context.Context, promotionLevelID uint,
) (*Build, error) {
	var b Build
	if err := s.db.WithContext(ctx).
		Model(&Build{}).
		Joins("JOIN promoted_runs pr ON pr.build_id = builds.id").
		Where("pr.promotion_level_id = ?", promotionLevelID).
		Order("builds.id DESC").
		First(&b).Error; err != nil {
		return nil, fmt.Errorf(
			"getting last build with promotion level %d: %w",
			promotionLevelID, notFound(err),
		)
	}

	return &b, nil
}

// LastBuildWithStampStatus returns the most recent build whose latest run
// status for the stamp is one of the given statuses.
func (s *store) LastBuildWithStampStatus(
	ctx context.Context, stampID uint, statuses []Status,
) (*Build, error) {
	if len(statuses) == 0 {
		return nil, fmt.Errorf("getting last build for stamp %d: %w", stampID, ErrNotFound)
	}

	var b Build
	if err := s.db.WithContext(ctx).
		Model(&Build{}).
		Joins("JOIN validation_runs vr ON vr.build_id = builds.id AND vr.validation_stamp_id = ?", stampID).
		Joins("JOIN validation_run_statuses vrs ON vrs.validation_run_id = vr.id").
		Where("vrs.id = (SELECT MAX(id) FROM validation_run_statuses WHERE validation_run_id = vr.id)").
		Where("vrs.status IN ?", statuses).
		Order("builds.id DESC").
		First(&b).Error; err != nil {
		return nil, fmt.Errorf(
			"getting last build for stamp %d: %w", stampID, notFound(err),
		)
	}

	return &b, nil
}

func (s *store) DeleteBuild(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).
		Delete(&Build{}, id).Error; err != nil {
		return fmt.Errorf("deleting build %d: %w", id, err)
	}

	return nil
}

// --- Validation runs and statuses ---

// CreateValidationRun assigns the next run order for the (build, stamp)
// pair. Callers are expected to run inside a transaction when pairing the
// run with its initial status.
func (s *store) CreateValidationRun(
	ctx context.Context, vr *ValidationRun,
) error {
	if vr.RunOrder == 0 {
		var maxOrder int
		if err := s.db.WithContext(ctx).
			Model(&ValidationRun{}).
			Where("build_id = ? AND validation_stamp_id = ?", vr.BuildID, vr.ValidationStampID).
			Select("COALESCE(MAX(run_order), 0)").
			Scan(&maxOrder).Error; err != nil {
			return fmt.Errorf("computing run order: %w", err)
		}

		vr.RunOrder = maxOrder + 1
	}

	if err := s.db.WithContext(ctx).Create(vr).Error; err != nil {
		return fmt.Errorf("creating validation run: %w", err)
	}

	return nil
}

func (s *store) GetValidationRun(
	ctx context.Context, id uint,
) (*ValidationRun, error) {
	var vr ValidationRun
	if err := s.db.WithContext(ctx).First(&vr, id).Error; err != nil {
		return nil, fmt.Errorf("getting validation run %d: %w", id, notFound(err))
	}

	return &vr, nil
}

func (s *store) ListValidationRuns(
	ctx context.Context, buildID, stampID uint,
) ([]ValidationRun, error) {
	var runs []ValidationRun

	q := s.db.WithContext(ctx).Where("build_id = ?", buildID)

	// Stamp id zero lists the build's runs across all stamps.
	if stampID != 0 {
		q = q.Where("validation_stamp_id = ?", stampID)
	}

	if err := q.Order("run_order ASC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf(
			"listing runs for build %d stamp %d: %w", buildID, stampID, err,
		)
	}

	return runs, nil
}

func (s *store) LastValidationRun(
	ctx context.Context, buildID, stampID uint,
) (*ValidationRun, error) {
	var vr ValidationRun
	if err := s.db.WithContext(ctx).
		Where("build_id = ? AND validation_stamp_id = ?", buildID, stampID).
		Order("run_order DESC").
		First(&vr).Error; err != nil {
		return nil, fmt.Errorf(
			"getting last run for build %d stamp %d: %w",
			buildID, stampID, notFound(err),
		)
	}

	return &vr, nil
}

// LastRunsByStamp returns the most recent runs for a stamp across all
// builds, newest first.
func (s *store) LastRunsByStamp(
	ctx context.Context, stampID uint, count int,
) ([]ValidationRun, error) {
	var runs []ValidationRun
	if err := s.db.WithContext(ctx).
		Where("validation_stamp_id = ?", stampID).
		Order("id DESC").
		Limit(count).
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing last runs for stamp %d: %w", stampID, err)
	}

	return runs, nil
}

func (s *store) CreateValidationRunStatus(
	ctx context.Context, vrs *ValidationRunStatus,
) error {
	if err := s.db.WithContext(ctx).Create(vrs).Error; err != nil {
		return fmt.Errorf("creating validation run status: %w", err)
	}

	return nil
}

func (s *store) LastStatusForRun(
	ctx context.Context, runID uint,
) (*ValidationRunStatus, error) {
	var vrs ValidationRunStatus
	if err := s.db.WithContext(ctx).
		Where("validation_run_id = ?", runID).
		Order("id DESC").
		First(&vrs).Error; err != nil {
		return nil, fmt.Errorf(
			"getting last status for run %d: %w", runID, notFound(err),
		)
	}

	return &vrs, nil
}

func (s *store) ListStatusesForRun(
	ctx context.Context, runID uint, offset, count int,
) ([]ValidationRunStatus, error) {
	var statuses []ValidationRunStatus
	if err := s.db.WithContext(ctx).
		Where("validation_run_id = ?", runID).
		Order("id DESC").
		Offset(offset).
		Limit(count).
		Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("listing statuses for run %d: %w", runID, err)
	}

	return statuses, nil
}

// ListStatusesForStamp returns status records across all runs of a stamp,
// newest first.
func (s *store) ListStatusesForStamp(
	ctx context.Context, stampID uint, offset, count int,
) ([]ValidationRunStatus, error) {
	var statuses []ValidationRunStatus
	if err := s.db.WithContext(ctx).
		Model(&ValidationRunStatus{}).
		Joins("JOIN validation_runs vr ON vr.id = validation_run_statuses.validation_run_id").
		Where("vr.validation_stamp_id = ?", stampID).
		Order("validation_run_statuses.id DESC").
		Offset(offset).
		Limit(count).
		Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("listing statuses for stamp %d: %w", stampID, err)
	}

	return statuses, nil
}

// --- Promoted runs ---

// ReplacePromotedRun records a promotion for the (build, level) pair,
// replacing any prior record. A single upsert against the unique index
// on the pair leaves no window where neither row exists.
func (s *store) ReplacePromotedRun(
	ctx context.Context, pr *PromotedRun,
) error {
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "build_id"}, {Name: "promotion_level_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"description", "author", "author_id", "created_at",
			}),
		}).
		Create(pr).Error; err != nil {
		return fmt.Errorf("recording promoted run: %w", err)
	}

	return nil
}

func (s *store) GetPromotedRun(
	ctx context.Context, buildID, promotionLevelID uint,
) (*PromotedRun, error) {
	var pr PromotedRun
	if err := s.db.WithContext(ctx).
		Where("build_id = ? AND promotion_level_id = ?", buildID, promotionLevelID).
		First(&pr).Error; err != nil {
		return nil, fmt.Errorf(
			"getting promoted run for build %d level %d: %w",
			buildID, promotionLevelID, notFound(err),
		)
	}

	return &pr, nil
}

func (s *store) ListPromotedRunsByLevel(
	ctx context.Context, promotionLevelID uint, offset, count int,
) ([]PromotedRun, error) {
	var runs []PromotedRun
	if err := s.db.WithContext(ctx).
		Where("promotion_level_id = ?", promotionLevelID).
		Order("build_id DESC").
		Offset(offset).
		Limit(count).
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf(
			"listing promoted runs for level %d: %w", promotionLevelID, err,
		)
	}

	return runs, nil
}

func (s *store) ListPromotedRunsByBuild(
	ctx context.Context, buildID uint,
) ([]PromotedRun, error) {
	var runs []PromotedRun
	if err := s.db.WithContext(ctx).
		Where("build_id = ?", buildID).
		Order("id ASC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing promoted runs for build %d: %w", buildID, err)
	}

	return runs, nil
}

// EarliestPromotedBuildID returns the lowest build id <= buildID that
// carries a promotion for the level, or nil when none does. Build ids are
// used as a time proxy, matching the build-listing semantics.
func (s *store) EarliestPromotedBuildID(
	ctx context.Context, buildID, promotionLevelID uint,
) (*uint, error) {
	var id *uint
	if err := s.db.WithContext(ctx).
		Model(&PromotedRun{}).
		Where("promotion_level_id = ? AND build_id <= ?", promotionLevelID, buildID).
		Select("MIN(build_id)").
		Scan(&id).Error; err != nil {
		return nil, fmt.Errorf(
			"getting earliest promotion for build %d level %d: %w",
			buildID, promotionLevelID, err,
		)
	}

	return id, nil
}

func (s *store) DeletePromotedRun(
	ctx context.Context, buildID, promotionLevelID uint,
) error {
	if err := s.db.WithContext(ctx).
		Where("build_id = ? AND promotion_level_id = ?", buildID, promotionLevelID).
		Delete(&PromotedRun{}).Error; err != nil {
		return fmt.Errorf(
			"deleting promoted run for build %d level %d: %w",
			buildID, promotionLevelID, err,
		)
	}

	return nil
}

// --- Comments ---

func (s *store) CreateComment(ctx context.Context, c *Comment) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("creating comment: %w", err)
	}

	return nil
}

func (s *store) ListCommentsByEntity(
	ctx context.Context, kind entity.Kind, entityID uint, offset, count int,
) ([]Comment, error) {
	var comments []Comment
	if err := s.db.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ?", kind, entityID).
		Order("id DESC").
		Offset(offset).
		Limit(count).
		Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("listing comments for %s %d: %w", kind, entityID, err)
	}

	return comments, nil
}

// --- Extension properties ---

func (s *store) GetProperties(
	ctx context.Context, kind entity.Kind, entityID uint,
) ([]Property, error) {
	var props []Property
	if err := s.db.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ?", kind, entityID).
		Order("extension ASC, name ASC").
		Find(&props).Error; err != nil {
		return nil, fmt.Errorf("listing properties for %s %d: %w", kind, entityID, err)
	}

	return props, nil
}

func (s *store) SetProperty(ctx context.Context, p *Property) error {
	result := s.db.WithContext(ctx).
		Where(
			"entity_kind = ? AND entity_id = ? AND extension = ? AND name = ?",
			p.EntityKind, p.EntityID, p.Extension, p.Name,
		).
		Assign(Property{Value: p.Value}).
		FirstOrCreate(p)
	if result.Error != nil {
		return fmt.Errorf("setting property %s/%s: %w", p.Extension, p.Name, result.Error)
	}

	return nil
}

func (s *store) SetProperties(ctx context.Context, props []Property) error {
	for i := range props {
		if err := s.SetProperty(ctx, &props[i]); err != nil {
			return err
		}
	}

	return nil
}

// --- Events ---

func (s *store) CreateEvent(ctx context.Context, e *Event) error {
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("creating event: %w", err)
	}

	return nil
}

func (s *store) ListEventsByEntity(
	ctx context.Context, kind entity.Kind, entityID uint, offset, count int,
) ([]Event, error) {
	column, ok := eventRefColumns[kind]
	if !ok {
		return nil, fmt.Errorf("listing events: unknown entity kind %q", kind)
	}

	var events []Event
	if err := s.db.WithContext(ctx).
		Where(column+" = ?", entityID).
		Order("id DESC").
		Offset(offset).
		Limit(count).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("listing events for %s %d: %w", kind, entityID, err)
	}

	return events, nil
}

func (s *store) ListEvents(
	ctx context.Context, offset, count int,
) ([]Event, error) {
	var events []Event
	if err := s.db.WithContext(ctx).
		Order("id DESC").
		Offset(offset).
		Limit(count).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	return events, nil
}

// eventRefColumns maps entity kinds to the event table's reference
// columns.
var eventRefColumns = map[entity.Kind]string{
	entity.KindProject:             "project_id",
	entity.KindBranch:              "branch_id",
	entity.KindPromotionLevel:      "promotion_level_id",
	entity.KindValidationStamp:     "validation_stamp_id",
	entity.KindBuild:               "build_id",
	entity.KindValidationRun:       "validation_run_id",
	entity.KindValidationRunStatus: "validation_run_status_id",
	entity.KindPromotedRun:         "promoted_run_id",
	entity.KindComment:             "comment_id",
}

// --- Parent resolution ---

// ParentID resolves the immediate parent id of a child instance for the
// given parent kind. A nil id with nil error means the relation does not
// apply to this instance.
func (s *store) ParentID(
	ctx context.Context, parent, child entity.Kind, childID uint,
) (*uint, error) {
	switch {
	case child == entity.KindBranch && parent == entity.KindProject:
		b, err := s.GetBranch(ctx, childID)
		if err != nil {
			return nil, err
		}

		return &b.ProjectID, nil

	case child == entity.KindPromotionLevel && parent == entity.KindBranch:
		pl, err := s.GetPromotionLevel(ctx, childID)
		if err != nil {
			return nil, err
		}

		return &pl.BranchID, nil

	case child == entity.KindValidationStamp && parent == entity.KindBranch:
		vs, err := s.GetValidationStamp(ctx, childID)
		if err != nil {
			return nil, err
		}

		return &vs.BranchID, nil

	case child == entity.KindValidationStamp && parent == entity.KindPromotionLevel:
		vs, err := s.GetValidationStamp(ctx, childID)
		if err != nil {
			return nil, err
		}

		return vs.PromotionLevelID, nil

	case child == entity.KindBuild && parent == entity.KindBranch:
		b, err := s.GetBuild(ctx, childID)
		if err != nil {
			return nil, err
		}

		return &b.BranchID, nil

	case child == entity.KindValidationRun && parent == entity.KindValidationStamp:
		vr, err := s.GetValidationRun(ctx, childID)
		if err != nil {
			return nil, err
		}

		return &vr.ValidationStampID, nil

	case child == entity.KindValidationRun && parent == entity.KindBuild:
		vr, err := s.GetValidationRun(ctx, childID)
		if err != nil {
			return nil, err
		}

		return &vr.BuildID, nil

	case child == entity.KindValidationRunStatus && parent == entity.KindValidationRun:
		var vrs ValidationRunStatus
		if err := s.db.WithContext(ctx).First(&vrs, childID).Error; err != nil {
			return nil, fmt.Errorf("getting run status %d: %w", childID, notFound(err))
		}

		return &vrs.ValidationRunID, nil

	case child == entity.KindPromotedRun && parent == entity.KindPromotionLevel:
		var pr PromotedRun
		if err := s.db.WithContext(ctx).First(&pr, childID).Error; err != nil {
			return nil, fmt.Errorf("getting promoted run %d: %w", childID, notFound(err))
		}

		return &pr.PromotionLevelID, nil

	case child == entity.KindPromotedRun && parent == entity.KindBuild:
		var pr PromotedRun
		if err := s.db.WithContext(ctx).First(&pr, childID).Error; err != nil {
			return nil, fmt.Errorf("getting promoted run %d: %w", childID, notFound(err))
		}

		return &pr.BuildID, nil

	default:
		return nil, nil
	}
}
