package tracker

import (
	"context"

	"github.com/ethpandaops/promotoor/pkg/api/store"
)

// StampState pairs a stamp with the latest status across all of its
// runs, for stamps that have run at least once.
type StampState struct {
	Stamp  store.ValidationStamp     `json:"stamp"`
	Status store.ValidationRunStatus `json:"status"`
}

// BranchSection partitions a branch's stamps by the outcome of their
// most recent run. The three buckets are mutually exclusive and cover
// the branch's whole stamp set.
type BranchSection struct {
	Branch   store.Branch            `json:"branch"`
	Passing  []StampState            `json:"passing"`
	Failing  []StampState            `json:"failing"`
	NeverRun []store.ValidationStamp `json:"never_run"`
}

// DashboardBranchSection classifies every stamp of a branch by its most
// recent run status: passing, failing (ran but latest status is not
// passing), or never run.
func (s *Service) DashboardBranchSection(
	ctx context.Context, branchID uint,
) (*BranchSection, error) {
	branch, err := s.store.GetBranch(ctx, branchID)
	if err != nil {
		return nil, mapErr(err, "branch %d", branchID)
	}

	stamps, err := s.store.ListValidationStampsByBranch(ctx, branchID)
	if err != nil {
		return nil, mapErr(err, "stamps of branch %d", branchID)
	}

	section := &BranchSection{
		Branch:   *branch,
		Passing:  []StampState{},
		Failing:  []StampState{},
		NeverRun: []store.ValidationStamp{},
	}

	for _, vs := range stamps {
		runs, err := s.store.LastRunsByStamp(ctx, vs.ID, 1)
		if err != nil {
			return nil, mapErr(err, "runs of stamp %d", vs.ID)
		}

		if len(runs) == 0 {
			section.NeverRun = append(section.NeverRun, vs)

			continue
		}

		status, err := s.store.LastStatusForRun(ctx, runs[0].ID)
		if err != nil {
			return nil, mapErr(err, "status for run %d", runs[0].ID)
		}

		state := StampState{Stamp: vs, Status: *status}

		if status.Status == store.StatusPassed {
			section.Passing = append(section.Passing, state)
		} else {
			section.Failing = append(section.Failing, state)
		}
	}

	return section, nil
}

// Dashboard builds branch sections for every branch of a project.
func (s *Service) Dashboard(
	ctx context.Context, projectID uint,
) ([]BranchSection, error) {
	branches, err := s.store.ListBranchesByProject(ctx, projectID)
	if err != nil {
		return nil, mapErr(err, "branches of project %d", projectID)
	}

	sections := make([]BranchSection, 0, len(branches))

	for _, b := range branches {
		section, err := s.DashboardBranchSection(ctx, b.ID)
		if err != nil {
			return nil, err
		}

		sections = append(sections, *section)
	}

	return sections, nil
}

// ProjectDashboard groups a project with its branch sections.
type ProjectDashboard struct {
	Project  store.Project   `json:"project"`
	Branches []BranchSection `json:"branches"`
}

// Overview builds the dashboard across every project.
func (s *Service) Overview(ctx context.Context) ([]ProjectDashboard, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, mapErr(err, "listing projects")
	}

	boards := make([]ProjectDashboard, 0, len(projects))

	for _, p := range projects {
		sections, err := s.Dashboard(ctx, p.ID)
		if err != nil {
			return nil, err
		}

		boards = append(boards, ProjectDashboard{Project: p, Branches: sections})
	}

	return boards, nil
}
