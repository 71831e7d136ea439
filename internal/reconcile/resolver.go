package reconcile

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Tiliavir/toggl-jira-sync/internal/model"
)

// SkipReason says why a time entry was not turned into a work log.
type SkipReason string

const (
	SkipNoDescription       SkipReason = "no_description"
	SkipNoProject           SkipReason = "no_project"
	SkipRunning             SkipReason = "running"
	SkipZeroDuration        SkipReason = "zero_duration"
	SkipProjectsUnavailable SkipReason = "projects_unavailable"
	SkipUnknownProject      SkipReason = "unknown_project"
	SkipNoIssueKey          SkipReason = "no_issue_key"
)

// issueKeySeparator must appear in a project name for it to count as an issue key.
const issueKeySeparator = "-"

// ProjectSource lists the projects of a Toggl workspace.
type ProjectSource interface {
	Projects(ctx context.Context, workspaceID int64) ([]model.Project, error)
}

// Resolver maps time entries to Jira issue keys through the name of their
// Toggl project. It caches each workspace's project list for its own
// lifetime; create one per run.
type Resolver struct {
	projects ProjectSource
	cache    map[int64][]model.Project
	logger   zerolog.Logger
}

// NewResolver returns a Resolver with an empty project cache.
func NewResolver(projects ProjectSource, logger zerolog.Logger) *Resolver {
	return &Resolver{
		projects: projects,
		cache:    map[int64][]model.Project{},
		logger:   logger,
	}
}

// Resolve returns the issue key for te, or the reason it has to be skipped.
// Skips are logged here and never fatal.
func (r *Resolver) Resolve(ctx context.Context, te model.TimeEntry) (string, SkipReason) {
	log := r.logger.With().
		Int64("entry_id", te.ID).
		Str("start", te.Start.Format("2006-01-02 15:04")).
		Logger()

	if te.Description == nil || strings.TrimSpace(*te.Description) == "" {
		log.Error().Msg("missing description information, skipping")
		return "", SkipNoDescription
	}
	log = log.With().Str("description", *te.Description).Logger()

	if te.ProjectID == nil {
		log.Error().Msg("missing project, skipping")
		return "", SkipNoProject
	}
	if te.Duration < 0 {
		log.Info().Msg("timer still running, skipping")
		return "", SkipRunning
	}
	if te.Duration == 0 {
		log.Info().Msg("0 seconds, skipping")
		return "", SkipZeroDuration
	}

	projects, err := r.workspaceProjects(ctx, te.WorkspaceID)
	if err != nil {
		log.Error().Err(err).Int64("workspace_id", te.WorkspaceID).Msg("failed to get projects from toggl, skipping")
		return "", SkipProjectsUnavailable
	}

	for _, p := range projects {
		if p.ID != *te.ProjectID {
			continue
		}
		if !strings.Contains(p.Name, issueKeySeparator) {
			log.Warn().Str("project", p.Name).Msg("could not parse issue key from project name, cannot link to jira")
			return "", SkipNoIssueKey
		}
		return strings.TrimSpace(p.Name), ""
	}

	log.Warn().Int64("project_id", *te.ProjectID).Msg("project not found in workspace, cannot link to jira")
	return "", SkipUnknownProject
}

// workspaceProjects returns the cached project list, fetching it on first
// use. Failed fetches are not cached.
func (r *Resolver) workspaceProjects(ctx context.Context, workspaceID int64) ([]model.Project, error) {
	if projects, ok := r.cache[workspaceID]; ok {
		return projects, nil
	}
	projects, err := r.projects.Projects(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	r.cache[workspaceID] = projects
	return projects, nil
}
