package store

import (
	"context"

	"github.com/drewmudry/remixengine-api/models"
)

func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "project "+id)
	}
	return &p, nil
}

// ListProjects returns every project with its video count filled in.
func (s *Store) ListProjects(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	if err := s.db.WithContext(ctx).Order("created_at desc").Find(&projects).Error; err != nil {
		return nil, err
	}

	var counts []struct {
		ProjectID string
		Count     int
	}
	err := s.db.WithContext(ctx).Model(&models.Video{}).
		Select("project_id, count(*) as count").
		Group("project_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	byProject := make(map[string]int, len(counts))
	for _, c := range counts {
		byProject[c.ProjectID] = c.Count
	}
	for i := range projects {
		projects[i].VideoCount = byProject[projects[i].ID]
	}
	return projects, nil
}
