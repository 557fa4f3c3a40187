package store

import (
	"context"
	"fmt"

	"github.com/drewmudry/remixengine-api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReplaceTitles deletes the video's previous title batch and inserts the new one, unselected.
func (s *Store) ReplaceTitles(ctx context.Context, videoID string, titles []models.RemixedTitle) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", videoID).Delete(&models.RemixedTitle{}).Error; err != nil {
			return fmt.Errorf("delete titles: %w", err)
		}
		for i := range titles {
			titles[i].VideoID = videoID
			titles[i].IsSelected = false
		}
		if len(titles) == 0 {
			return nil
		}
		if err := tx.Create(&titles).Error; err != nil {
			return fmt.Errorf("insert titles: %w", err)
		}
		return nil
	})
}

// ReplaceThumbnail swaps the row for the thumbnail's style; other styles are untouched.
func (s *Store) ReplaceThumbnail(ctx context.Context, thumb *models.RemixedThumbnail) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("video_id = ? AND style = ?", thumb.VideoID, thumb.Style).
			Delete(&models.RemixedThumbnail{}).Error
		if err != nil {
			return fmt.Errorf("delete thumbnail: %w", err)
		}
		thumb.IsSelected = false
		if err := tx.Create(thumb).Error; err != nil {
			return fmt.Errorf("insert thumbnail: %w", err)
		}
		return nil
	})
}

// ReplaceScript removes every script of the video (scenes first), inserts the new
// script and then its scenes one at a time in order.
func (s *Store) ReplaceScript(ctx context.Context, script *models.RemixedScript, scenes []models.Scene) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old := tx.Model(&models.RemixedScript{}).Select("id").Where("video_id = ?", script.VideoID)
		if err := tx.Where("script_id IN (?)", old).Delete(&models.Scene{}).Error; err != nil {
			return fmt.Errorf("delete scenes: %w", err)
		}
		if err := tx.Where("video_id = ?", script.VideoID).Delete(&models.RemixedScript{}).Error; err != nil {
			return fmt.Errorf("delete scripts: %w", err)
		}

		script.IsSelected = false
		if err := tx.Omit(clause.Associations).Create(script).Error; err != nil {
			return fmt.Errorf("insert script: %w", err)
		}

		for i := range scenes {
			scenes[i].ScriptID = script.ID
			if err := tx.Create(&scenes[i]).Error; err != nil {
				return fmt.Errorf("insert scene %d: %w", scenes[i].SceneNumber, err)
			}
		}
		script.Scenes = scenes
		return nil
	})
}

func (s *Store) ListTitles(ctx context.Context, videoID string) ([]models.RemixedTitle, error) {
	var titles []models.RemixedTitle
	err := s.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("created_at asc, style asc").
		Find(&titles).Error
	return titles, err
}

func (s *Store) ListThumbnails(ctx context.Context, videoID string) ([]models.RemixedThumbnail, error) {
	var thumbs []models.RemixedThumbnail
	err := s.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("style asc").
		Find(&thumbs).Error
	return thumbs, err
}

// ListScripts returns the video's scripts with scenes in sequence order.
func (s *Store) ListScripts(ctx context.Context, videoID string) ([]models.RemixedScript, error) {
	var scripts []models.RemixedScript
	err := s.db.WithContext(ctx).
		Preload("Scenes", func(db *gorm.DB) *gorm.DB {
			return db.Order("scene_number asc")
		}).
		Where("video_id = ?", videoID).
		Order("created_at desc").
		Find(&scripts).Error
	return scripts, err
}
