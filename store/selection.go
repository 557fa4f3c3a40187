package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/drewmudry/remixengine-api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func artifactModel(v models.Variant) (any, error) {
	switch v {
	case models.VariantTitle:
		return &models.RemixedTitle{}, nil
	case models.VariantThumbnail:
		return &models.RemixedThumbnail{}, nil
	case models.VariantScript:
		return &models.RemixedScript{}, nil
	}
	return nil, fmt.Errorf("unknown variant %q", v)
}

// Select makes artifactID the only selected artifact of its variant for the video.
// editedText replaces the title text and is ignored for other variants.
//
// The clear-then-set pair runs in one transaction under a per video+variant lock,
// and on postgres also under a row lock on the video so API replicas serialize too.
// A target that does not belong to the video rolls the clear back.
func (s *Store) Select(ctx context.Context, videoID string, variant models.Variant, artifactID string, editedText *string) error {
	model, err := artifactModel(variant)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(videoID + ":" + string(variant))
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Select("id")
		if s.isPostgres() {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var video models.Video
		if err := q.Take(&video, "id = ?", videoID).Error; err != nil {
			return notFound(err, "video "+videoID)
		}

		err := tx.Model(model).
			Where("video_id = ? AND is_selected = ?", videoID, true).
			Update("is_selected", false).Error
		if err != nil {
			return fmt.Errorf("clear selection: %w", err)
		}

		updates := map[string]any{"is_selected": true}
		if variant == models.VariantTitle && editedText != nil {
			if text := strings.TrimSpace(*editedText); text != "" {
				updates["title"] = text
			}
		}
		res := tx.Model(model).
			Where("id = ? AND video_id = ?", artifactID, videoID).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("set selection: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%s %s: %w", variant, artifactID, ErrArtifactNotFound)
		}
		return nil
	})
}

// EditScene rewrites one scene's dialogue. Sequence number and duration stay as they are.
func (s *Store) EditScene(ctx context.Context, sceneID, dialogue string) (*models.Scene, error) {
	dialogue = strings.TrimSpace(dialogue)
	if dialogue == "" {
		return nil, ErrEmptyDialogue
	}

	res := s.db.WithContext(ctx).Model(&models.Scene{}).
		Where("id = ?", sceneID).
		Update("dialogue_line", dialogue)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("scene %s: %w", sceneID, ErrNotFound)
	}

	var scene models.Scene
	if err := s.db.WithContext(ctx).First(&scene, "id = ?", sceneID).Error; err != nil {
		return nil, notFound(err, "scene "+sceneID)
	}
	return &scene, nil
}

// Condition is one requirement of the approval gate.
type Condition string

const (
	ConditionTitleSelected     Condition = "title_selected"
	ConditionThumbnailSelected Condition = "thumbnail_selected"
	ConditionScriptExists      Condition = "script_exists"
)

func (c Condition) Message() string {
	switch c {
	case ConditionTitleSelected:
		return "No title selected"
	case ConditionThumbnailSelected:
		return "No thumbnail selected"
	case ConditionScriptExists:
		return "No script generated"
	}
	return string(c)
}

type Readiness struct {
	TitleSelected     bool `json:"title_selected"`
	ThumbnailSelected bool `json:"thumbnail_selected"`
	ScriptExists      bool `json:"script_exists"`
}

func (r Readiness) Missing() []Condition {
	var missing []Condition
	if !r.TitleSelected {
		missing = append(missing, ConditionTitleSelected)
	}
	if !r.ThumbnailSelected {
		missing = append(missing, ConditionThumbnailSelected)
	}
	if !r.ScriptExists {
		missing = append(missing, ConditionScriptExists)
	}
	return missing
}

func (r Readiness) Ready() bool {
	return len(r.Missing()) == 0
}

// ApprovalError names every unmet gate condition.
type ApprovalError struct {
	VideoID string
	Missing []Condition
}

func (e *ApprovalError) Error() string {
	msgs := make([]string, len(e.Missing))
	for i, c := range e.Missing {
		msgs[i] = c.Message()
	}
	return fmt.Sprintf("video %s is not ready for approval: %s", e.VideoID, strings.Join(msgs, "; "))
}

// ApprovalReadiness reads the three gate conditions. It writes nothing.
func (s *Store) ApprovalReadiness(ctx context.Context, videoID string) (Readiness, error) {
	if _, err := s.GetVideo(ctx, videoID); err != nil {
		return Readiness{}, err
	}

	db := s.db.WithContext(ctx)
	var titles, thumbs, scripts int64
	if err := db.Model(&models.RemixedTitle{}).Where("video_id = ? AND is_selected = ?", videoID, true).Count(&titles).Error; err != nil {
		return Readiness{}, err
	}
	if err := db.Model(&models.RemixedThumbnail{}).Where("video_id = ? AND is_selected = ?", videoID, true).Count(&thumbs).Error; err != nil {
		return Readiness{}, err
	}
	if err := db.Model(&models.RemixedScript{}).Where("video_id = ?", videoID).Count(&scripts).Error; err != nil {
		return Readiness{}, err
	}

	return Readiness{
		TitleSelected:     titles > 0,
		ThumbnailSelected: thumbs > 0,
		ScriptExists:      scripts > 0,
	}, nil
}
