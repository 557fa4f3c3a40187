package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/drewmudry/remixengine-api/models"
	"github.com/drewmudry/remixengine-api/store"
	"github.com/drewmudry/remixengine-api/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eightTitles(prefix string) []models.RemixedTitle {
	styles := []string{"Curiosity Gap", "Direct Value", "Contrarian", "Listicle", "Question", "Emotional Hook", "Tutorial", "Story-Driven"}
	out := make([]models.RemixedTitle, len(styles))
	for i, s := range styles {
		out[i] = models.RemixedTitle{
			Style:     s,
			Title:     fmt.Sprintf("%s title %d", prefix, i+1),
			Reasoning: "because it works well",
		}
	}
	return out
}

func TestReplaceTitlesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewStore(t)
	v := storetest.SeedVideo(t, s, nil)

	require.NoError(t, s.ReplaceTitles(ctx, v.ID, eightTitles("first")))
	require.NoError(t, s.ReplaceTitles(ctx, v.ID, eightTitles("second")))

	titles, err := s.ListTitles(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, titles, 8)
	for _, title := range titles {
		assert.Contains(t, title.Title, "second")
		assert.False(t, title.IsSelected)
	}
}

func TestReplaceThumbnailKeepsOtherStyles(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewStore(t)
	v := storetest.SeedVideo(t, s, nil)

	for _, style := range models.ThumbnailStyles {
		require.NoError(t, s.ReplaceThumbnail(ctx, &models.RemixedThumbnail{
			VideoID:  v.ID,
			Style:    string(style),
			FilePath: "old/" + string(style) + ".jpg",
		}))
	}
	require.NoError(t, s.ReplaceThumbnail(ctx, &models.RemixedThumbnail{
		VideoID:  v.ID,
		Style:    string(models.ThumbnailCinematic),
		FilePath: "new/cinematic-scene.jpg",
	}))

	thumbs, err := s.ListThumbnails(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, thumbs, 3)
	for _, th := range thumbs {
		if th.Style == string(models.ThumbnailCinematic) {
			assert.Equal(t, "new/cinematic-scene.jpg", th.FilePath)
		} else {
			assert.Contains(t, th.FilePath, "old/")
		}
	}
}

func TestReplaceScriptReplacesScenes(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewStore(t)
	v := storetest.SeedVideo(t, s, nil)

	scenes := func(n int) []models.Scene {
		out := make([]models.Scene, n)
		for i := range out {
			out[i] = models.Scene{SceneNumber: i + 1, DialogueLine: "line", DurationSeconds: 20, BrollDescription: "b-roll shot"}
		}
		return out
	}

	first := &models.RemixedScript{VideoID: v.ID, FullScript: "a"}
	require.NoError(t, s.ReplaceScript(ctx, first, scenes(3)))
	second := &models.RemixedScript{VideoID: v.ID, FullScript: "b"}
	require.NoError(t, s.ReplaceScript(ctx, second, scenes(2)))

	scripts, err := s.ListScripts(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.Equal(t, second.ID, scripts[0].ID)
	require.Len(t, scripts[0].Scenes, 2)
	assert.Equal(t, 1, scripts[0].Scenes[0].SceneNumber)
	assert.Equal(t, 2, scripts[0].Scenes[1].SceneNumber)

	var orphaned int64
	require.NoError(t, storeDB(t, s).Model(&models.Scene{}).Where("script_id = ?", first.ID).Count(&orphaned).Error)
	assert.Zero(t, orphaned)
}

func TestSelectIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewStore(t)
	v := storetest.SeedVideo(t, s, nil)
	require.NoError(t, s.ReplaceTitles(ctx, v.ID, eightTitles("t")))
	titles, err := s.ListTitles(ctx, v.ID)
	require.NoError(t, err)

	a, b := titles[0], titles[1]
	require.NoError(t, s.Select(ctx, v.ID, models.VariantTitle, a.ID, nil))
	require.NoError(t, s.Select(ctx, v.ID, models.VariantTitle, b.ID, nil))

	titles, err = s.ListTitles(ctx, v.ID)
	require.NoError(t, err)
	var selected []string
	for _, title := range titles {
		if title.IsSelected {
			selected = append(selected, title.ID)
		}
	}
	assert.Equal(t, []string{b.ID}, selected)
}

func TestSelectConcurrentCallsLeaveOneSelected(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewStore(t)
	v := storetest.SeedVideo(t, s, nil)
	require.NoError(t, s.ReplaceTitles(ctx, v.ID, eightTitles("t")))
	titles, err := s.ListTitles(ctx, v.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, title := range titles {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, s.Select(ctx, v.ID, models.VariantTitle, id, nil))
		}(title.ID)
	}
	wg.Wait()

	titles, err = s.ListTitles(ctx, v.ID)
	require.NoError(t, err)
	count := 0
	for _, title := range titles {
		if title.IsSelected {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSelectWithEditedTitle(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewStore(t)
	v := storetest.SeedVideo(t, s, nil)
	require.NoError(t, s.ReplaceTitles(ctx, v.ID, eightTitles("t")))
	titles, err := s.ListTitles(ctx, v.ID)
	require.NoError(t, err)

	edited := "  My hand-tuned title  "
	require.NoError(t, s.Select(ctx, v.ID, models.VariantTitle, titles[3].ID, &edited))

	titles, err = s.ListTitles(ctx, v.ID)
	require.NoError(t, err)
	for _, title := range titles {
		if title.IsSelected {
			assert.Equal(t, "My hand-tuned title", title.Title)
		}
	}
}

func TestSelectUnknownArtifactKeepsPreviousSelection(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewStore(t)
	v := storetest.SeedVideo(t, s, nil)
	other := storetest.SeedVideo(t, s, nil)
	require.NoError(t, s.ReplaceTitles(ctx, v.ID, eightTitles("t")))
	require.NoError(t, s.ReplaceTitles(ctx, other.ID, eightTitles("o")))

	titles, err := s.ListTitles(ctx, v.ID)
	require.NoError(t, err)
	otherTitles, err := s.ListTitles(ctx, other.ID)
	require.NoError(t, err)

	selectedID := titles[0].ID
	require.NoError(t, s.Select(ctx, v.ID, models.VariantTitle, selectedID, nil))
	err = s.Select(ctx, v.ID, models.VariantTitle, otherTitles[0].ID, nil)
	assert.True(t, errors.Is(err, store.ErrArtifactNotFound))

	titles, err = s.ListTitles(ctx, v.ID)
	require.NoError(t, err)
	for _, title := range titles {
		assert.Equal(t, title.ID == selectedID, title.IsSelected)
	}
}

func TestSelectMissingVideo(t *testing.T) {
	s := storetest.NewStore(t)
	err := s.Select(context.Background(), "00000000-0000-0000-0000-000000000000", models.VariantTitle, "x", nil)
	assert.True(t, store.IsNotFound(err))
}

func TestEditScene(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewStore(t)
	v := storetest.SeedVideo(t, s, nil)
	script := &models.RemixedScript{VideoID: v.ID, FullScript: "a"}
	require.NoError(t, s.ReplaceScript(ctx, script, []models.Scene{
		{SceneNumber: 1, DialogueLine: "old line", DurationSeconds: 30, BrollDescription: "wide shot"},
	}))

	scene, err := s.EditScene(ctx, script.Scenes[0].ID, "new line")
	require.NoError(t, err)
	assert.Equal(t, "new line", scene.DialogueLine)
	assert.Equal(t, 1, scene.SceneNumber)
	assert.Equal(t, 30, scene.DurationSeconds)

	_, err = s.EditScene(ctx, script.Scenes[0].ID, "   ")
	assert.ErrorIs(t, err, store.ErrEmptyDialogue)

	_, err = s.EditScene(ctx, "missing", "text")
	assert.True(t, store.IsNotFound(err))
}

func TestApprovalReadinessCitesMissingThumbnail(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewStore(t)
	v := storetest.SeedVideo(t, s, nil)

	require.NoError(t, s.ReplaceTitles(ctx, v.ID, eightTitles("t")))
	titles, err := s.ListTitles(ctx, v.ID)
	require.NoError(t, err)
	require.NoError(t, s.Select(ctx, v.ID, models.VariantTitle, titles[0].ID, nil))
	require.NoError(t, s.ReplaceThumbnail(ctx, &models.RemixedThumbnail{VideoID: v.ID, Style: "cinematic-scene", FilePath: "p"}))
	require.NoError(t, s.ReplaceScript(ctx, &models.RemixedScript{VideoID: v.ID, FullScript: "s"}, nil))

	r, err := s.ApprovalReadiness(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, r.Ready())
	assert.Equal(t, []store.Condition{store.ConditionThumbnailSelected}, r.Missing())
}

func TestApprovalReadinessReady(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewStore(t)
	v := storetest.SeedVideo(t, s, nil)

	require.NoError(t, s.ReplaceTitles(ctx, v.ID, eightTitles("t")))
	titles, _ := s.ListTitles(ctx, v.ID)
	require.NoError(t, s.Select(ctx, v.ID, models.VariantTitle, titles[0].ID, nil))
	thumb := &models.RemixedThumbnail{VideoID: v.ID, Style: "face-reaction", FilePath: "p"}
	require.NoError(t, s.ReplaceThumbnail(ctx, thumb))
	require.NoError(t, s.Select(ctx, v.ID, models.VariantThumbnail, thumb.ID, nil))
	require.NoError(t, s.ReplaceScript(ctx, &models.RemixedScript{VideoID: v.ID, FullScript: "s"}, nil))

	r, err := s.ApprovalReadiness(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, r.Ready())
	assert.Empty(t, r.Missing())
}

func TestApprovalErrorMessage(t *testing.T) {
	err := &store.ApprovalError{VideoID: "v1", Missing: []store.Condition{store.ConditionTitleSelected, store.ConditionScriptExists}}
	assert.Equal(t, "video v1 is not ready for approval: No title selected; No script generated", err.Error())
}

func TestDeleteVideoCascades(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewStore(t)
	v := storetest.SeedVideo(t, s, nil)
	require.NoError(t, s.ReplaceTitles(ctx, v.ID, eightTitles("t")))
	require.NoError(t, s.ReplaceThumbnail(ctx, &models.RemixedThumbnail{VideoID: v.ID, Style: "cinematic-scene", FilePath: "p"}))
	require.NoError(t, s.ReplaceScript(ctx, &models.RemixedScript{VideoID: v.ID, FullScript: "s"}, []models.Scene{
		{SceneNumber: 1, DialogueLine: "d", DurationSeconds: 20, BrollDescription: "broll"},
	}))

	deleted, err := s.DeleteVideo(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, deleted.ID)

	db := storeDB(t, s)
	for _, m := range []any{&models.RemixedTitle{}, &models.RemixedThumbnail{}, &models.RemixedScript{}, &models.Scene{}, &models.Video{}} {
		var n int64
		require.NoError(t, db.Model(m).Count(&n).Error)
		assert.Zero(t, n, "%T rows left", m)
	}

	_, err = s.DeleteVideo(ctx, v.ID)
	assert.True(t, store.IsNotFound(err))
}

func TestSetStageStatusFollowsStateMachine(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewStore(t)
	v := storetest.SeedVideo(t, s, nil)

	require.NoError(t, s.SetStageStatus(ctx, v.ID, models.StageRemix, models.StageProcessing, ""))
	require.NoError(t, s.SetStageStatus(ctx, v.ID, models.StageRemix, models.StageError, "boom"))

	got, err := s.GetVideo(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageError, got.RemixStatus)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "boom", *got.ErrorMessage)

	err = s.SetStageStatus(ctx, v.ID, models.StageRemix, models.StageComplete, "")
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	require.NoError(t, s.SetStageStatus(ctx, v.ID, models.StageRemix, models.StageProcessing, ""))
	got, err = s.GetVideo(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ErrorMessage)
}
