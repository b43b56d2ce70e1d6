package runstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	l := NewLayout(t.TempDir(), "run-1")
	require.NoError(t, l.Ensure())

	s := New("run-1", "/photos", "ollama", "llava", "narrative")
	now := time.Now().UTC()
	st := s.Stage(StageDescribe)
	st.Status = StageRunning
	st.StartedAt = &now
	st.Processed = 7

	require.NoError(t, s.Save(l))

	loaded, err := Load(l)
	require.NoError(t, err)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, "ollama", loaded.Provider)
	assert.Equal(t, "llava", loaded.Model)
	assert.Equal(t, "narrative", loaded.PromptStyle)
	assert.Equal(t, StageRunning, loaded.Stage(StageDescribe).Status)
	assert.Equal(t, 7, loaded.Stage(StageDescribe).Processed)
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	l := NewLayout(t.TempDir(), "run-1")
	require.NoError(t, l.Ensure())

	s := New("run-1", "", "ollama", "llava", "narrative")
	for i := 0; i < 5; i++ {
		s.Stage(StageDescribe).Processed = i
		require.NoError(t, s.Save(l))
	}

	entries, err := os.ReadDir(l.Dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "atomic writes must clean up temp files")
	}
}

func TestStageSkippable(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(artifact, []byte("{}"), 0o644))

	s := New("run-1", "", "ollama", "llava", "narrative")

	st := s.Stage(StagePrepare)
	assert.False(t, s.StageSkippable(StagePrepare), "pending stage never skips")

	st.Status = StageComplete
	st.Artifacts = []string{artifact}
	assert.True(t, s.StageSkippable(StagePrepare))

	require.NoError(t, os.Remove(artifact))
	assert.False(t, s.StageSkippable(StagePrepare), "missing artifact forces rerun")
}

func TestStage_CreatesMissingEntry(t *testing.T) {
	s := &RunState{RunID: "run-1"}
	st := s.Stage("future-stage")
	require.NotNil(t, st)
	assert.Equal(t, StagePending, st.Status)
}

func TestLatestRun(t *testing.T) {
	root := t.TempDir()

	for _, id := range []string{
		"20260101T000000Z-aaaa",
		"20260301T000000Z-cccc",
		"20260201T000000Z-bbbb",
	} {
		require.NoError(t, NewLayout(root, id).Ensure())
	}

	l, err := LatestRun(root)
	require.NoError(t, err)
	assert.Equal(t, "20260301T000000Z-cccc", filepath.Base(l.Dir))
}

func TestLatestRun_NoRuns(t *testing.T) {
	_, err := LatestRun(t.TempDir())
	assert.Error(t, err)
}

func TestReadJSON_MissingFile(t *testing.T) {
	var v map[string]any
	err := ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &v)
	assert.Error(t, err)
}
