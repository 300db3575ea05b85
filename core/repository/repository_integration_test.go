package repository

import (
	"context"
	"testing"
	"time"

	"llama-lora/core/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupDB(t *testing.T) *DB {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode.")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("runs"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := NewDB(connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(ctx))
	// Migrations are idempotent
	require.NoError(t, db.Migrate(ctx))

	return db
}

func newRun() *models.Run {
	return &models.Run{
		ID:        uuid.NewString(),
		App:       "llama-lora",
		BaseModel: "decapoda-research/llama-7b-hf",
		Dataset:   "sahil2801/CodeAlpaca-20k",
		Split:     "train[:20%]",
		OutputDir: "./checkpoints",
		Status:    models.RunStatusPending,
	}
}

func TestRunLifecycle(t *testing.T) {
	db := setupDB(t)
	runs := NewRunRepository(db)
	events := NewEventRepository(db)
	artifacts := NewArtifactRepository(db)

	run := newRun()
	require.NoError(t, runs.CreateRun(run))
	require.NoError(t, runs.UpdateRunStatus(run.ID, models.RunStatusPending, models.RunStatusRunning, "training_started", nil))

	got, err := runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)
	assert.Nil(t, got.FinishedAt)

	run.Samples = 4004
	run.ValSetSize = 401
	require.NoError(t, artifacts.CreateArtifact(run.ID, models.ArtifactTypeCheckpoint, "./checkpoints/checkpoint-400", map[string]interface{}{"name": "checkpoint-400"}))
	require.NoError(t, runs.UpdateRunStatus(run.ID, models.RunStatusRunning, models.RunStatusCompleted, "training_completed", map[string]interface{}{"val_set_size": 401}))
	require.NoError(t, runs.FinishRun(run))

	got, err = runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Equal(t, 4004, got.Samples)
	assert.Equal(t, 401, got.ValSetSize)
	assert.Empty(t, got.Error)
	assert.NotNil(t, got.FinishedAt)

	evts, err := events.GetRunEvents(run.ID, 10)
	require.NoError(t, err)
	require.Len(t, evts, 3)
	assert.Equal(t, "training_completed", evts[0].Reason)
	assert.Equal(t, models.RunStatusRunning, *evts[0].FromStatus)
	assert.Equal(t, float64(401), evts[0].MetaJSON["val_set_size"])
	assert.Equal(t, "run_created", evts[2].Reason)
	assert.Nil(t, evts[2].FromStatus)

	checkpoint := models.ArtifactTypeCheckpoint
	arts, err := artifacts.GetRunArtifacts(run.ID, &checkpoint, 10)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "./checkpoints/checkpoint-400", arts[0].URI)
	assert.Equal(t, "checkpoint-400", arts[0].MetaJSON["name"])

	dataset := models.ArtifactTypeDataset
	arts, err = artifacts.GetRunArtifacts(run.ID, &dataset, 10)
	require.NoError(t, err)
	assert.Empty(t, arts)

	require.NoError(t, artifacts.CreateArtifact(run.ID, dataset, "hf://sahil2801/CodeAlpaca-20k/default/train[:20%]",
		map[string]interface{}{"samples": 4000}))
	arts, err = artifacts.GetRunArtifacts(run.ID, &dataset, 0)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, float64(4000), arts[0].MetaJSON["samples"])

	arts, err = artifacts.GetRunArtifacts(run.ID, nil, 1)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, models.ArtifactTypeDataset, arts[0].Type)

	evts, err = events.GetRunEvents(run.ID, 0)
	require.NoError(t, err)
	assert.Len(t, evts, 3)
}

func TestListRuns(t *testing.T) {
	db := setupDB(t)
	runs := NewRunRepository(db)

	first := newRun()
	require.NoError(t, runs.CreateRun(first))
	second := newRun()
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, runs.CreateRun(second))
	require.NoError(t, runs.UpdateRunStatus(second.ID, models.RunStatusPending, models.RunStatusFailed, "dataset_load_failed", nil))

	all, err := runs.ListRuns(nil, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	pending := models.RunStatusPending
	filtered, err := runs.ListRuns(&pending, 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, first.ID, filtered[0].ID)
}

func TestRunNotFound(t *testing.T) {
	db := setupDB(t)
	runs := NewRunRepository(db)

	_, err := runs.GetRun(uuid.NewString())
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = runs.GetRun("not-a-uuid")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = runs.UpdateRunStatus(uuid.NewString(), models.RunStatusPending, models.RunStatusRunning, "training_started", nil)
	assert.ErrorIs(t, err, ErrRunNotFound)
}
