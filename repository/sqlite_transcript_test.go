package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/mqvi-client/database"
	"github.com/akinalp/mqvi-client/models"
)

func newTestRepo(t *testing.T) TranscriptRepository {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteTranscriptRepo(db.Conn)
}

func TestReplaceChannelIsWholesale(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	first := []models.Message{
		{ID: "m1", Channel: "general", From: "alice", Text: "hi", Timestamp: 1},
		{ID: "m2", Channel: "general", From: "bob", Text: "yo", Timestamp: 2},
	}
	require.NoError(t, repo.ReplaceChannel(ctx, "general", first))

	second := []models.Message{
		{ID: "m3", Channel: "general", From: "carol", Text: "voice", Timestamp: 3,
			Voice: &models.VoiceAttachment{Filename: "v.ogg", DurationSeconds: 4, DownloadRef: "/api/voice/v3"}},
	}
	require.NoError(t, repo.ReplaceChannel(ctx, "general", second))

	got, err := repo.GetByChannel(ctx, "general")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Equal(second[0]))
}

func TestAppendKeepsOrderAndIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.ReplaceChannel(ctx, "general", []models.Message{
		{ID: "m1", Channel: "general", Timestamp: 10},
	}))
	require.NoError(t, repo.Append(ctx, models.Message{ID: "m2", Channel: "general", Timestamp: 5}))
	require.NoError(t, repo.Append(ctx, models.Message{ID: "m2", Channel: "general", Timestamp: 5, Text: "dup"}))

	got, err := repo.GetByChannel(ctx, "general")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m2", got[0].ID)
	assert.Empty(t, got[0].Text)
	assert.Equal(t, "m1", got[1].ID)
}

func TestGetUnknownChannelIsEmpty(t *testing.T) {
	got, err := newTestRepo(t).GetByChannel(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}
