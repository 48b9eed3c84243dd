package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/pulse_server/internal/model"
	"github.com/qs3c/pulse_server/internal/testutil"
)

func TestPlaybackRepository(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPlaybackRepository(db)
	contentRepo := NewContentRepository(db)
	ctx := context.Background()

	content := testutil.TestContent(t, db, 2)
	found, err := contentRepo.GetByID(ctx, content.ID)
	require.NoError(t, err)
	assert.Equal(t, content.CreatorID, found.CreatorID)

	session := &model.PlaybackSession{
		ID:          uuid.NewString(),
		ViewerID:    1,
		ContentID:   content.ID,
		SessionSalt: uuid.NewString(),
		Token:       "ABCD-EFGH-IJKL-MNOP",
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, repo.Create(ctx, session))

	byID, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Token, byID.Token)

	byToken, err := repo.GetByToken(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, byToken.ID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = contentRepo.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
