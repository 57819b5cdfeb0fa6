package utils

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-session-system/models"
)

type capturePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (c *capturePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.input = in
	c.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestArchiveUploadsSnapshot(t *testing.T) {
	putter := &capturePutter{}
	archiver := NewR2ArchiverWithClient(putter, "matches-bucket")

	ended := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	snap := &models.LiveMatch{
		ID:      "m1",
		Players: map[string]*models.PlayerScore{"u1": {DisplayName: "One", Kills: 25}},
		TeamOf:  map[string]models.Team{"u1": models.TeamRed},
		EndedAt: &ended,
	}
	require.NoError(t, archiver.Archive(context.Background(), snap))

	require.NotNil(t, putter.input)
	assert.Equal(t, "matches-bucket", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "matches/m1.json", aws.ToString(putter.input.Key))
	assert.Equal(t, "application/json", aws.ToString(putter.input.ContentType))
	assert.Contains(t, string(putter.body), `"matchId":"m1"`)
	assert.Contains(t, string(putter.body), `"endedAt":"2026-01-02T03:04:05Z"`)
}

func TestArchiveWrapsUploadError(t *testing.T) {
	cause := errors.New("access denied")
	archiver := NewR2ArchiverWithClient(&capturePutter{err: cause}, "b")

	err := archiver.Archive(context.Background(), &models.LiveMatch{ID: "m2"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, cause))
	assert.Contains(t, err.Error(), "m2")
}
