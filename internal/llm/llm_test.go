package llm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutribot/nutribot/internal/coach"
	"github.com/nutribot/nutribot/internal/log"
)

func newDisabledClient(t *testing.T, uploadDir string) *Client {
	t.Helper()

	client, err := New(context.Background(), Config{
		Model:             "gemini-2.5-flash",
		VisionModel:       "gemini-2.5-flash",
		UploadDir:         uploadDir,
		RequestsPerMinute: 60,
	}, log.NewNop())
	require.NoError(t, err)
	return client
}

func TestDisabledGateway(t *testing.T) {
	client := newDisabledClient(t, t.TempDir())
	ctx := context.Background()

	assert.False(t, client.Enabled())

	_, err := client.ChatCompletion(ctx, "", nil, coach.DefaultGenerationConfig(), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = client.GenerateCoachResponse(ctx, "", nil, coach.DefaultGenerationConfig())
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = client.ClassifyImage(ctx, "/uploads/aa.jpg")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(context.Background(), Config{RequestsPerMinute: 0}, log.NewNop())
	assert.Error(t, err)

	_, err = New(context.Background(), Config{RequestsPerMinute: 60}, nil)
	assert.Error(t, err)
}

func TestImagePartReadsUpload(t *testing.T) {
	uploadDir := t.TempDir()
	payload := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	require.NoError(t, os.WriteFile(filepath.Join(uploadDir, "meal.jpg"), payload, 0o600))

	client := newDisabledClient(t, uploadDir)

	part, err := client.ImagePart("/uploads/meal.jpg")
	require.NoError(t, err)
	require.NotNil(t, part.InlineData)
	assert.Equal(t, payload, part.InlineData.Data)
	assert.Equal(t, "image/jpeg", part.InlineData.MIMEType)
}

func TestImagePartRejectsTraversal(t *testing.T) {
	uploadDir := t.TempDir()
	outside := filepath.Join(filepath.Dir(uploadDir), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))

	client := newDisabledClient(t, uploadDir)

	_, err := client.ImagePart("/uploads/../secret.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside the upload directory")
}

func TestImagePartMissingFile(t *testing.T) {
	client := newDisabledClient(t, t.TempDir())

	_, err := client.ImagePart("/uploads/nope.png")
	assert.Error(t, err)
}
