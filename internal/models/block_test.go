package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBlock_TextBlock(t *testing.T) {
	block, err := NewBlock(uuid.New(), uuid.New(), BlockData{
		Kind:     BlockKindText,
		Position: 0,
		Content:  "first paragraph",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), block.Version)
	assert.Equal(t, BlockKindText, block.Kind)
}

func TestNewBlock_AssetRequiresAssetID(t *testing.T) {
	_, err := NewBlock(uuid.New(), uuid.New(), BlockData{Kind: BlockKindAsset})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Errors, "asset block requires an asset id")
}

func TestNewBlock_UnknownKind(t *testing.T) {
	_, err := NewBlock(uuid.New(), uuid.New(), BlockData{Kind: "video"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Errors, "unknown block kind")
}

func TestBlock_Apply_NoOpKeepsVersion(t *testing.T) {
	block, err := NewBlock(uuid.New(), uuid.New(), BlockData{
		Kind:     BlockKindText,
		Position: 1,
		Content:  "unchanged",
	})
	require.NoError(t, err)

	// Re-applying identical state must not bump the version.
	changed, err := block.Apply(BlockData{Kind: BlockKindText, Position: 1, Content: "unchanged"})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, int64(1), block.Version)

	changed, err = block.Apply(BlockData{Kind: BlockKindText, Position: 1, Content: "edited"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(2), block.Version)
}

func TestBlock_SoftDelete_IsIdempotent(t *testing.T) {
	block, err := NewBlock(uuid.New(), uuid.New(), BlockData{Kind: BlockKindText})
	require.NoError(t, err)

	assert.True(t, block.SoftDelete())
	assert.False(t, block.SoftDelete())
	assert.Equal(t, int64(2), block.Version)
}

func TestNewBlock_IgnoresClientSuppliedID(t *testing.T) {
	clientID := uuid.New()
	block, err := NewBlock(uuid.New(), uuid.New(), BlockData{
		ID:       &clientID,
		Kind:     BlockKindText,
		Position: 0,
		Content:  "resent payload",
	})
	require.NoError(t, err)

	assert.NotEqual(t, clientID, block.ID, "a retried create must not reuse the client's id")
	assert.NotEqual(t, uuid.Nil, block.ID)
}
