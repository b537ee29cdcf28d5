package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprout/internal/skilltree"
)

func TestParseProposalsCleanArray(t *testing.T) {
	t.Parallel()

	defs, err := ParseProposals(`[{"id":"a","name":"A","tier":"basic","category":"technical"}]`)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "a", defs[0].ID)
	assert.Equal(t, "basic", defs[0].Tier)
}

func TestParseProposalsRepairsMalformedPayload(t *testing.T) {
	t.Parallel()

	// Trailing comma, unquoted key, fenced block: the usual collaborator mess.
	raw := "```json\n[{id: \"a\", \"name\": \"A\", \"tier\": \"basic\",},]\n```"
	defs, err := ParseProposals(raw)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "a", defs[0].ID)
	assert.Equal(t, "A", defs[0].Name)
}

func TestParseProposalsAcceptsWrappedObject(t *testing.T) {
	t.Parallel()

	raw := `{"skills":[{"id":"a","name":"A","tier":"basic"},{"id":"b","name":"B","tier":"intermediate","prerequisites":["a"]}]}`
	defs, err := ParseProposals(raw)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, []string{"a"}, defs[1].Prerequisites)
}

func TestParseProposalsRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseProposals(`"just a string"`)
	assert.Error(t, err)
}

func TestSnapshotCoversEverySkill(t *testing.T) {
	t.Parallel()

	g := skilltree.NewGraph(skilltree.TreeGeneral)
	require.NoError(t, g.AddSkill(&skilltree.Skill{
		ID: "root", Name: "Root", Category: skilltree.CategoryTechnical,
		Tier: skilltree.TierBasic, Level: 4, MaxLevel: 20,
	}))
	require.NoError(t, g.AddSkill(&skilltree.Skill{
		ID: "next", Name: "Next", Category: skilltree.CategoryTechnical,
		Tier: skilltree.TierIntermediate, MaxLevel: 30, Prerequisites: []string{"root"},
	}))

	snap := Snapshot(g, "developing", 27.5)
	assert.Equal(t, skilltree.TreeGeneral, snap.Tree)
	assert.Equal(t, "developing", snap.Stage)
	assert.Equal(t, 27.5, snap.Index)
	require.Len(t, snap.Skills, 2)
	assert.True(t, snap.Skills[0].Unlocked)
	assert.False(t, snap.Skills[1].Unlocked)
	assert.Equal(t, 4, snap.Skills[0].Level)
}
