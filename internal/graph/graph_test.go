package graph

import (
	"testing"

	"github.com/specialistvlad/incrbuild/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func art(name string, stage int, cmd string) model.Artifact {
	return model.Artifact{Name: name, Stage: stage, CommandTemplate: cmd}
}

func TestNew_ValidGraph(t *testing.T) {
	// --- Arrange ---
	entries := []Entry{
		{Dataset: "PERM", Artifacts: []model.Artifact{
			art("fact_perm/", 1, "curate"),
			art("employer_features.parquet", 2, "features"),
			art("soc_demand_metrics.parquet", 4, "soc"),
		}},
		{Dataset: "LCA", Artifacts: []model.Artifact{
			art("fact_lca/", 1, "curate"),
			art("soc_demand_metrics.parquet", 4, "soc"),
		}},
		{Dataset: "DOL_RECORD_LAYOUTS"},
	}

	// --- Act ---
	g, err := New(entries)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"DOL_RECORD_LAYOUTS", "LCA", "PERM"}, g.Datasets())
	assert.Equal(t, 4, g.ArtifactCount())

	perm, ok := g.ArtifactsFor("PERM")
	require.True(t, ok)
	assert.Equal(t, "employer_features.parquet", perm[1].Name)

	ref, ok := g.ArtifactsFor("DOL_RECORD_LAYOUTS")
	assert.True(t, ok, "reference-only datasets are part of the graph")
	assert.Empty(t, ref)

	_, ok = g.ArtifactsFor("BLS_CES")
	assert.False(t, ok)
}

func TestArtifactsFor_ReturnsCopy(t *testing.T) {
	g := MustNew([]Entry{{Dataset: "PERM", Artifacts: []model.Artifact{art("a", 1, "x")}}})
	list, _ := g.ArtifactsFor("PERM")
	list[0].Name = "mutated"

	again, _ := g.ArtifactsFor("PERM")
	assert.Equal(t, "a", again[0].Name)
}

func TestNew_RejectsInvalidGraphs(t *testing.T) {
	testCases := []struct {
		name    string
		entries []Entry
		errText string
	}{
		{
			name:    "stage zero",
			entries: []Entry{{Dataset: "A", Artifacts: []model.Artifact{art("x", 0, "c")}}},
			errText: "stages start at 1",
		},
		{
			name:    "decreasing stage",
			entries: []Entry{{Dataset: "A", Artifacts: []model.Artifact{art("x", 4, "c"), art("y", 3, "d")}}},
			errText: "after stage 4",
		},
		{
			name:    "empty command",
			entries: []Entry{{Dataset: "A", Artifacts: []model.Artifact{art("x", 1, "")}}},
			errText: "has no command",
		},
		{
			name:    "empty artifact name",
			entries: []Entry{{Dataset: "A", Artifacts: []model.Artifact{art("", 1, "c")}}},
			errText: "without a name",
		},
		{
			name:    "duplicate dataset",
			entries: []Entry{{Dataset: "A"}, {Dataset: "A"}},
			errText: "declared twice",
		},
		{
			name:    "empty dataset tag",
			entries: []Entry{{Dataset: ""}},
			errText: "empty tag",
		},
		{
			name:    "duplicate artifact within dataset",
			entries: []Entry{{Dataset: "A", Artifacts: []model.Artifact{art("x", 1, "c"), art("x", 1, "c")}}},
			errText: "listed twice",
		},
		{
			name: "fan-in artifact with different command",
			entries: []Entry{
				{Dataset: "A", Artifacts: []model.Artifact{art("x", 1, "c")}},
				{Dataset: "B", Artifacts: []model.Artifact{art("x", 1, "other")}},
			},
			errText: "differs between datasets",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.entries)
			require.ErrorIs(t, err, ErrInvalidGraph)
			assert.Contains(t, err.Error(), tc.errText)
		})
	}
}

func TestNew_EqualStagesAreAllowed(t *testing.T) {
	_, err := New([]Entry{{Dataset: "A", Artifacts: []model.Artifact{
		art("x", 1, "c"), art("y", 1, "c"), art("z", 3, "d"),
	}}})
	require.NoError(t, err)
}
