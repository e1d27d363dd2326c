package planner

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/incrbuild/internal/ctxlog"
	"github.com/specialistvlad/incrbuild/internal/graph"
	"github.com/specialistvlad/incrbuild/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func art(name string, stage int, cmd string) model.Artifact {
	return model.Artifact{Name: name, Stage: stage, CommandTemplate: cmd}
}

func testGraph(t *testing.T) *graph.Table {
	t.Helper()
	g, err := graph.New([]graph.Entry{
		{Dataset: "PERM", Artifacts: []model.Artifact{
			art("fact_perm/", 1, "python3 -m curate --data-root {source_root}"),
			art("fact_perm_unique_case/", 1, "python3 scripts/build_fact_perm_unique_case.py"),
			art("employer_features.parquet", 2, "python3 -m features"),
			art("soc_demand_metrics.parquet", 4, "python3 scripts/make_soc_demand_metrics.py"),
		}},
		{Dataset: "LCA", Artifacts: []model.Artifact{
			art("fact_lca/", 1, "python3 -m curate --data-root {source_root}"),
			art("soc_demand_metrics.parquet", 4, "python3 scripts/make_soc_demand_metrics.py"),
		}},
		{Dataset: "OEWS", Artifacts: []model.Artifact{
			art("fact_oews/", 1, "python3 -m curate --data-root {source_root}"),
			art("salary_benchmarks.parquet", 4, "python3 scripts/make_salary_benchmarks.py"),
		}},
		{Dataset: "DOL_RECORD_LAYOUTS"},
	})
	require.NoError(t, err)
	return g
}

func fp(path, dataset string) model.FileFingerprint {
	return model.FileFingerprint{RelPath: path, Size: 1, MTime: 1, Dataset: dataset}
}

func quiet() context.Context { return ctxlog.Discard(context.Background()) }

func TestPlan_NoChangesGivesEmptyPlan(t *testing.T) {
	actions := Plan(quiet(), &model.ChangeSet{UnchangedCount: 10}, testGraph(t), Options{})
	assert.Empty(t, actions)
}

func TestPlan_SingleDatasetChange(t *testing.T) {
	// --- Arrange ---
	cs := &model.ChangeSet{New: []model.FileFingerprint{fp("PERM/PERM/FY2024/b.xlsx", "PERM")}}

	// --- Act ---
	actions := Plan(quiet(), cs, testGraph(t), Options{SourceRoot: "/data/raw"})

	// --- Assert ---
	want := []model.RebuildAction{
		{
			Artifact:    "fact_perm/",
			Reason:      "Dataset 'PERM' has changes",
			Stage:       1,
			Command:     "python3 -m curate --data-root /data/raw",
			TriggeredBy: []string{"NEW: PERM/PERM/FY2024/b.xlsx"},
		},
		{
			Artifact:    "fact_perm_unique_case/",
			Reason:      "Dataset 'PERM' has changes",
			Stage:       1,
			Command:     "python3 scripts/build_fact_perm_unique_case.py",
			TriggeredBy: []string{"NEW: PERM/PERM/FY2024/b.xlsx"},
		},
		{
			Artifact:    "employer_features.parquet",
			Reason:      "Dataset 'PERM' has changes",
			Stage:       2,
			Command:     "python3 -m features",
			TriggeredBy: []string{"NEW: PERM/PERM/FY2024/b.xlsx"},
		},
		{
			Artifact:    "soc_demand_metrics.parquet",
			Reason:      "Dataset 'PERM' has changes",
			Stage:       4,
			Command:     "python3 scripts/make_soc_demand_metrics.py",
			TriggeredBy: []string{"NEW: PERM/PERM/FY2024/b.xlsx"},
		},
	}
	if diff := cmp.Diff(want, actions); diff != "" {
		t.Errorf("Plan() mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_SharedCommandRunsOnce(t *testing.T) {
	// --- Arrange ---
	cs := &model.ChangeSet{
		Changed: []model.ChangedFile{{
			Old: fp("LCA/FY2024/lca.xlsx", "LCA"),
			New: fp("LCA/FY2024/lca.xlsx", "LCA"),
		}},
		Deleted: []model.FileFingerprint{fp("OEWS/2023/oews.xlsx", "OEWS")},
	}

	// --- Act ---
	actions := Plan(quiet(), cs, testGraph(t), Options{SourceRoot: "/raw"})

	// --- Assert ---
	require.Len(t, actions, 3)

	curate := actions[0]
	assert.Equal(t, "fact_lca/", curate.Artifact, "LCA sorts first and owns the shared command")
	assert.Equal(t, "Dataset 'LCA' has changes; also rebuilds fact_oews/", curate.Reason)
	assert.Equal(t, []string{"CHANGED: LCA/FY2024/lca.xlsx", "DELETED: OEWS/2023/oews.xlsx"}, curate.TriggeredBy)

	assert.Equal(t, "salary_benchmarks.parquet", actions[1].Artifact)
	assert.Equal(t, "soc_demand_metrics.parquet", actions[2].Artifact)

	commands := map[string]int{}
	for _, a := range actions {
		commands[a.Command]++
	}
	for cmd, n := range commands {
		assert.Equal(t, 1, n, "command %q planned more than once", cmd)
	}
}

func TestPlan_FanInArtifactOwnedByFirstDataset(t *testing.T) {
	cs := &model.ChangeSet{New: []model.FileFingerprint{
		fp("PERM/x.xlsx", "PERM"),
		fp("LCA/y.xlsx", "LCA"),
	}}

	actions := Plan(quiet(), cs, testGraph(t), Options{})

	var soc []model.RebuildAction
	for _, a := range actions {
		if a.Artifact == "soc_demand_metrics.parquet" {
			soc = append(soc, a)
		}
	}
	require.Len(t, soc, 1)
	assert.Equal(t, "Dataset 'LCA' has changes", soc[0].Reason)
	assert.Equal(t, []string{"NEW: LCA/y.xlsx"}, soc[0].TriggeredBy)
}

func TestPlan_DifferentSubstitutionsDoNotMerge(t *testing.T) {
	// --- Arrange ---
	g := graph.MustNew([]graph.Entry{
		{Dataset: "A", Artifacts: []model.Artifact{art("a_out", 1, "run {source_root}")}},
		{Dataset: "B", Artifacts: []model.Artifact{art("b_out", 1, "run {project_root}")}},
	})
	cs := &model.ChangeSet{New: []model.FileFingerprint{fp("A/1.csv", "A"), fp("B/1.csv", "B")}}

	// --- Act ---
	actions := Plan(quiet(), cs, g, Options{SourceRoot: "/raw", ProjectRoot: "/proj"})

	// --- Assert ---
	require.Len(t, actions, 2)
	assert.Equal(t, "run /raw", actions[0].Command)
	assert.Equal(t, "run /proj", actions[1].Command)
}

func TestPlan_SameResolvedCommandMerges(t *testing.T) {
	g := graph.MustNew([]graph.Entry{
		{Dataset: "A", Artifacts: []model.Artifact{art("a_out", 1, "run {source_root}")}},
		{Dataset: "B", Artifacts: []model.Artifact{art("b_out", 1, "run /raw")}},
	})
	cs := &model.ChangeSet{New: []model.FileFingerprint{fp("A/1.csv", "A"), fp("B/1.csv", "B")}}

	actions := Plan(quiet(), cs, g, Options{SourceRoot: "/raw"})

	require.Len(t, actions, 1)
	assert.Equal(t, "Dataset 'A' has changes; also rebuilds b_out", actions[0].Reason)
}

func TestPlan_TriggersAreCapped(t *testing.T) {
	var files []model.FileFingerprint
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		files = append(files, fp("OEWS/"+name+".xlsx", "OEWS"))
	}
	cs := &model.ChangeSet{New: files}

	actions := Plan(quiet(), cs, testGraph(t), Options{})
	require.NotEmpty(t, actions)
	assert.Len(t, actions[0].TriggeredBy, DefaultMaxTriggers)

	actions = Plan(quiet(), cs, testGraph(t), Options{MaxTriggers: 2})
	assert.Len(t, actions[0].TriggeredBy, 2)
}

func TestPlan_UnmappedAndUnknownDatasetsPlanNothing(t *testing.T) {
	// --- Arrange ---
	var buf bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))
	cs := &model.ChangeSet{New: []model.FileFingerprint{
		fp("TRAC/report.csv", "TRAC"),
		fp("misc/notes.txt", model.UnknownDataset),
		fp("DOL_Record_Layouts/LCA/layout.pdf", "DOL_RECORD_LAYOUTS"),
	}}

	// --- Act ---
	actions := Plan(ctx, cs, testGraph(t), Options{})

	// --- Assert ---
	assert.Empty(t, actions)
	assert.Contains(t, buf.String(), "No dependency mapping for dataset")
	assert.Contains(t, buf.String(), "dataset=TRAC")
	assert.Contains(t, buf.String(), "matched no dataset pattern")
}

func TestPlan_IsDeterministic(t *testing.T) {
	cs := &model.ChangeSet{
		New:     []model.FileFingerprint{fp("PERM/a.xlsx", "PERM"), fp("OEWS/b.xlsx", "OEWS")},
		Deleted: []model.FileFingerprint{fp("LCA/c.xlsx", "LCA")},
	}
	g := testGraph(t)
	first := Plan(quiet(), cs, g, Options{SourceRoot: "/raw"})
	for i := 0; i < 20; i++ {
		if diff := cmp.Diff(first, Plan(quiet(), cs, g, Options{SourceRoot: "/raw"})); diff != "" {
			t.Fatalf("plan changed between runs (-first +again):\n%s", diff)
		}
	}
}

func TestPlan_StagesNeverDecrease(t *testing.T) {
	cs := &model.ChangeSet{New: []model.FileFingerprint{
		fp("PERM/a.xlsx", "PERM"), fp("OEWS/b.xlsx", "OEWS"), fp("LCA/c.xlsx", "LCA"),
	}}
	actions := Plan(quiet(), cs, testGraph(t), Options{})
	for i := 1; i < len(actions); i++ {
		assert.LessOrEqual(t, actions[i-1].Stage, actions[i].Stage)
	}
}

func TestLog_GroupsByStage(t *testing.T) {
	var buf bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))
	actions := []model.RebuildAction{
		{Artifact: "fact_perm/", Stage: 1, TriggeredBy: []string{"NEW: a", "NEW: b", "NEW: c", "NEW: d"}},
		{Artifact: "soc_demand_metrics.parquet", Stage: 4},
	}

	Log(ctx, actions, model.DefaultStageNames())

	out := buf.String()
	assert.Contains(t, out, "Stage 1: CURATE")
	assert.Contains(t, out, "Stage 4: DERIVED")
	assert.Contains(t, out, "more_triggers=1")
	assert.NotContains(t, out, "NEW: d")
}
