package query

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"stlang/internal/symbols"
)

type fakeSource map[symbols.FileID]string

func (f fakeSource) Read(file symbols.FileID) (string, error) { return f[file], nil }

func TestDiagnosticsUnchangedResponse(t *testing.T) {
	src := fakeSource{"p.st": "PROGRAM P\nVAR x:INT; END_VAR\nx:=1;\nEND_PROGRAM"}
	w := NewWorkspace(NewEngine(0, nil), src)

	r1, err := w.Diagnostics(context.Background(), "p.st", "")
	require.NoError(t, err)
	require.False(t, r1.Unchanged)

	r2, err := w.Diagnostics(context.Background(), "p.st", r1.ID)
	require.NoError(t, err)
	require.True(t, r2.Unchanged, "same source and prior ID must short-circuit as unchanged")

	if diff := cmp.Diff(r1.ID, r2.ID); diff != "" {
		t.Errorf("report ID drifted across identical input (-want +got):\n%s", diff)
	}
}

func TestDiagnosticsInvalidateRecomputes(t *testing.T) {
	src := fakeSource{"p.st": "PROGRAM P\nVAR x:INT; END_VAR\nx:=1;\nEND_PROGRAM"}
	w := NewWorkspace(NewEngine(0, nil), src)

	r1, err := w.Diagnostics(context.Background(), "p.st", "")
	require.NoError(t, err)

	src["p.st"] = "PROGRAM P\nVAR x:INT; END_VAR\nx:=2;\nEND_PROGRAM"
	w.Invalidate("p.st")

	r2, err := w.Diagnostics(context.Background(), "p.st", r1.ID)
	require.NoError(t, err)
	require.False(t, r2.Unchanged, "source changed after invalidation, report must be recomputed")
}
