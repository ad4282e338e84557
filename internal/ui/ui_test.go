package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/view"
)

func plain(t *testing.T) {
	t.Helper()
	prev := current
	SetColorForcing(false, true)
	t.Cleanup(func() {
		current = prev
		SetColorForcing(false, false)
	})
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "░░░░░   0%", ProgressBar(0, 0, 5))
	assert.Equal(t, "██░░░  50%", ProgressBar(1, 2, 5))
	assert.Equal(t, "█████ 100%", ProgressBar(3, 3, 1))
}

func TestSetTheme(t *testing.T) {
	plain(t)
	require.NoError(t, SetTheme("neon"))
	assert.Equal(t, "neon", Current().Name)
	require.NoError(t, SetTheme("classic"))
	assert.Equal(t, "default", Current().Name)
	assert.Error(t, SetTheme("sepia"))
	assert.Equal(t, "default", Current().Name)
}

func TestRenderViewNumbersActiveThenCompleted(t *testing.T) {
	plain(t)
	require.NoError(t, SetTheme("mono"))
	items := []model.Todo{
		{ID: "a", Text: "milk", Position: 2},
		{ID: "b", Text: "bread", Position: 1},
		{ID: "c", Text: "eggs", Position: 3, Completed: true},
	}
	var buf bytes.Buffer
	RenderView(&buf, "Groceries", view.Project(items, "", view.Options{}))
	out := buf.String()

	assert.Contains(t, out, "Groceries  x 1  - 2  Total 3")
	bread := strings.Index(out, " 1. [ ] bread")
	milk := strings.Index(out, " 2. [ ] milk")
	eggs := strings.Index(out, " 3. [x] eggs")
	require.True(t, bread > 0 && milk > bread && eggs > milk, out)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	width := visibleWidth(lines[0])
	for _, ln := range lines {
		assert.Equal(t, width, visibleWidth(ln), ln)
	}
}

func TestRenderViewShowsQuery(t *testing.T) {
	plain(t)
	items := []model.Todo{{ID: "a", Text: "milk"}, {ID: "b", Text: "eggs"}}
	var buf bytes.Buffer
	RenderView(&buf, "L", view.Project(items, "mlk", view.Options{}))
	assert.Contains(t, buf.String(), `search "mlk": 1 of 2`)
	assert.NotContains(t, buf.String(), "eggs")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "ééé...", Truncate("éééééééé", 6))
}

func TestOKAndFail(t *testing.T) {
	plain(t)
	var out, errOut bytes.Buffer
	prevOut, prevErr := Stdout, Stderr
	Stdout, Stderr = &out, &errOut
	t.Cleanup(func() { Stdout, Stderr = prevOut, prevErr })
	OK("added")
	Fail("boom")
	assert.Equal(t, "✔ added\n", out.String())
	assert.Equal(t, "✖ boom\n", errOut.String())
}
