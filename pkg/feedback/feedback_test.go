package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgeloop/pkg/plan"
	"forgeloop/pkg/worker"
)

func planFiles(names ...string) []plan.FilePlan {
	files := make([]plan.FilePlan, len(names))
	for i, name := range names {
		files[i] = plan.FilePlan{Filename: name}
	}
	return files
}

func TestSummarizePromotesFeedbackAndErrors(t *testing.T) {
	results := []worker.Result{
		{Kind: worker.KindImplementation, Filename: "Navbar.tsx", Content: "..."},
		{Kind: worker.KindFeedback, Filename: "App.tsx", Message: "route table ambiguous", Blocking: true},
		{Kind: worker.KindError, Filename: "Home.tsx", Message: "upstream returned 503"},
	}

	items := Summarize(results, planFiles("Navbar.tsx", "App.tsx", "Home.tsx"))

	require.Len(t, items, 2)
	assert.Equal(t, "App.tsx", items[0].Filename)
	assert.True(t, items[0].Blocking)
	assert.Equal(t, "Home.tsx", items[1].Filename)
	assert.True(t, items[1].Blocking, "errors always block")
}

func TestSummarizeSynthesizesMissingFiles(t *testing.T) {
	results := []worker.Result{
		{Kind: worker.KindImplementation, Filename: "App.tsx", Content: "..."},
	}

	items := Summarize(results, planFiles("App.tsx", "Hero.tsx"))

	require.Len(t, items, 1)
	assert.Equal(t, "Hero.tsx", items[0].Filename)
	assert.True(t, items[0].Blocking)
}

func TestSummarizeOrderFollowsPlanUnknownLast(t *testing.T) {
	results := []worker.Result{
		{Kind: worker.KindFeedback, Filename: "Stray.tsx", Message: "not in plan", Blocking: false},
		{Kind: worker.KindFeedback, Filename: "Home.tsx", Message: "b", Blocking: false},
		{Kind: worker.KindFeedback, Filename: "App.tsx", Message: "a", Blocking: false},
	}

	items := Summarize(results, planFiles("App.tsx", "Home.tsx"))

	require.Len(t, items, 3)
	assert.Equal(t, "App.tsx", items[0].Filename)
	assert.Equal(t, "Home.tsx", items[1].Filename)
	assert.Equal(t, "Stray.tsx", items[2].Filename)
}

func TestSummarizeStableForEqualRanks(t *testing.T) {
	results := []worker.Result{
		{Kind: worker.KindFeedback, Filename: "Zed.tsx", Message: "first unknown"},
		{Kind: worker.KindFeedback, Filename: "Abe.tsx", Message: "second unknown"},
	}

	items := Summarize(results, planFiles("App.tsx"))

	// Unknown filenames keep their arrival order.
	require.Len(t, items, 3)
	assert.Equal(t, "App.tsx", items[0].Filename)
	assert.Equal(t, "Zed.tsx", items[1].Filename)
	assert.Equal(t, "Abe.tsx", items[2].Filename)
}

func TestAnyBlocking(t *testing.T) {
	assert.False(t, AnyBlocking(nil))
	assert.False(t, AnyBlocking([]Item{{Blocking: false}}))
	assert.True(t, AnyBlocking([]Item{{Blocking: false}, {Blocking: true}}))
}

func TestDigestFormat(t *testing.T) {
	items := []Item{
		{Filename: "App.tsx", Message: " missing props ", Blocking: true},
		{Filename: "Home.tsx", Message: "nit: spacing", Blocking: false},
	}

	digest := Digest(items)
	assert.Equal(t, "- App.tsx: missing props (blocking)\n- Home.tsx: nit: spacing", digest)

	assert.Equal(t, "No feedback.", Digest(nil))
}
