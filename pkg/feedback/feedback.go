// Package feedback merges per-file results into an ordered digest that
// drives the next planning round.
package feedback

import (
	"fmt"
	"sort"
	"strings"

	"forgeloop/pkg/plan"
	"forgeloop/pkg/worker"
)

// Item is one feedback entry for a file.
type Item struct {
	Filename string `json:"filename"`
	Message  string `json:"message"`
	Blocking bool   `json:"blocking"`
}

// unknownOrder sorts items for filenames outside the plan after all known ones.
const unknownOrder = 1 << 20

// Summarize merges a round's results into feedback items: explicit Feedback
// results are promoted, every Error result becomes a blocking item, and every
// planned file that produced neither becomes a blocking missing-output item.
// The result is sorted by plan-file order, unknown filenames last, so the
// digest is deterministic for identical inputs.
func Summarize(results []worker.Result, planFiles []plan.FilePlan) []Item {
	var items []Item
	seen := make(map[string]bool, len(results))

	for i := range results {
		r := &results[i]
		seen[r.Filename] = true
		switch r.Kind {
		case worker.KindFeedback:
			items = append(items, Item{Filename: r.Filename, Message: r.Message, Blocking: r.Blocking})
		case worker.KindError:
			items = append(items, Item{Filename: r.Filename, Message: r.Message, Blocking: true})
		case worker.KindImplementation:
		}
	}

	for i := range planFiles {
		name := planFiles[i].Filename
		if !seen[name] {
			items = append(items, Item{
				Filename: name,
				Message:  "no implementation or feedback was produced for this file",
				Blocking: true,
			})
		}
	}

	order := make(map[string]int, len(planFiles))
	for i := range planFiles {
		order[planFiles[i].Filename] = i
	}
	sort.SliceStable(items, func(a, b int) bool {
		return rank(order, items[a].Filename) < rank(order, items[b].Filename)
	})

	return items
}

func rank(order map[string]int, filename string) int {
	if idx, ok := order[filename]; ok {
		return idx
	}
	return unknownOrder
}

// AnyBlocking reports whether any item blocks completion.
func AnyBlocking(items []Item) bool {
	for i := range items {
		if items[i].Blocking {
			return true
		}
	}
	return false
}

// Digest renders items as deterministic "- filename: message (blocking)"
// lines for next-round instructions.
func Digest(items []Item) string {
	if len(items) == 0 {
		return "No feedback."
	}
	lines := make([]string, 0, len(items))
	for i := range items {
		line := fmt.Sprintf("- %s: %s", items[i].Filename, strings.TrimSpace(items[i].Message))
		if items[i].Blocking {
			line += " (blocking)"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
