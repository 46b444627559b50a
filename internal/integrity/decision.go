// Package integrity re-checks archived chapters against the live site and
// replaces snapshots that have gone stale.
package integrity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bramasta/komikarsip/internal/archive"
)

// Verdict classifies a live image list against a persisted snapshot.
type Verdict int

const (
	// VerdictUnchanged means the snapshot still matches the live chapter.
	VerdictUnchanged Verdict = iota
	// VerdictGrowth means the live chapter gained images.
	VerdictGrowth
	// VerdictDrift means the image count matches but URLs were rotated.
	VerdictDrift
	// VerdictRegression means the live chapter reports fewer images than
	// the snapshot; the live data is not trusted and no update happens.
	VerdictRegression
)

// maxListedDrift caps how many drift positions the reason string spells out.
const maxListedDrift = 5

// Result is a staleness classification with its human-readable reason.
// Reason is empty exactly when the verdict is VerdictUnchanged.
type Result struct {
	Verdict Verdict
	Reason  string
}

// Evaluate runs the staleness decision procedure for one chapter, in strict
// precedence order: growth, then URL drift, then suspect regression, then
// unchanged. The local count is recomputed from the snapshot's image list
// when one is present, since total_images can be stale.
//
// A failed live fetch arrives here as an empty list and falls through every
// branch (the regression guard requires live > 0), so it can never produce
// a false update.
func Evaluate(local *archive.Chapter, live []string) Result {
	localCount := local.ImageCount()
	liveCount := len(live)

	if liveCount > localCount {
		return Result{
			Verdict: VerdictGrowth,
			Reason:  fmt.Sprintf("MORE IMAGES (Local: %d -> Live: %d)", localCount, liveCount),
		}
	}

	if liveCount == localCount && liveCount > 0 {
		var changed []int
		n := min(len(local.Images), liveCount)
		for i := 0; i < n; i++ {
			if local.Images[i] != live[i] {
				changed = append(changed, i+1) // 1-indexed for display
			}
		}
		if len(changed) > 0 {
			return Result{Verdict: VerdictDrift, Reason: driftReason(changed)}
		}
		return Result{Verdict: VerdictUnchanged}
	}

	if liveCount < localCount && liveCount > 0 {
		return Result{
			Verdict: VerdictRegression,
			Reason:  fmt.Sprintf("live has %d images, local has %d", liveCount, localCount),
		}
	}

	return Result{Verdict: VerdictUnchanged}
}

func driftReason(changed []int) string {
	if len(changed) > maxListedDrift {
		return fmt.Sprintf("URL CHANGED at %d position(s)", len(changed))
	}
	positions := make([]string, len(changed))
	for i, p := range changed {
		positions[i] = strconv.Itoa(p)
	}
	return fmt.Sprintf("URL CHANGED at position(s): %s", strings.Join(positions, ", "))
}
