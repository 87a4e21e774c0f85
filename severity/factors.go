package severity

import (
	"strings"
	"time"
)

var protectedBranchMarkers = []string{"main", "master", "production", "prod"}

// IsProtectedBranch reports whether a ref name names a protected branch
// per spec §4.6 step 2: the ref contains any of {main, master, production,
// prod} as a substring.
func IsProtectedBranch(ref string) bool {
	if ref == "" {
		return false
	}
	lower := strings.ToLower(ref)
	for _, marker := range protectedBranchMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// IsOffHoursLikely reports whether t's GMT hour falls in [02:00,10:00) ∪
// [14:00,18:00), per spec §4.6 step 2.
func IsOffHoursLikely(t time.Time) bool {
	h := t.UTC().Hour()
	return (h >= 2 && h < 10) || (h >= 14 && h < 18)
}

// IsProductionRepo is a heuristic used by S1: a repository name containing
// "prod" (case-insensitive) is treated as production-facing.
func IsProductionRepo(repoFullName string) bool {
	return strings.Contains(strings.ToLower(repoFullName), "prod")
}
