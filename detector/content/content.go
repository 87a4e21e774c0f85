// Package content implements the ContentDetector (spec §4.2): secret
// pattern scanning over commit messages and file diffs, suspicious-file
// categorization, and a sigmoid-normalized risk score.
package content

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/sentryhq/ghanomaly/event"
)

// maxDiffScanBytes is the size above which a diff is not scanned for
// secrets (spec §4.2).
const maxDiffScanBytes = 50_000

// FileChange is one file touched within a commit/push, carrying enough of
// the diff to drive secret scanning and file categorization. The GitHub
// poller (out of scope) is responsible for populating these from the
// commit API; when unavailable, only commit-message scanning applies.
type FileChange struct {
	Path         string
	Content      string // diff text or full content, scanned for secrets
	BytesChanged int
	Additions    int
	Deletions    int
	Binary       bool
}

// Hit is one secret-pattern match.
type Hit struct {
	Type     string
	Severity float64
	Preview  string // 20-char preview around the match
	Start    int
	End      int
	Source   string // commit SHA or file path
}

// Analysis is the ContentDetector's output for one group.
type Analysis struct {
	Features       event.FeatureVector
	SecretDetections []Hit
	SuspiciousFiles  []string
	RiskScore        float64
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// scanText runs every secret pattern against text and returns hits tagged
// with source.
func scanText(text, source string) []Hit {
	if len(text) > maxDiffScanBytes {
		return nil
	}
	var hits []Hit
	for _, p := range secretPatterns {
		locs := p.Regex.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			start, end := loc[0], loc[1]
			hits = append(hits, Hit{
				Type:     p.Name,
				Severity: p.Severity,
				Preview:  preview(text, start, end),
				Start:    start,
				End:      end,
				Source:   source,
			})
		}
	}
	return hits
}

func preview(text string, start, end int) string {
	if end-start > 20 {
		end = start + 20
	}
	if end > len(text) {
		end = len(text)
	}
	if start > len(text) {
		start = len(text)
	}
	return text[start:end]
}

// categorize classifies a file path into its risk category, if any.
func categorize(path string) (FileCategory, bool) {
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))
	lowerPath := strings.ToLower(path)

	for _, cat := range fileCategories {
		matched := false
		for _, b := range cat.Basenames {
			if strings.EqualFold(base, b) {
				matched = true
				break
			}
		}
		if !matched {
			for _, e := range cat.Extensions {
				if ext == e {
					matched = true
					break
				}
			}
		}
		if !matched {
			continue
		}
		if cat.RequiresKeyword {
			hasKeyword := false
			for _, kw := range cat.Keywords {
				if strings.Contains(lowerPath, kw) {
					hasKeyword = true
					break
				}
			}
			if !hasKeyword {
				continue
			}
		}
		return cat, true
	}
	return FileCategory{}, false
}

// Score runs the full ContentDetector pipeline over a group's commit
// messages and file changes.
func Score(events []event.Event, diffs []FileChange) Analysis {
	var hits []Hit

	for _, e := range events {
		if e.Payload.Push == nil {
			continue
		}
		for _, c := range e.Payload.Push.Commits {
			hits = append(hits, scanText(c.Message, c.SHA)...)
		}
	}

	var suspiciousFiles []string
	var credentialFiles, keyFiles, largeChanges, binaryFiles int
	var totalAdditions, totalDeletions int

	for _, d := range diffs {
		hits = append(hits, scanText(d.Content, d.Path)...)

		if cat, ok := categorize(d.Path); ok {
			suspiciousFiles = append(suspiciousFiles, d.Path)
			switch cat.Name {
			case "credentials":
				credentialFiles++
			case "keys":
				keyFiles++
			}
		}
		if d.BytesChanged > 10_000 {
			largeChanges++
		}
		if d.Binary {
			binaryFiles++
		}
		totalAdditions += d.Additions
		totalDeletions += d.Deletions
	}

	highSeverity := 0
	var severitySum float64
	for _, h := range hits {
		if h.Severity >= 0.8 {
			highSeverity++
		}
		severitySum += h.Severity
	}
	meanSeverity := 0.0
	if len(hits) > 0 {
		meanSeverity = severitySum / float64(len(hits))
	}

	ratio := 0.0
	if totalAdditions > 0 {
		ratio = float64(totalDeletions) / float64(totalAdditions)
	} else if totalDeletions > 0 {
		ratio = 1
	}
	if ratio > 1 {
		ratio = 1
	}

	f := make(event.FeatureVector, event.ContentDim)
	f[event.ConSecretCount] = float64(len(hits))
	f[event.ConHighSeveritySecretCount] = float64(highSeverity)
	f[event.ConSuspiciousFileCount] = float64(len(suspiciousFiles))
	f[event.ConCredentialFileCount] = float64(credentialFiles)
	f[event.ConKeyFileCount] = float64(keyFiles)
	f[event.ConLargeFileChanges] = float64(largeChanges)
	f[event.ConBinaryFileCount] = float64(binaryFiles)
	f[event.ConDeletionAdditionRatio] = ratio
	f[event.ConMeanSecretSeverity] = meanSeverity
	f.Clamp()

	risk := riskScore(f, hits)

	return Analysis{Features: f, SecretDetections: hits, SuspiciousFiles: suspiciousFiles, RiskScore: risk}
}

// featureWeights sums to ~1.0 and determines each sigmoid-normalized
// feature's contribution to the risk score (spec §4.2).
var featureWeights = [event.ContentDim]float64{
	event.ConSecretCount:              0.25,
	event.ConHighSeveritySecretCount:  0.20,
	event.ConSuspiciousFileCount:      0.10,
	event.ConCredentialFileCount:      0.10,
	event.ConKeyFileCount:             0.10,
	event.ConLargeFileChanges:         0.05,
	event.ConBinaryFileCount:          0.05,
	event.ConDeletionAdditionRatio:    0.05,
	event.ConMeanSecretSeverity:       0.10,
}

func riskScore(f event.FeatureVector, hits []Hit) float64 {
	var dot float64
	for i, x := range f {
		dot += featureWeights[i] * sigmoid(0.5*x)
	}

	maxSeverity := 0.0
	distinctTypes := make(map[string]struct{})
	for _, h := range hits {
		if h.Severity > maxSeverity {
			maxSeverity = h.Severity
		}
		distinctTypes[h.Type] = struct{}{}
	}

	severityBoost := 0.3 * maxSeverity
	diversityBoost := math.Min(0.1*float64(len(distinctTypes)), 0.3)

	score := dot + severityBoost + diversityBoost
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
