// Package match resolves free-text task titles to concrete pending tasks.
//
// The similarity measure is a deliberately coarse bag-of-words Jaccard score:
// good enough to pair an AI-suggested title with a plan entry, cheap enough to
// run on every candidate. It is not semantic similarity.
package match

import (
	"strings"

	"github.com/luminara-labs/luminara/internal/models"
)

// threshold is the minimum similarity required to accept a match. Scores must
// be strictly greater. Precision over recall: a missed match costs the user a
// tap, a wrong match silently completes the wrong task.
const threshold = 0.5

// Similarity computes the Jaccard similarity between the lowercase word sets
// of two strings. The result is symmetric and lies in [0, 1]. If both strings
// tokenize to the empty set the similarity is 0.
func Similarity(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)

	union := make(map[string]struct{}, len(wordsA)+len(wordsB))
	for w := range wordsA {
		union[w] = struct{}{}
	}
	for w := range wordsB {
		union[w] = struct{}{}
	}
	if len(union) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			intersection++
		}
	}
	return float64(intersection) / float64(len(union))
}

// wordSet tokenizes a string into its set of lowercase whitespace-delimited
// words. Duplicates collapse; no stemming or punctuation stripping.
func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// FindBest returns the pending task whose title best matches the candidate
// title, or nil when no pending task scores above the acceptance threshold.
// Completed, failed and in-progress tasks are never matched. Ties favor the
// earliest-listed task: only a strictly greater score replaces the running
// best.
func FindBest(candidateTitle string, tasks []models.Task) *models.Task {
	if candidateTitle == "" || len(tasks) == 0 {
		return nil
	}

	var best *models.Task
	highest := threshold

	for i := range tasks {
		if tasks[i].Status != models.TaskStatusPending {
			continue
		}
		score := Similarity(candidateTitle, tasks[i].Title)
		if score > highest {
			highest = score
			best = &tasks[i]
		}
	}
	return best
}
