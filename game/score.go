// This package contains the scoring rules of the guessing game.
package game

import (
	"fmt"
	"math"
)

// Guesses closer than this to the actual rating count as perfect.
const perfectDelta = 0.05

// Distance at which a guess is worth nothing.
const maxDistance = 5.0

// Score awards points for a rating guess. An exact match is worth 100 points,
// falling off linearly to 0 at 5.0 rating points of distance. Inputs are
// clamped to the 0-10 rating scale.
func Score(guess, actual float64) int {
	d := math.Abs(clamp(guess) - clamp(actual))
	if d >= maxDistance {
		return 0
	}

	return int(math.Round(100 * (1 - d/maxDistance)))
}

// Perfect reports whether the guess is close enough to count as exact.
func Perfect(guess, actual float64) bool {
	return math.Abs(clamp(guess)-clamp(actual)) < perfectDelta
}

// ShareText renders the result line players paste into chats.
func ShareText(title string, year int, guess, actual float64, points int) string {
	return fmt.Sprintf(
		"ReelGuess: %s (%d). Guessed %.1f, rated %.1f. %d/100",
		title, year, guess, actual, points,
	)
}

func clamp(rating float64) float64 {
	return min(max(rating, 0), 10)
}
