package app

import "live-quiz-service/internal/random"

const (
	nameLetters = "abcdefghijklmnopqrstuvwxyz"
	nameDigits  = "0123456789"
)

// generateName returns five distinct letters followed by three distinct digits,
// redrawn until taken reports the name as free.
func generateName(r random.Random, taken func(string) bool) string {
	for {
		name := random.Draw(r, nameLetters, 5) + random.Draw(r, nameDigits, 3)
		if !taken(name) {
			return name
		}
	}
}
