package grading

import "github.com/pavelanni/autograder/internal/model"

const (
	urgentBelow = 0.5
	mediumBelow = 0.75
)

// Classify maps attempt confidence and anomalies to a review priority.
func Classify(confidenceLevel float64, hasAnomalies bool) model.Priority {
	switch {
	case hasAnomalies || confidenceLevel < urgentBelow:
		return model.PriorityUrgent
	case confidenceLevel < mediumBelow:
		return model.PriorityMedium
	}
	return model.PriorityLow
}
