package grading

import "github.com/pavelanni/autograder/internal/model"

// Anomalies is the single-attempt anomaly signal.
type Anomalies struct {
	HasAnomalies bool
	Count        int
}

// DetectAnomalies counts anomalous responses.
func DetectAnomalies(responses []model.Response) Anomalies {
	var a Anomalies
	for _, r := range responses {
		if r.IsAnomalous {
			a.Count++
		}
	}
	a.HasAnomalies = a.Count > 0
	return a
}
