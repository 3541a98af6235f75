package grading

// Weighted is one value in a weighted average.
type Weighted struct {
	Value  float64
	Weight float64
}

// WeightedAverage is the single place averages are computed. Entries with a
// non-positive weight are ignored; a zero total weight yields 0.
func WeightedAverage(items []Weighted) float64 {
	sum, weight := 0.0, 0.0
	for _, it := range items {
		if it.Weight <= 0 {
			continue
		}
		sum += it.Value * it.Weight
		weight += it.Weight
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}
