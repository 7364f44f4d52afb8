// Package score rolls per-test results up into weighted suite-level
// aggregates. An aggregate over zero total weight is inconclusive, which
// is distinct from a score of 0.0: a suite whose tests were all skipped
// or filtered is neither perfect nor failing.
package score

import "sort"

// Sample is one executed test result feeding an aggregate.
type Sample struct {
	Score  float64
	Weight float64
}

// Aggregate is a weighted rollup. Defined is false when no weight was
// accumulated, in which case Score is meaningless and must not be compared
// against thresholds.
type Aggregate struct {
	Score       float64
	Defined     bool
	TotalWeight float64
	Samples     int
}

// Weighted computes Σ(score·weight)/Σ(weight) over the samples.
func Weighted(samples []Sample) Aggregate {
	var sum, total float64
	for _, s := range samples {
		sum += s.Score * s.Weight
		total += s.Weight
	}
	agg := Aggregate{TotalWeight: total, Samples: len(samples)}
	if total > 0 {
		agg.Score = sum / total
		agg.Defined = true
	}
	return agg
}

// PerModel aggregates each model's samples independently.
func PerModel(byModel map[string][]Sample) map[string]Aggregate {
	out := make(map[string]Aggregate, len(byModel))
	for model, samples := range byModel {
		out[model] = Weighted(samples)
	}
	return out
}

// CrossModel summarizes per-model aggregates as their unweighted mean,
// computed only over models with at least one executed test. The mean is
// taken in sorted model order for deterministic floating point results.
func CrossModel(perModel map[string]Aggregate) Aggregate {
	models := make([]string, 0, len(perModel))
	for m := range perModel {
		if perModel[m].Defined {
			models = append(models, m)
		}
	}
	if len(models) == 0 {
		return Aggregate{}
	}
	sort.Strings(models)

	var sum float64
	var samples int
	for _, m := range models {
		sum += perModel[m].Score
		samples += perModel[m].Samples
	}
	return Aggregate{
		Score:       sum / float64(len(models)),
		Defined:     true,
		TotalWeight: float64(len(models)),
		Samples:     samples,
	}
}
