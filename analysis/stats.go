package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type Summary struct {
	Count  int
	Mean   float64
	Median float64
	Min    float64
	Max    float64
	Std    float64
	Q25    float64
	Q75    float64
}

// Summarize skips NaN and infinite values. Std is the sample standard
// deviation and is zero below two values.
func Summarize(values []float64) Summary {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return Summary{}
	}
	sort.Float64s(clean)

	s := Summary{
		Count:  len(clean),
		Mean:   stat.Mean(clean, nil),
		Median: median(clean),
		Min:    floats.Min(clean),
		Max:    floats.Max(clean),
		Q25:    stat.Quantile(0.25, stat.Empirical, clean, nil),
		Q75:    stat.Quantile(0.75, stat.Empirical, clean, nil),
	}
	if len(clean) > 1 {
		s.Std = stat.StdDev(clean, nil)
	}
	return s
}

// median expects sorted input and averages the middle pair for even sizes.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

type GroupStats struct {
	// City is set by GroupByCity and empty for pooled groupings.
	City        string
	Key         string
	Count       int
	Share       float64
	Price       Summary
	PricePerSqm Summary
	Area        Summary
}

// GroupBy aggregates records per key, keeping groups with at least minCount
// rows, ordered by mean price descending.
func GroupBy(records []Record, key func(Record) string, minCount int) []GroupStats {
	type acc struct {
		prices, perSqm, areas []float64
	}
	groups := make(map[string]*acc)
	var order []string
	for _, r := range records {
		k := key(r)
		if k == "" {
			continue
		}
		g, ok := groups[k]
		if !ok {
			g = &acc{}
			groups[k] = g
			order = append(order, k)
		}
		if r.Price != nil {
			g.prices = append(g.prices, float64(*r.Price))
		}
		if r.PricePerSqm > 0 {
			g.perSqm = append(g.perSqm, r.PricePerSqm)
		}
		if r.Area != nil {
			g.areas = append(g.areas, *r.Area)
		}
	}

	var out []GroupStats
	for _, k := range order {
		g := groups[k]
		if len(g.prices) < minCount {
			continue
		}
		gs := GroupStats{
			Key:         k,
			Count:       len(g.prices),
			Price:       Summarize(g.prices),
			PricePerSqm: Summarize(g.perSqm),
			Area:        Summarize(g.areas),
		}
		if len(records) > 0 {
			gs.Share = float64(gs.Count) / float64(len(records))
		}
		out = append(out, gs)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Price.Mean > out[j].Price.Mean
	})
	return out
}

// GroupByCity runs GroupBy inside each city so rows from different cities
// never share a group. Shares are relative to the city's own row count.
// Cities come out in name order.
func GroupByCity(records []Record, key func(Record) string, minCount int) []GroupStats {
	byCity := make(map[string][]Record)
	for _, r := range records {
		byCity[r.City] = append(byCity[r.City], r)
	}
	cities := make([]string, 0, len(byCity))
	for city := range byCity {
		cities = append(cities, city)
	}
	sort.Strings(cities)

	var out []GroupStats
	for _, city := range cities {
		for _, g := range GroupBy(byCity[city], key, minCount) {
			g.City = city
			out = append(out, g)
		}
	}
	return out
}
