package analysis

import (
	"time"

	"rental_scrooper/config"
)

// Reference flat size used when relating per-square-metre rent to salary.
const ReferenceFlatSqm = 60

const (
	MinDistrictSamples    = 10
	MinOrientationSamples = 5
	MinAgencyShare        = 0.01
)

// Report holds the market analysis. Layout, district, orientation, floor and
// agency groups are computed per city; the rest pool every row.
type Report struct {
	GeneratedAt time.Time
	Sources     []string
	Clean       CleanReport

	Price       Summary
	PricePerSqm Summary
	Area        Summary

	ByCity        []GroupStats
	ByRentType    []GroupStats
	ByLayout      []GroupStats
	ByDistrict    []GroupStats
	ByOrientation []GroupStats
	ByFloor       []GroupStats
	ByAgency      []GroupStats
	ByPriceBand   []GroupStats
	ByAreaBand    []GroupStats

	Bedrooms    []LayoutDetail
	LayoutSteps []LayoutStep
	Salary      []SalaryRatio

	Charts []string
}

// LayoutDetail describes one bedroom count in depth.
type LayoutDetail struct {
	Bedrooms        int
	Label           string
	Price           Summary
	Area            Summary
	MeanPricePerSqm float64
	Share           float64
}

// LayoutStep is the mean-price jump from one bedroom count to the next.
type LayoutStep struct {
	From, To   string
	Difference float64
	Percent    float64
}

type SalaryRatio struct {
	City            string
	AvgSalary       float64
	AvgRent         float64
	AvgPricePerSqm  float64
	RentToSalary    float64
	SqmRentToSalary float64
}

// Analyze computes the report over records that already went through Clean.
// salaries maps city name to average monthly salary; cities without an
// entry get no salary ratio.
func Analyze(records []Record, salaries map[string]float64) *Report {
	r := &Report{GeneratedAt: time.Now()}

	prices := make([]float64, 0, len(records))
	perSqm := make([]float64, 0, len(records))
	areas := make([]float64, 0, len(records))
	for _, rec := range records {
		prices = append(prices, float64(*rec.Price))
		perSqm = append(perSqm, rec.PricePerSqm)
		areas = append(areas, *rec.Area)
	}
	r.Price = Summarize(prices)
	r.PricePerSqm = Summarize(perSqm)
	r.Area = Summarize(areas)

	r.ByCity = GroupBy(records, func(rec Record) string { return rec.City }, 1)
	r.ByRentType = GroupBy(records, func(rec Record) string { return rec.RentType }, 1)
	r.ByLayout = GroupByCity(records, func(rec Record) string { return rec.Layout }, 1)
	r.ByDistrict = GroupByCity(records, func(rec Record) string { return rec.District }, MinDistrictSamples)
	r.ByOrientation = GroupByCity(records, func(rec Record) string {
		if rec.OrientationStd == OrientationUnknown || rec.OrientationStd == OrientationOther {
			return ""
		}
		return rec.OrientationStd
	}, MinOrientationSamples)
	r.ByFloor = GroupByCity(records, func(rec Record) string { return rec.FloorPosition }, 1)
	r.ByPriceBand = GroupBy(records, func(rec Record) string { return rec.PriceBand }, 1)
	r.ByAreaBand = GroupBy(records, func(rec Record) string { return rec.AreaBand }, 1)

	// Agency share is measured against the agency's own city.
	for _, g := range GroupByCity(records, func(rec Record) string { return rec.Agency }, 1) {
		if g.Share > MinAgencyShare {
			r.ByAgency = append(r.ByAgency, g)
		}
	}

	r.Bedrooms = layoutDetails(records)
	r.LayoutSteps = layoutSteps(r.Bedrooms)
	r.Salary = salaryRatios(r.ByCity, salaries)
	return r
}

func layoutDetails(records []Record) []LayoutDetail {
	var out []LayoutDetail
	for beds := 1; beds <= 3; beds++ {
		var prices, areas, perSqm []float64
		for _, rec := range records {
			if rec.Bedrooms == nil || *rec.Bedrooms != beds {
				continue
			}
			prices = append(prices, float64(*rec.Price))
			areas = append(areas, *rec.Area)
			perSqm = append(perSqm, rec.PricePerSqm)
		}
		if len(prices) == 0 {
			continue
		}
		d := LayoutDetail{
			Bedrooms:        beds,
			Label:           LayoutCategory(&beds),
			Price:           Summarize(prices),
			Area:            Summarize(areas),
			MeanPricePerSqm: Summarize(perSqm).Mean,
		}
		if len(records) > 0 {
			d.Share = float64(len(prices)) / float64(len(records))
		}
		out = append(out, d)
	}
	return out
}

func layoutSteps(details []LayoutDetail) []LayoutStep {
	var steps []LayoutStep
	for i := 1; i < len(details); i++ {
		prev, cur := details[i-1], details[i]
		if cur.Bedrooms != prev.Bedrooms+1 || prev.Price.Mean == 0 {
			continue
		}
		diff := cur.Price.Mean - prev.Price.Mean
		steps = append(steps, LayoutStep{
			From:       prev.Label,
			To:         cur.Label,
			Difference: diff,
			Percent:    diff / prev.Price.Mean * 100,
		})
	}
	return steps
}

func salaryRatios(byCity []GroupStats, salaries map[string]float64) []SalaryRatio {
	var out []SalaryRatio
	for _, g := range byCity {
		salary, ok := salaries[g.Key]
		if !ok || salary <= 0 {
			continue
		}
		out = append(out, SalaryRatio{
			City:            g.Key,
			AvgSalary:       salary,
			AvgRent:         g.Price.Mean,
			AvgPricePerSqm:  g.PricePerSqm.Mean,
			RentToSalary:    g.Price.Mean / salary,
			SqmRentToSalary: g.PricePerSqm.Mean * ReferenceFlatSqm / salary,
		})
	}
	return out
}

// Salaries collects the configured average salary of every site by city.
func Salaries(cfg *config.Config) map[string]float64 {
	out := make(map[string]float64)
	for _, site := range cfg.Sites {
		if site.AvgSalary <= 0 {
			continue
		}
		city := site.City
		if city == "" {
			city = site.ID
		}
		out[city] = site.AvgSalary
	}
	return out
}
