package analysis

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"rental_scrooper/identity"
	"rental_scrooper/logging"
)

// Layout categories by bedroom count.
const (
	LayoutOne   = "一居"
	LayoutTwo   = "二居"
	LayoutThree = "三居"
	LayoutFour  = "四居及以上"
	LayoutOther = "其他"
)

const (
	FloorLow     = "低楼层"
	FloorMid     = "中楼层"
	FloorHigh    = "高楼层"
	FloorUnknown = "未知"

	OrientationUnknown = "未知"
	OrientationOther   = "其他"

	IndividualAgency = "个人"
	UnknownDistrict  = "未知"
)

// Composite directions are checked first so "东南" is not read as "东".
var standardOrientations = []string{"南北", "东南", "西南", "东北", "西北", "东", "南", "西", "北"}

var (
	priceBands = []string{"低价", "中低价", "中高价", "高价"}
	areaBands  = []string{"小户型", "中等", "较大", "大户型"}
)

type CleanOptions struct {
	DropOutliers   bool
	MaxPrice       float64
	MinArea        float64
	MaxArea        float64
	MaxPricePerSqm float64
}

func DefaultCleanOptions() CleanOptions {
	return CleanOptions{
		DropOutliers:   true,
		MaxPrice:       100000,
		MinArea:        10,
		MaxArea:        1000,
		MaxPricePerSqm: 1000,
	}
}

type CleanReport struct {
	Input      int
	Unusable   int
	Outliers   int
	Duplicates int
	Output     int
}

// Clean drops rows without a positive price and area, optional outliers and
// duplicate advertisements, then fills in the derived fields.
func Clean(records []Record, opts CleanOptions) ([]Record, CleanReport) {
	report := CleanReport{Input: len(records)}
	seen := make(map[string]bool, len(records))
	out := make([]Record, 0, len(records))

	for _, r := range records {
		if !r.Usable() {
			report.Unusable++
			continue
		}
		price, area := float64(*r.Price), *r.Area
		r.PricePerSqm = price / area

		if opts.DropOutliers && isOutlier(price, area, r.PricePerSqm, opts) {
			report.Outliers++
			continue
		}

		key := identity.DedupKey(&r.Listing)
		if seen[key] {
			report.Duplicates++
			continue
		}
		seen[key] = true

		r.Layout = LayoutCategory(r.Bedrooms)
		r.OrientationStd = StandardizeOrientation(r.Orientation)
		r.FloorPosition = FloorPosition(r.FloorLevel)
		r.Agency = Agency(r.Platform)
		if strings.TrimSpace(r.District) == "" {
			r.District = UnknownDistrict
		}
		out = append(out, r)
	}

	assignBands(out)
	report.Output = len(out)
	logging.Infof("cleaned dataset: %d -> %d rows (%d unusable, %d outliers, %d duplicates)",
		report.Input, report.Output, report.Unusable, report.Outliers, report.Duplicates)
	return out, report
}

func isOutlier(price, area, perSqm float64, opts CleanOptions) bool {
	return price >= opts.MaxPrice ||
		area <= opts.MinArea || area >= opts.MaxArea ||
		perSqm >= opts.MaxPricePerSqm
}

func LayoutCategory(bedrooms *int) string {
	if bedrooms == nil {
		return LayoutOther
	}
	switch b := *bedrooms; {
	case b == 1:
		return LayoutOne
	case b == 2:
		return LayoutTwo
	case b == 3:
		return LayoutThree
	case b >= 4:
		return LayoutFour
	default:
		return LayoutOther
	}
}

func StandardizeOrientation(orientation string) string {
	o := strings.Join(strings.Fields(orientation), "")
	if o == "" {
		return OrientationUnknown
	}
	for _, std := range standardOrientations {
		if strings.Contains(o, std) {
			return std
		}
	}
	return OrientationOther
}

// FloorPosition maps the portal's floor label (低/中/高, also 底/顶) to a
// floor band.
func FloorPosition(level string) string {
	switch {
	case strings.ContainsAny(level, "低底"):
		return FloorLow
	case strings.Contains(level, "中"):
		return FloorMid
	case strings.ContainsAny(level, "高顶"):
		return FloorHigh
	default:
		return FloorUnknown
	}
}

func Agency(platform string) string {
	if p := strings.TrimSpace(platform); p != "" {
		return p
	}
	return IndividualAgency
}

// assignBands splits price and area into quartile bands.
func assignBands(records []Record) {
	if len(records) == 0 {
		return
	}
	prices := make([]float64, len(records))
	areas := make([]float64, len(records))
	for i, r := range records {
		prices[i] = float64(*r.Price)
		areas[i] = *r.Area
	}
	priceCuts := quartileCuts(prices)
	areaCuts := quartileCuts(areas)

	for i := range records {
		records[i].PriceBand = priceBands[band(prices[i], priceCuts)]
		records[i].AreaBand = areaBands[band(areas[i], areaCuts)]
	}
}

func quartileCuts(values []float64) [3]float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return [3]float64{
		stat.Quantile(0.25, stat.Empirical, sorted, nil),
		stat.Quantile(0.5, stat.Empirical, sorted, nil),
		stat.Quantile(0.75, stat.Empirical, sorted, nil),
	}
}

func band(v float64, cuts [3]float64) int {
	for i, c := range cuts {
		if v <= c {
			return i
		}
	}
	return 3
}
