package analysis

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	histogramBins     = 50
	maxChartDistricts = 15
	groupBarWidth     = 18
)

// Chart labels stay ASCII: the default plot fonts have no CJK glyphs.
var layoutChartLabels = map[string]string{
	LayoutOne:   "1BR",
	LayoutTwo:   "2BR",
	LayoutThree: "3BR",
	LayoutFour:  "4BR+",
	LayoutOther: "Other",
}

var (
	colorBars   = color.RGBA{R: 66, G: 133, B: 244, A: 255}
	colorMean   = color.RGBA{R: 219, G: 68, B: 55, A: 255}
	colorMedian = color.RGBA{R: 15, G: 157, B: 88, A: 255}
)

type chartSpec struct {
	file  string
	build func() (*plot.Plot, error)
}

// RenderCharts writes the report charts as PNG files into dir and returns
// their paths. A chart without data is skipped.
func RenderCharts(report *Report, records []Record, dir string) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	cities := cityLabels(records)
	prices := make(plotter.Values, len(records))
	perSqm := make(plotter.Values, len(records))
	for i, r := range records {
		prices[i] = float64(*r.Price)
		perSqm[i] = r.PricePerSqm
	}

	specs := []chartSpec{
		{"price_distribution.png", func() (*plot.Plot, error) {
			return histogram("Monthly rent distribution", "Rent (CNY/month)", prices, report.Price)
		}},
		{"price_per_sqm_distribution.png", func() (*plot.Plot, error) {
			return histogram("Rent per square metre", "Rent (CNY/sqm/month)", perSqm, report.PricePerSqm)
		}},
		{"price_quantiles.png", func() (*plot.Plot, error) {
			return quantileBars(report.Price)
		}},
		{"layout_mean_price.png", func() (*plot.Plot, error) {
			return layoutBars(report.ByLayout, cities)
		}},
		{"layout_price_boxplot.png", func() (*plot.Plot, error) {
			return layoutBoxes(records)
		}},
		{"district_mean_price.png", func() (*plot.Plot, error) {
			return districtBars(report.ByDistrict, cities)
		}},
		{"salary_ratio.png", func() (*plot.Plot, error) {
			return salaryBars(report.Salary, cities)
		}},
	}

	var paths []string
	for _, spec := range specs {
		p, err := spec.build()
		if err != nil {
			return paths, fmt.Errorf("chart %s: %w", spec.file, err)
		}
		if p == nil {
			continue
		}
		path := filepath.Join(dir, spec.file)
		if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
			return paths, fmt.Errorf("save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func histogram(title, xLabel string, values plotter.Values, s Summary) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "Listings"

	h, err := plotter.NewHist(values, histogramBins)
	if err != nil {
		return nil, err
	}
	h.FillColor = colorBars
	p.Add(h)

	top := p.Y.Max
	for _, ref := range []struct {
		name  string
		value float64
		color color.Color
	}{
		{fmt.Sprintf("Mean %.0f", s.Mean), s.Mean, colorMean},
		{fmt.Sprintf("Median %.0f", s.Median), s.Median, colorMedian},
	} {
		line, err := plotter.NewLine(plotter.XYs{{X: ref.value, Y: 0}, {X: ref.value, Y: top}})
		if err != nil {
			return nil, err
		}
		line.LineStyle.Color = ref.color
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(3)}
		p.Add(line)
		p.Legend.Add(ref.name, line)
	}
	p.Legend.Top = true
	return p, nil
}

func quantileBars(s Summary) (*plot.Plot, error) {
	if s.Count == 0 {
		return nil, nil
	}
	p := plot.New()
	p.Title.Text = "Rent quantiles"
	p.Y.Label.Text = "Rent (CNY/month)"

	bars, err := plotter.NewBarChart(plotter.Values{s.Min, s.Q25, s.Median, s.Q75, s.Max}, vg.Points(40))
	if err != nil {
		return nil, err
	}
	bars.Color = colorBars
	p.Add(bars)
	p.NominalX("Min", "P25", "P50", "P75", "Max")
	return p, nil
}

// cityLabels gives every city an ASCII chart label: its upper-cased site id,
// or C1, C2... in name order when the id is missing or not ASCII.
func cityLabels(records []Record) map[string]string {
	labels := make(map[string]string)
	var unlabeled []string
	for _, r := range records {
		if _, ok := labels[r.City]; ok {
			continue
		}
		if id := strings.ToUpper(r.SiteID); id != "" && isASCII(id) {
			labels[r.City] = id
		} else {
			labels[r.City] = ""
			unlabeled = append(unlabeled, r.City)
		}
	}
	sort.Strings(unlabeled)
	for i, city := range unlabeled {
		labels[city] = fmt.Sprintf("C%d", i+1)
	}
	return labels
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// groupCities lists the cities of per-city groups in order of appearance.
func groupCities(groups []GroupStats) []string {
	var cities []string
	seen := make(map[string]bool)
	for _, g := range groups {
		if !seen[g.City] {
			seen[g.City] = true
			cities = append(cities, g.City)
		}
	}
	return cities
}

type barSeries struct {
	name   string
	values plotter.Values
}

// groupedBars draws one bar per series side by side over each category.
func groupedBars(title, yLabel string, categories []string, series []barSeries) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = yLabel

	width := vg.Points(groupBarWidth)
	mid := float64(len(series)-1) / 2
	for i, sr := range series {
		bars, err := plotter.NewBarChart(sr.values, width)
		if err != nil {
			return nil, err
		}
		bars.Color = plotutil.Color(i)
		bars.LineStyle.Width = 0
		bars.Offset = vg.Length(float64(i)-mid) * width
		p.Add(bars)
		p.Legend.Add(sr.name, bars)
	}
	p.Legend.Top = true
	p.NominalX(categories...)
	return p, nil
}

func layoutBars(groups []GroupStats, cities map[string]string) (*plot.Plot, error) {
	var layouts, labels []string
	for _, key := range []string{LayoutOne, LayoutTwo, LayoutThree, LayoutFour} {
		for _, g := range groups {
			if g.Key == key {
				layouts = append(layouts, key)
				labels = append(labels, layoutChartLabels[key])
				break
			}
		}
	}
	if len(layouts) == 0 {
		return nil, nil
	}

	var series []barSeries
	for _, city := range groupCities(groups) {
		values := make(plotter.Values, len(layouts))
		for i, key := range layouts {
			for _, g := range groups {
				if g.City == city && g.Key == key {
					values[i] = g.Price.Mean
				}
			}
		}
		series = append(series, barSeries{name: cities[city], values: values})
	}
	return groupedBars("Mean rent by layout", "Rent (CNY/month)", labels, series)
}

// districtBars plots the most expensive districts of each city. Bars are
// labelled CITY#rank, matching the rank column of the report's district
// table.
func districtBars(groups []GroupStats, cities map[string]string) (*plot.Plot, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Mean rent of the top %d districts per city", maxChartDistricts)
	p.Y.Label.Text = "Rent (CNY/month)"

	var labels []string
	for i, city := range groupCities(groups) {
		var values plotter.Values
		for _, g := range groups {
			if g.City == city && len(values) < maxChartDistricts {
				values = append(values, g.Price.Mean)
				labels = append(labels, fmt.Sprintf("%s#%d", cities[city], len(values)))
			}
		}
		bars, err := plotter.NewBarChart(values, vg.Points(groupBarWidth))
		if err != nil {
			return nil, err
		}
		bars.Color = plotutil.Color(i)
		bars.XMin = float64(len(labels) - len(values))
		p.Add(bars)
		p.Legend.Add(cities[city], bars)
	}
	p.Legend.Top = true
	p.NominalX(labels...)
	return p, nil
}

func salaryBars(ratios []SalaryRatio, cities map[string]string) (*plot.Plot, error) {
	if len(ratios) == 0 {
		return nil, nil
	}
	labels := make([]string, len(ratios))
	rent := make(plotter.Values, len(ratios))
	sqm := make(plotter.Values, len(ratios))
	for i, r := range ratios {
		labels[i] = cities[r.City]
		rent[i] = r.RentToSalary * 100
		sqm[i] = r.SqmRentToSalary * 100
	}
	return groupedBars("Rent to salary ratio", "Percent of monthly salary", labels, []barSeries{
		{name: "Mean rent", values: rent},
		{name: fmt.Sprintf("%d sqm at mean rate", ReferenceFlatSqm), values: sqm},
	})
}

func layoutBoxes(records []Record) (*plot.Plot, error) {
	byLayout := make(map[string]plotter.Values)
	for _, r := range records {
		byLayout[r.Layout] = append(byLayout[r.Layout], float64(*r.Price))
	}

	p := plot.New()
	p.Title.Text = "Rent spread by layout, all cities"
	p.Y.Label.Text = "Rent (CNY/month)"

	var labels []string
	for _, key := range []string{LayoutOne, LayoutTwo, LayoutThree, LayoutFour} {
		values := byLayout[key]
		if len(values) == 0 {
			continue
		}
		box, err := plotter.NewBoxPlot(vg.Points(30), float64(len(labels)), values)
		if err != nil {
			return nil, err
		}
		box.FillColor = colorBars
		p.Add(box)
		labels = append(labels, layoutChartLabels[key])
	}
	if len(labels) == 0 {
		return nil, nil
	}
	p.NominalX(labels...)
	return p, nil
}
