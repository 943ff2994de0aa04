package analysis

import (
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"rental_scrooper/models"
)

// PrintReport writes the headline tables of a report to w.
func PrintReport(w io.Writer, report *Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Rent summary")
	t.AppendHeader(table.Row{"", "Rent (CNY)", "Per sqm (CNY)", "Area (sqm)"})
	t.AppendRows([]table.Row{
		{"Mean", humanize.CommafWithDigits(report.Price.Mean, 0), humanize.CommafWithDigits(report.PricePerSqm.Mean, 1), humanize.CommafWithDigits(report.Area.Mean, 1)},
		{"Median", humanize.CommafWithDigits(report.Price.Median, 0), humanize.CommafWithDigits(report.PricePerSqm.Median, 1), humanize.CommafWithDigits(report.Area.Median, 1)},
		{"Min", humanize.CommafWithDigits(report.Price.Min, 0), humanize.CommafWithDigits(report.PricePerSqm.Min, 1), humanize.CommafWithDigits(report.Area.Min, 1)},
		{"Max", humanize.CommafWithDigits(report.Price.Max, 0), humanize.CommafWithDigits(report.PricePerSqm.Max, 1), humanize.CommafWithDigits(report.Area.Max, 1)},
		{"Std", humanize.CommafWithDigits(report.Price.Std, 0), humanize.CommafWithDigits(report.PricePerSqm.Std, 1), humanize.CommafWithDigits(report.Area.Std, 1)},
	})
	t.AppendFooter(table.Row{"Listings", humanize.Comma(int64(report.Price.Count)), "", ""})
	t.Render()

	printGroups(w, "By city", report.ByCity)
	printGroups(w, "By layout", report.ByLayout)
	printGroups(w, "By district", report.ByDistrict)
}

func printGroups(w io.Writer, title string, groups []GroupStats) {
	if len(groups) == 0 {
		return
	}
	perCity := hasCity(groups)
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(title)
	header := table.Row{"Group", "Count", "Share", "Mean rent", "Median rent", "Mean per sqm"}
	if perCity {
		header = append(table.Row{"City"}, header...)
	}
	t.AppendHeader(header)
	for _, g := range groups {
		row := table.Row{
			g.Key,
			humanize.Comma(int64(g.Count)),
			pct(g.Share),
			humanize.CommafWithDigits(g.Price.Mean, 0),
			humanize.CommafWithDigits(g.Price.Median, 0),
			humanize.CommafWithDigits(g.PricePerSqm.Mean, 1),
		}
		if perCity {
			row = append(table.Row{g.City}, row...)
		}
		t.AppendRow(row)
	}
	t.Render()
}

type DistrictCount struct {
	District string
	Count    int
}

// CrawlOverview is the quick summary printed after a crawl.
type CrawlOverview struct {
	Listings     int
	Priced       int
	MeanPrice    float64
	MinPrice     float64
	MaxPrice     float64
	MeanArea     float64
	TopDistricts []DistrictCount
}

// Overview summarises raw crawl output. Missing prices and areas are
// skipped rather than counted as zero.
func Overview(listings []models.Listing, top int) CrawlOverview {
	o := CrawlOverview{Listings: len(listings)}

	var prices, areas []float64
	counts := make(map[string]int)
	for _, l := range listings {
		if l.Price != nil {
			prices = append(prices, float64(*l.Price))
		}
		if l.Area != nil {
			areas = append(areas, *l.Area)
		}
		if l.District != "" {
			counts[l.District]++
		}
	}

	ps := Summarize(prices)
	o.Priced = ps.Count
	o.MeanPrice, o.MinPrice, o.MaxPrice = ps.Mean, ps.Min, ps.Max
	o.MeanArea = Summarize(areas).Mean

	for d, n := range counts {
		o.TopDistricts = append(o.TopDistricts, DistrictCount{d, n})
	}
	sort.Slice(o.TopDistricts, func(i, j int) bool {
		if o.TopDistricts[i].Count != o.TopDistricts[j].Count {
			return o.TopDistricts[i].Count > o.TopDistricts[j].Count
		}
		return o.TopDistricts[i].District < o.TopDistricts[j].District
	})
	if top > 0 && len(o.TopDistricts) > top {
		o.TopDistricts = o.TopDistricts[:top]
	}
	return o
}

func PrintOverview(w io.Writer, siteID string, o CrawlOverview) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Crawl overview: " + siteID)
	t.AppendRows([]table.Row{
		{"Listings", humanize.Comma(int64(o.Listings))},
		{"With price", humanize.Comma(int64(o.Priced))},
		{"Mean rent", humanize.CommafWithDigits(o.MeanPrice, 2)},
		{"Min rent", humanize.CommafWithDigits(o.MinPrice, 0)},
		{"Max rent", humanize.CommafWithDigits(o.MaxPrice, 0)},
		{"Mean area", humanize.CommafWithDigits(o.MeanArea, 2)},
	})
	for _, d := range o.TopDistricts {
		t.AppendRow(table.Row{"District " + d.District, humanize.Comma(int64(d.Count))})
	}
	t.Render()
}
