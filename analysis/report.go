package analysis

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

const ReportFileName = "rental_analysis_report.md"

//go:embed report.md.tmpl
var reportTemplate string

var reportFuncs = template.FuncMap{
	"count":        func(n int) string { return humanize.Comma(int64(n)) },
	"money":        func(v float64) string { return humanize.CommafWithDigits(v, 0) },
	"num":          func(v float64) string { return humanize.CommafWithDigits(v, 1) },
	"base":         filepath.Base,
	"summaryTable": summaryTable,
	"groupTable":   groupTable,
	"layoutTable":  layoutTable,
	"salaryTable":  salaryTable,
}

var markdownReport = template.Must(template.New("report").Funcs(reportFuncs).Parse(reportTemplate))

func RenderMarkdown(w io.Writer, report *Report) error {
	return markdownReport.Execute(w, report)
}

// WriteMarkdown renders the report to dir/ReportFileName.
func WriteMarkdown(report *Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, ReportFileName)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := RenderMarkdown(f, report); err != nil {
		f.Close()
		return "", fmt.Errorf("render report: %w", err)
	}
	return path, f.Close()
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func summaryTable(price, perSqm Summary) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"指标", "月租金 (元)", "单位面积租金 (元/㎡)"})
	rows := []struct {
		name string
		a, b float64
	}{
		{"均价", price.Mean, perSqm.Mean},
		{"中位数", price.Median, perSqm.Median},
		{"最高价", price.Max, perSqm.Max},
		{"最低价", price.Min, perSqm.Min},
		{"标准差", price.Std, perSqm.Std},
		{"25% 分位", price.Q25, perSqm.Q25},
		{"75% 分位", price.Q75, perSqm.Q75},
	}
	for _, r := range rows {
		t.AppendRow(table.Row{r.name, humanize.CommafWithDigits(r.a, 0), humanize.CommafWithDigits(r.b, 1)})
	}
	t.AppendRow(table.Row{"样本数", humanize.Comma(int64(price.Count)), humanize.Comma(int64(perSqm.Count))})
	return t.RenderMarkdown()
}

// groupTable renders pooled groups as-is. Per-city groups get a city column
// and a rank within the city, which the district chart uses as its labels.
func groupTable(groups []GroupStats) string {
	perCity := hasCity(groups)
	t := table.NewWriter()
	header := table.Row{"分组", "样本数", "占比", "平均租金", "租金中位数", "最低", "最高", "平均单价", "平均面积"}
	if perCity {
		header = append(table.Row{"城市", "#"}, header...)
	}
	t.AppendHeader(header)
	rank := 0
	for i, g := range groups {
		row := table.Row{
			g.Key,
			humanize.Comma(int64(g.Count)),
			pct(g.Share),
			humanize.CommafWithDigits(g.Price.Mean, 0),
			humanize.CommafWithDigits(g.Price.Median, 0),
			humanize.CommafWithDigits(g.Price.Min, 0),
			humanize.CommafWithDigits(g.Price.Max, 0),
			humanize.CommafWithDigits(g.PricePerSqm.Mean, 1),
			humanize.CommafWithDigits(g.Area.Mean, 1),
		}
		if perCity {
			if i == 0 || groups[i-1].City != g.City {
				rank = 0
			}
			rank++
			row = append(table.Row{g.City, rank}, row...)
		}
		t.AppendRow(row)
	}
	return t.RenderMarkdown()
}

func hasCity(groups []GroupStats) bool {
	for _, g := range groups {
		if g.City != "" {
			return true
		}
	}
	return false
}

func layoutTable(details []LayoutDetail) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"户型", "样本数", "占比", "平均租金", "中位数", "25%", "75%", "标准差", "平均面积", "面积标准差", "平均单价"})
	for _, d := range details {
		t.AppendRow(table.Row{
			d.Label,
			humanize.Comma(int64(d.Price.Count)),
			pct(d.Share),
			humanize.CommafWithDigits(d.Price.Mean, 0),
			humanize.CommafWithDigits(d.Price.Median, 0),
			humanize.CommafWithDigits(d.Price.Q25, 0),
			humanize.CommafWithDigits(d.Price.Q75, 0),
			humanize.CommafWithDigits(d.Price.Std, 0),
			humanize.CommafWithDigits(d.Area.Mean, 1),
			humanize.CommafWithDigits(d.Area.Std, 1),
			humanize.CommafWithDigits(d.MeanPricePerSqm, 1),
		})
	}
	return t.RenderMarkdown()
}

func salaryTable(ratios []SalaryRatio) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"城市", "平均工资", "平均租金", "租金收入比", "单位面积租金收入比"})
	for _, r := range ratios {
		t.AppendRow(table.Row{
			r.City,
			humanize.CommafWithDigits(r.AvgSalary, 0),
			humanize.CommafWithDigits(r.AvgRent, 0),
			pct(r.RentToSalary),
			pct(r.SqmRentToSalary),
		})
	}
	return t.RenderMarkdown()
}
