package analysis

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental_scrooper/config"
	"rental_scrooper/models"
	"rental_scrooper/storage"
)

func rec(title string, price int, area float64, beds int, district string) Record {
	return Record{
		Listing: models.Listing{
			Title:       title,
			RentType:    models.RentTypeWhole,
			District:    district,
			Area:        models.FloatPtr(area),
			Price:       models.IntPtr(price),
			Bedrooms:    models.IntPtr(beds),
			Orientation: "南 北",
			FloorLevel:  "中",
		},
		City: "北京",
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{4, 1, 3, 2})
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 2.5, s.Mean, 1e-9)
	assert.InDelta(t, 2.5, s.Median, 1e-9)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.InDelta(t, 1.2909944, s.Std, 1e-6)

	assert.Equal(t, Summary{}, Summarize(nil))

	one := Summarize([]float64{7})
	assert.Equal(t, 0.0, one.Std)
	assert.Equal(t, 7.0, one.Median)
}

func TestClean(t *testing.T) {
	noPrice := rec("无价格", 0, 50, 1, "朝阳")
	noPrice.Price = nil

	records := []Record{
		rec("A", 5000, 50, 1, "朝阳"),
		rec("A", 5000, 50, 1, "朝阳"), // duplicate
		noPrice,
		rec("B", 0, 40, 1, "朝阳"),         // zero price
		rec("C", 200000, 100, 3, "海淀"),   // price outlier
		rec("D", 3000, 5, 1, "海淀"),       // area outlier
		rec("E", 8000, 80, 2, ""),        // unknown district
	}

	out, report := Clean(records, DefaultCleanOptions())
	require.Len(t, out, 2)
	assert.Equal(t, CleanReport{Input: 7, Unusable: 2, Outliers: 2, Duplicates: 1, Output: 2}, report)

	assert.InDelta(t, 100.0, out[0].PricePerSqm, 1e-9)
	assert.Equal(t, LayoutOne, out[0].Layout)
	assert.Equal(t, "南北", out[0].OrientationStd)
	assert.Equal(t, FloorMid, out[0].FloorPosition)
	assert.Equal(t, IndividualAgency, out[0].Agency)
	assert.Equal(t, UnknownDistrict, out[1].District)

	kept, report := Clean(records, CleanOptions{})
	assert.Len(t, kept, 4)
	assert.Equal(t, 0, report.Outliers)
}

func TestDerivedFields(t *testing.T) {
	assert.Equal(t, LayoutOther, LayoutCategory(nil))
	assert.Equal(t, LayoutOther, LayoutCategory(models.IntPtr(0)))
	assert.Equal(t, LayoutThree, LayoutCategory(models.IntPtr(3)))
	assert.Equal(t, LayoutFour, LayoutCategory(models.IntPtr(6)))

	assert.Equal(t, OrientationUnknown, StandardizeOrientation(""))
	assert.Equal(t, "东南", StandardizeOrientation("东南"))
	assert.Equal(t, "西北", StandardizeOrientation("西 北"))
	assert.Equal(t, "南", StandardizeOrientation("南"))
	assert.Equal(t, OrientationOther, StandardizeOrientation("暂无"))

	assert.Equal(t, FloorLow, FloorPosition("低"))
	assert.Equal(t, FloorLow, FloorPosition("底"))
	assert.Equal(t, FloorHigh, FloorPosition("高"))
	assert.Equal(t, FloorUnknown, FloorPosition(""))

	assert.Equal(t, "自如", Agency(" 自如 "))
	assert.Equal(t, IndividualAgency, Agency(""))
}

func TestPriceBands(t *testing.T) {
	var records []Record
	for i, price := range []int{1000, 2000, 3000, 4000, 5000, 6000, 7000, 8000} {
		records = append(records, rec(string(rune('A'+i)), price, 50, 1, "朝阳"))
	}
	out, _ := Clean(records, CleanOptions{})
	require.Len(t, out, 8)
	assert.Equal(t, "低价", out[0].PriceBand)
	assert.Equal(t, "低价", out[1].PriceBand)
	assert.Equal(t, "中低价", out[2].PriceBand)
	assert.Equal(t, "高价", out[7].PriceBand)
}

func TestAnalyze(t *testing.T) {
	var records []Record
	for i := 0; i < 10; i++ {
		records = append(records, rec("一居"+string(rune('a'+i)), 4000+i*100, 40, 1, "朝阳"))
	}
	for i := 0; i < 4; i++ {
		records = append(records, rec("二居"+string(rune('a'+i)), 6000, 60, 2, "海淀"))
	}
	cleaned, _ := Clean(records, DefaultCleanOptions())

	report := Analyze(cleaned, map[string]float64{"北京": 10000})

	assert.Equal(t, 14, report.Price.Count)
	require.Len(t, report.ByDistrict, 1, "districts below the sample floor are dropped")
	assert.Equal(t, "朝阳", report.ByDistrict[0].Key)

	require.Len(t, report.ByLayout, 2)
	assert.Equal(t, LayoutTwo, report.ByLayout[0].Key, "ordered by mean price")

	require.Len(t, report.Bedrooms, 2)
	assert.InDelta(t, 4450, report.Bedrooms[0].Price.Mean, 1e-9)
	assert.InDelta(t, 10.0/14.0, report.Bedrooms[0].Share, 1e-9)

	require.Len(t, report.LayoutSteps, 1)
	assert.InDelta(t, 1550, report.LayoutSteps[0].Difference, 1e-9)

	require.Len(t, report.Salary, 1)
	assert.InDelta(t, report.Price.Mean/10000, report.Salary[0].RentToSalary, 1e-9)

	require.Len(t, report.ByOrientation, 1)
	assert.Equal(t, "南北", report.ByOrientation[0].Key)
}

func TestLoadDataset(t *testing.T) {
	dir := t.TempDir()
	w := storage.NewDatasetWriter(dir, "bj_rental_data", models.DefaultFields)
	_, _, err := w.Save([]models.Listing{rec("A", 5000, 50, 1, "朝阳").Listing}, storage.ModeOverwrite)
	require.NoError(t, err)

	cfg := &config.Config{
		Output: config.OutputConfig{Dir: dir},
		Sites: map[string]*config.SiteConfig{
			"bj": {ID: "bj", City: "北京", OutputPrefix: "bj_rental_data", AvgSalary: 11297},
		},
	}

	records, err := LoadDataset(cfg)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "北京", records[0].City)
	assert.Equal(t, "bj", records[0].SiteID)

	latest, err := LatestDataset(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bj_rental_data.csv"), latest)

	assert.Equal(t, map[string]float64{"北京": 11297}, Salaries(cfg))

	_, err = LoadDataset(&config.Config{Output: config.OutputConfig{Dir: t.TempDir()}})
	assert.Error(t, err)
}

func TestReportOutputs(t *testing.T) {
	var records []Record
	for i := 0; i < 12; i++ {
		records = append(records, rec("房源"+string(rune('a'+i)), 3000+i*250, 30+float64(i)*5, 1+i%3, "朝阳"))
	}
	cleaned, _ := Clean(records, DefaultCleanOptions())
	report := Analyze(cleaned, nil)

	dir := t.TempDir()
	charts, err := RenderCharts(report, cleaned, dir)
	require.NoError(t, err)
	assert.NotEmpty(t, charts)
	for _, c := range charts {
		info, err := os.Stat(c)
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	}
	report.Charts = charts

	path, err := WriteMarkdown(report, dir)
	require.NoError(t, err)
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "# 租房市场分析报告")
	assert.Contains(t, string(body), "## 户型分析")
	assert.Contains(t, string(body), "price_distribution.png")
	assert.NotContains(t, string(body), "租金收入比")

	var buf bytes.Buffer
	PrintReport(&buf, report)
	assert.Contains(t, buf.String(), "Rent summary")
}

func TestOverview(t *testing.T) {
	a := rec("A", 4000, 40, 1, "朝阳").Listing
	b := rec("B", 6000, 60, 2, "朝阳").Listing
	c := rec("C", 0, 50, 2, "海淀").Listing
	c.Price = nil

	o := Overview([]models.Listing{a, b, c}, 1)
	assert.Equal(t, 3, o.Listings)
	assert.Equal(t, 2, o.Priced)
	assert.InDelta(t, 5000, o.MeanPrice, 1e-9)
	assert.InDelta(t, 50, o.MeanArea, 1e-9)
	assert.Equal(t, []DistrictCount{{"朝阳", 2}}, o.TopDistricts)

	var buf bytes.Buffer
	PrintOverview(&buf, "bj", o)
	assert.Contains(t, buf.String(), "Crawl overview: bj")
}

func cityRec(title string, price int, city, siteID, platform string) Record {
	r := rec(title, price, 40, 1, "中心区")
	r.City = city
	r.SiteID = siteID
	r.Platform = platform
	return r
}

func findGroup(t *testing.T, groups []GroupStats, city, key string) GroupStats {
	t.Helper()
	for _, g := range groups {
		if g.City == city && g.Key == key {
			return g
		}
	}
	t.Fatalf("no group %s/%s in %+v", city, key, groups)
	return GroupStats{}
}

func TestAnalyzeKeepsCitiesApart(t *testing.T) {
	var records []Record
	for i := 0; i < 3; i++ {
		records = append(records, cityRec("北京一居"+string(rune('a'+i)), 8000, "北京", "bj", "链家"))
	}
	for i, platform := range []string{"链家", "链家", "自如"} {
		records = append(records, cityRec("上海一居"+string(rune('a'+i)), 4000, "上海", "sh", platform))
	}
	cleaned, _ := Clean(records, DefaultCleanOptions())
	require.Len(t, cleaned, 6)

	report := Analyze(cleaned, nil)

	require.Len(t, report.ByLayout, 2)
	bj := findGroup(t, report.ByLayout, "北京", LayoutOne)
	sh := findGroup(t, report.ByLayout, "上海", LayoutOne)
	assert.Equal(t, 3, bj.Count)
	assert.InDelta(t, 8000, bj.Price.Mean, 1e-9)
	assert.Equal(t, 3, sh.Count)
	assert.InDelta(t, 4000, sh.Price.Mean, 1e-9)
	assert.InDelta(t, 1.0, bj.Share, 1e-9)

	require.Len(t, report.ByAgency, 3)
	assert.InDelta(t, 1.0, findGroup(t, report.ByAgency, "北京", "链家").Share, 1e-9)
	assert.InDelta(t, 2.0/3.0, findGroup(t, report.ByAgency, "上海", "链家").Share, 1e-9)
	assert.InDelta(t, 1.0/3.0, findGroup(t, report.ByAgency, "上海", "自如").Share, 1e-9)

	var md bytes.Buffer
	require.NoError(t, RenderMarkdown(&md, report))
	assert.Contains(t, md.String(), "城市")

	var term bytes.Buffer
	PrintReport(&term, report)
	assert.Contains(t, term.String(), "上海")
	assert.Contains(t, term.String(), "北京")
}

func TestRenderChartsPerCity(t *testing.T) {
	var records []Record
	for i := 0; i < 10; i++ {
		records = append(records, cityRec("北京房源"+string(rune('a'+i)), 6000+i*100, "北京", "bj", "链家"))
		records = append(records, cityRec("上海房源"+string(rune('a'+i)), 5000+i*100, "上海", "sh", "链家"))
	}
	cleaned, _ := Clean(records, DefaultCleanOptions())
	report := Analyze(cleaned, map[string]float64{"北京": 11297, "上海": 12183})
	require.Len(t, report.ByDistrict, 2)
	require.Len(t, report.Salary, 2)

	charts, err := RenderCharts(report, cleaned, t.TempDir())
	require.NoError(t, err)

	var names []string
	for _, c := range charts {
		names = append(names, filepath.Base(c))
	}
	assert.Contains(t, names, "layout_mean_price.png")
	assert.Contains(t, names, "district_mean_price.png")
	assert.Contains(t, names, "salary_ratio.png")

	assert.Equal(t, map[string]string{"北京": "BJ", "上海": "SH"}, cityLabels(cleaned))
	assert.Equal(t, map[string]string{"北京": "C1"}, cityLabels([]Record{rec("A", 1000, 30, 1, "朝阳")}))
}
