package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"rental_scrooper/models"
)

func sampleListing(title string, price int, area float64) models.Listing {
	return models.Listing{
		Title:       title,
		RentType:    models.RentTypeWhole,
		District:    "朝阳",
		SubDistrict: "望京",
		Community:   "望京西园",
		Area:        models.FloatPtr(area),
		Orientation: "南",
		Bedrooms:    models.IntPtr(1),
		LivingRooms: models.IntPtr(1),
		Bathrooms:   models.IntPtr(1),
		FloorLevel:  "中",
		TotalFloors: models.IntPtr(18),
		Tags:        []string{"近地铁", "精装"},
		Platform:    "链家",
		Price:       models.IntPtr(price),
	}
}

func TestDatasetWriterRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	w := NewDatasetWriter(dir, "beijing_rental_data", models.DefaultFields)

	partial := models.Listing{Title: "合租·青年汇 4居室 南卧", Price: models.IntPtr(2300)}
	in := []models.Listing{sampleListing("整租·望京西园 1室1厅 南", 6500, 45.5), partial}

	path, n, err := w.Save(in, ModeOverwrite)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, filepath.Join(dir, "beijing_rental_data.csv"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}), "missing UTF-8 BOM")
	require.Equal(t, 1, bytes.Count(raw, []byte{0xEF, 0xBB, 0xBF}))

	out, err := ReadDataset(path)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDatasetWriterAppendKeepsExistingRowsFirst(t *testing.T) {
	dir := t.TempDir()
	w := NewDatasetWriter(dir, "bj", models.DefaultFields)

	a := []models.Listing{sampleListing("A1", 5000, 40), sampleListing("A2", 5100, 41)}
	b := []models.Listing{sampleListing("B1", 7000, 60), sampleListing("A1", 5000, 40), sampleListing("B3", 7200, 62)}

	_, _, err := w.Save(a, ModeAppend)
	require.NoError(t, err)
	_, n, err := w.Save(b, ModeAppend)
	require.NoError(t, err)
	require.Equal(t, len(a)+len(b), n)

	out, err := ReadDataset(w.Path())
	require.NoError(t, err)
	if diff := cmp.Diff(append(append([]models.Listing{}, a...), b...), out); diff != "" {
		t.Fatalf("append mismatch (-want +got):\n%s", diff)
	}
}

func TestDatasetWriterOverwriteReplaces(t *testing.T) {
	w := NewDatasetWriter(t.TempDir(), "bj", models.DefaultFields)

	_, _, err := w.Save([]models.Listing{sampleListing("old", 1, 1)}, ModeOverwrite)
	require.NoError(t, err)
	_, n, err := w.Save([]models.Listing{sampleListing("new", 2, 2)}, ModeOverwrite)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	out, err := ReadDataset(w.Path())
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "new", out[0].Title)
}

func TestDatasetWriterAppendFallsBackOnUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	w := NewDatasetWriter(dir, "bj", models.DefaultFields)
	require.NoError(t, os.WriteFile(w.Path(), []byte("title,price\n\"unterminated,1\n"), 0644))

	_, n, err := w.Save([]models.Listing{sampleListing("fresh", 3000, 20)}, ModeAppend)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	out, err := ReadDataset(w.Path())
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "fresh", out[0].Title)
}

func TestDatasetWriterAppendPreservesRowsVerbatim(t *testing.T) {
	dir := t.TempDir()
	fields := []string{models.FieldTitle, models.FieldArea, models.FieldPrice}
	w := NewDatasetWriter(dir, "bj", fields)

	// Older export with a different column order and float formatting
	existing := "\ufeffprice,title,area\n4500.0,旧房源,45.00\n"
	require.NoError(t, os.WriteFile(w.Path(), []byte(existing), 0644))

	_, _, err := w.Save([]models.Listing{{Title: "新房源", Area: models.FloatPtr(30), Price: models.IntPtr(3000)}}, ModeAppend)
	require.NoError(t, err)

	header, records, err := readCSV(w.Path())
	require.NoError(t, err)
	require.Equal(t, fields, header)
	require.Equal(t, [][]string{
		{"旧房源", "45.00", "4500.0"},
		{"新房源", "30", "3000"},
	}, records)
}

func TestFormatListingUsesConfiguredColumns(t *testing.T) {
	l := sampleListing("t", 100, 10.25)
	row := FormatListing(&l, []string{models.FieldPrice, models.FieldTags, models.FieldArea, models.FieldCommunity})
	require.Equal(t, []string{"100", "近地铁|精装", "10.25", "望京西园"}, row)

	empty := models.Listing{}
	require.Equal(t, []string{"", "", ""}, FormatListing(&empty, []string{models.FieldPrice, models.FieldTags, models.FieldArea}))
}

func TestParseRecordToleratesBadNumbers(t *testing.T) {
	values := map[string]string{
		models.FieldTitle:    "x",
		models.FieldPrice:    "abc",
		models.FieldArea:     "",
		models.FieldBedrooms: "2.0",
		models.FieldTags:     "a| |b",
	}
	l := ParseRecord(func(f string) string { return values[f] })
	require.Nil(t, l.Price)
	require.Nil(t, l.Area)
	require.NotNil(t, l.Bedrooms)
	require.Equal(t, 2, *l.Bedrooms)
	require.Equal(t, []string{"a", "b"}, l.Tags)
}

func TestWriteCSVRemovesTempFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	// A directory in the target's place makes the final rename fail.
	path := filepath.Join(dir, "bj_rental_data.csv")
	require.NoError(t, os.Mkdir(path, 0755))

	err := writeCSV(path, []string{"title"}, [][]string{{"整租·望京西园 1室1厅"}})
	require.Error(t, err)

	_, statErr := os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(statErr), "temp file left behind: %v", statErr)
}
