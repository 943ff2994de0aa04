package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"rental_scrooper/logging"
	"rental_scrooper/models"
)

type WriteMode int

const (
	ModeOverwrite WriteMode = iota
	ModeAppend
)

// DatasetWriter persists listings to <dir>/<prefix>.csv as UTF-8 with a BOM
// so spreadsheet tools pick up the encoding.
type DatasetWriter struct {
	dir    string
	prefix string
	fields []string
}

func NewDatasetWriter(dir, prefix string, fields []string) *DatasetWriter {
	if len(fields) == 0 {
		fields = models.DefaultFields
	}
	return &DatasetWriter{
		dir:    dir,
		prefix: prefix,
		fields: fields,
	}
}

func (w *DatasetWriter) Path() string {
	return filepath.Join(w.dir, w.prefix+".csv")
}

// Save writes listings and returns the file path and total row count. In
// append mode rows already on disk come first and are carried over as-is.
func (w *DatasetWriter) Save(listings []models.Listing, mode WriteMode) (string, int, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", 0, fmt.Errorf("create output dir: %w", err)
	}

	path := w.Path()
	var rows [][]string

	if mode == ModeAppend {
		if _, err := os.Stat(path); err == nil {
			existing, err := w.loadExisting(path)
			if err != nil {
				logging.Warnf("could not read existing dataset %s, writing a fresh file: %v", path, err)
			} else {
				rows = existing
				logging.Infof("appending %d rows to %s (%d existing)", len(listings), path, len(existing))
			}
		}
	}

	for i := range listings {
		rows = append(rows, FormatListing(&listings[i], w.fields))
	}

	if err := writeCSV(path, w.fields, rows); err != nil {
		return "", 0, err
	}
	logging.Infof("saved %s (%d rows)", path, len(rows))
	return path, len(rows), nil
}

// loadExisting returns the stored rows rearranged to the writer's columns.
// Columns the file lacks come back empty.
func (w *DatasetWriter) loadExisting(path string) ([][]string, error) {
	header, records, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	for _, f := range w.fields {
		if _, ok := index[f]; !ok {
			logging.Warnf("existing dataset %s has no %q column", path, f)
		}
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(w.fields))
		for i, f := range w.fields {
			if j, ok := index[f]; ok && j < len(rec) {
				row[i] = rec[j]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// writeCSV writes to path.tmp and renames it over path; the temp file is
// removed when any step fails.
func writeCSV(path string, header []string, rows [][]string) (err error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	bom := transform.NewWriter(f, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(bom)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err := bom.Close(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(transform.NewReader(f, unicode.UTF8BOM.NewDecoder()))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%s: empty file", path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}
	return header, records, nil
}

// ReadDataset loads a dataset file back into listings. Values that do not
// parse are left unset.
func ReadDataset(path string) ([]models.Listing, error) {
	header, records, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}

	listings := make([]models.Listing, 0, len(records))
	for _, rec := range records {
		get := func(field string) string {
			if i, ok := index[field]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		listings = append(listings, ParseRecord(get))
	}
	return listings, nil
}

// FormatListing renders the listing's values in the given column order.
func FormatListing(l *models.Listing, fields []string) []string {
	row := make([]string, len(fields))
	for i, f := range fields {
		row[i] = formatField(l, f)
	}
	return row
}

func formatField(l *models.Listing, field string) string {
	switch field {
	case models.FieldTitle:
		return l.Title
	case models.FieldRentType:
		return l.RentType
	case models.FieldDistrict:
		return l.District
	case models.FieldSubDistrict:
		return l.SubDistrict
	case models.FieldCommunity:
		return l.Community
	case models.FieldArea:
		return formatFloat(l.Area)
	case models.FieldOrientation:
		return l.Orientation
	case models.FieldBedrooms:
		return formatInt(l.Bedrooms)
	case models.FieldLivingRooms:
		return formatInt(l.LivingRooms)
	case models.FieldBathrooms:
		return formatInt(l.Bathrooms)
	case models.FieldFloorLevel:
		return l.FloorLevel
	case models.FieldTotalFloors:
		return formatInt(l.TotalFloors)
	case models.FieldTags:
		return l.TagString()
	case models.FieldPlatform:
		return l.Platform
	case models.FieldPrice:
		return formatInt(l.Price)
	}
	return ""
}

// ParseRecord builds a listing from a column lookup.
func ParseRecord(get func(field string) string) models.Listing {
	l := models.Listing{
		Title:       get(models.FieldTitle),
		RentType:    get(models.FieldRentType),
		District:    get(models.FieldDistrict),
		SubDistrict: get(models.FieldSubDistrict),
		Community:   get(models.FieldCommunity),
		Area:        parseFloat(get(models.FieldArea)),
		Orientation: get(models.FieldOrientation),
		Bedrooms:    parseInt(get(models.FieldBedrooms)),
		LivingRooms: parseInt(get(models.FieldLivingRooms)),
		Bathrooms:   parseInt(get(models.FieldBathrooms)),
		FloorLevel:  get(models.FieldFloorLevel),
		TotalFloors: parseInt(get(models.FieldTotalFloors)),
		Platform:    get(models.FieldPlatform),
		Price:       parseInt(get(models.FieldPrice)),
	}
	if tags := get(models.FieldTags); tags != "" {
		for _, t := range strings.Split(tags, models.TagSeparator) {
			if t = strings.TrimSpace(t); t != "" {
				l.Tags = append(l.Tags, t)
			}
		}
	}
	return l
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// parseInt also accepts "4500.0", which spreadsheet exports produce.
func parseInt(s string) *int {
	if s == "" {
		return nil
	}
	if i, err := strconv.Atoi(s); err == nil {
		return &i
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return nil
	}
	i := int(f)
	return &i
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
