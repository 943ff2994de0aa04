package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"rental_scrooper/config"
	"rental_scrooper/logging"
	"rental_scrooper/models"
	"rental_scrooper/storage"
)

const UnknownCity = "未知"

// Record is a listing with the fields derived during cleaning.
type Record struct {
	models.Listing

	SiteID         string
	City           string
	PricePerSqm    float64
	Layout         string
	OrientationStd string
	FloorPosition  string
	Agency         string
	PriceBand      string
	AreaBand       string
}

// DatasetFiles lists the CSV datasets in dir, newest first.
func DatasetFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}

	type fileInfo struct {
		path    string
		modUnix int64
	}
	var files []fileInfo
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, fileInfo{m, info.ModTime().UnixNano()})
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].modUnix > files[j].modUnix })

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}

// LatestDataset returns the most recently modified dataset in dir.
func LatestDataset(dir string) (string, error) {
	files, err := DatasetFiles(dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no dataset files in %s", dir)
	}
	return files[0], nil
}

// LoadDataset reads the given files, or every dataset in the output
// directory when none are given, tagging rows with the city of the site
// whose prefix names the file.
func LoadDataset(cfg *config.Config, paths ...string) ([]Record, error) {
	if len(paths) == 0 {
		files, err := DatasetFiles(cfg.Output.Dir)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no dataset files in %s", cfg.Output.Dir)
		}
		paths = files
	}

	var records []Record
	for _, path := range paths {
		listings, err := storage.ReadDataset(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}

		siteID, city := siteForFile(cfg, path)
		for _, l := range listings {
			records = append(records, Record{Listing: l, SiteID: siteID, City: city})
		}
		logging.Infof("loaded %d rows from %s (city %s)", len(listings), path, city)
	}
	return records, nil
}

func siteForFile(cfg *config.Config, path string) (string, string) {
	name := filepath.Base(path)
	if site := cfg.SiteByPrefix(name); site != nil {
		city := site.City
		if city == "" {
			city = site.ID
		}
		return site.ID, city
	}

	// <city code>_... with no matching site config
	if code, _, ok := strings.Cut(strings.TrimSuffix(name, filepath.Ext(name)), "_"); ok && code != "" {
		return code, code
	}
	return "", UnknownCity
}

// FromListings wraps freshly crawled listings for analysis.
func FromListings(listings []models.Listing, siteID, city string) []Record {
	records := make([]Record, len(listings))
	for i, l := range listings {
		records[i] = Record{Listing: l, SiteID: siteID, City: city}
	}
	return records
}
