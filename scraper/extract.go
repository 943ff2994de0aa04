package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"rental_scrooper/models"
)

const (
	selContainer   = "div.content__list"
	selItem        = "div.content__list--item"
	selTitle       = "p.content__list--item--title"
	selDescription = "p.content__list--item--des"
	selHidden      = "span.hide"
	selBottom      = "p.content__list--item--bottom"
	selBrand       = "p.content__list--item--brand"
	selBrandName   = "span.brand"
	selPrice       = "span.content__list--item-price"
)

var (
	areaRegex        = regexp.MustCompile(`(\d+\.?\d*)㎡`)
	layoutRegex      = regexp.MustCompile(`(\d+)室(\d+)厅(\d+)卫`)
	floorRegex       = regexp.MustCompile(`([\p{L}\p{N}_]+)楼层.*?[(（](\d+)层[)）]`)
	orientationRegex = regexp.MustCompile(`^[东南西北\s]+$`)
	whitespaceRegex  = regexp.MustCompile(`\s+`)
)

// ParseListing extracts every field it can find from one listing card.
// Fields whose markup is missing or malformed stay unset.
func ParseListing(item *goquery.Selection) models.Listing {
	var l models.Listing

	if title, ok := extractTitle(item); ok {
		l.Title = title
		l.RentType = rentType(title)
	}

	if des := item.Find(selDescription).First(); des.Length() > 0 {
		text := compactText(des)

		if district, sub, community, ok := extractHierarchy(des); ok {
			l.District, l.SubDistrict, l.Community = district, sub, community
		}
		if area, ok := extractArea(text); ok {
			l.Area = &area
		}
		if orientation, ok := extractOrientation(text); ok {
			l.Orientation = orientation
		}
		if beds, living, baths, ok := extractLayout(text); ok {
			l.Bedrooms, l.LivingRooms, l.Bathrooms = &beds, &living, &baths
		}
		if level, total, ok := extractFloor(des.Find(selHidden).First()); ok {
			l.FloorLevel = level
			l.TotalFloors = &total
		}
	}

	if tags, ok := extractTags(item); ok {
		l.Tags = tags
	}
	if platform, ok := extractPlatform(item); ok {
		l.Platform = platform
	}

	price, found, ok := extractPrice(item)
	if ok {
		l.Price = &price
	} else if found {
		l.PriceUnparsed = true
	}

	return l
}

func extractTitle(item *goquery.Selection) (string, bool) {
	el := item.Find(selTitle).First()
	if el.Length() == 0 {
		return "", false
	}
	title := normalizeSpace(el.Text())
	return title, title != ""
}

func rentType(title string) string {
	switch {
	case strings.Contains(title, models.RentTypeWhole):
		return models.RentTypeWhole
	case strings.Contains(title, models.RentTypeShared):
		return models.RentTypeShared
	default:
		return models.RentTypeOther
	}
}

// extractHierarchy needs all three of district, sub-district and community
// links; partial hierarchies are ignored.
func extractHierarchy(des *goquery.Selection) (string, string, string, bool) {
	links := des.Find("a")
	if links.Length() < 3 {
		return "", "", "", false
	}
	return compactText(links.Eq(0)), compactText(links.Eq(1)), compactText(links.Eq(2)), true
}

func extractArea(text string) (float64, bool) {
	m := areaRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// extractOrientation picks the first slash-delimited segment made only of
// compass characters.
func extractOrientation(text string) (string, bool) {
	parts := strings.Split(text, "/")
	if len(parts) < 2 {
		return "", false
	}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part != "" && orientationRegex.MatchString(part) {
			return whitespaceRegex.ReplaceAllString(part, " "), true
		}
	}
	return "", false
}

func extractLayout(text string) (int, int, int, bool) {
	m := layoutRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, 0, false
	}
	beds, err1 := strconv.Atoi(m[1])
	living, err2 := strconv.Atoi(m[2])
	baths, err3 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return beds, living, baths, true
}

func extractFloor(hidden *goquery.Selection) (string, int, bool) {
	if hidden.Length() == 0 {
		return "", 0, false
	}
	m := floorRegex.FindStringSubmatch(compactText(hidden))
	if m == nil {
		return "", 0, false
	}
	total, err := strconv.Atoi(m[2])
	if err != nil || total <= 0 {
		return "", 0, false
	}
	return m[1], total, true
}

func extractTags(item *goquery.Selection) ([]string, bool) {
	var tags []string
	item.Find(selBottom).First().Find("i").Each(func(_ int, s *goquery.Selection) {
		if tag := normalizeSpace(s.Text()); tag != "" {
			tags = append(tags, tag)
		}
	})
	return tags, len(tags) > 0
}

func extractPlatform(item *goquery.Selection) (string, bool) {
	brand := item.Find(selBrand).First()
	if brand.Length() == 0 {
		return "", false
	}
	if name := brand.Find(selBrandName).First(); name.Length() > 0 {
		if v := normalizeSpace(name.Text()); v != "" {
			return v, true
		}
	}
	v := normalizeSpace(brand.Text())
	return v, v != ""
}

// extractPrice reports the parsed price, whether a price element was present
// at all, and whether its text was a number.
func extractPrice(item *goquery.Selection) (int, bool, bool) {
	em := item.Find(selPrice).First().Find("em").First()
	if em.Length() == 0 {
		return 0, false, false
	}
	text := strings.ReplaceAll(strings.TrimSpace(em.Text()), ",", "")
	price, err := strconv.Atoi(text)
	if err != nil || price < 0 {
		return 0, true, false
	}
	return price, true, true
}

func normalizeSpace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// compactText drops all whitespace, which keeps the description patterns
// independent of template indentation.
func compactText(s *goquery.Selection) string {
	return whitespaceRegex.ReplaceAllString(s.Text(), "")
}
