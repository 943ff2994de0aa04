package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"rental_scrooper/models"
)

var (
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	// Title decorations the portal adds or drops between crawls
	decorationRegex = regexp.MustCompile(`[·•・|｜]`)
)

// DedupKey identifies a listing by (title, price, area). Listings that agree
// on all three are treated as one advertisement.
func DedupKey(l *models.Listing) string {
	return fmt.Sprintf("%s|%s|%s", NormalizeTitle(l.Title), intKey(l.Price), floatKey(l.Area))
}

// Fingerprint is the hashed DedupKey, short enough for an index column.
func Fingerprint(l *models.Listing) string {
	hash := sha256.Sum256([]byte(DedupKey(l)))
	return hex.EncodeToString(hash[:16])
}

func NormalizeTitle(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	title = decorationRegex.ReplaceAllString(title, " ")
	title = multiSpaceRegex.ReplaceAllString(title, " ")
	return strings.TrimSpace(title)
}

func intKey(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatKey(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
