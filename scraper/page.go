package scraper

import (
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"

	"rental_scrooper/logging"
	"rental_scrooper/models"
)

// ParsePage turns one listing page into a PageResult. A missing container
// and an empty container both produce an empty result with distinct status.
func ParsePage(page int, r io.Reader) (models.PageResult, error) {
	result := models.PageResult{Page: page}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		result.Status = models.PageStatusFetchFailed
		return result, fmt.Errorf("parse html: %w", err)
	}

	container := doc.Find(selContainer).First()
	if container.Length() == 0 {
		result.Status = models.PageStatusNoContainer
		logging.Warnf("page %d: listing container not found", page)
		return result, nil
	}

	items := container.Find(selItem)
	if items.Length() == 0 {
		result.Status = models.PageStatusEmpty
		logging.Infof("page %d: no listings, probably past the last page", page)
		return result, nil
	}

	items.Each(func(i int, item *goquery.Selection) {
		listing, ok := safeParseListing(page, i, item)
		if !ok {
			result.Dropped++
			return
		}
		if listing.PriceUnparsed {
			result.UnparsedPrices++
			logging.Warnf("page %d item %d: unparseable price for %q", page, i, listing.Title)
		}
		result.Listings = append(result.Listings, listing)
	})

	if len(result.Listings) == 0 {
		result.Status = models.PageStatusEmpty
	} else {
		result.Status = models.PageStatusOK
	}
	return result, nil
}

// safeParseListing keeps one broken card from taking the page down with it.
func safeParseListing(page, index int, item *goquery.Selection) (listing models.Listing, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("page %d item %d: dropped listing: %v", page, index, r)
			ok = false
		}
	}()
	return parseListing(item), true
}

// parseListing is swapped in tests to exercise the recovery path.
var parseListing = ParseListing
