package scraper

import (
	"bytes"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"rental_scrooper/models"
)

func TestParsePage_Listings(t *testing.T) {
	result, err := ParsePage(1, bytes.NewReader(loadFixture(t, "zufang_page.html")))
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	if result.Status != models.PageStatusOK {
		t.Fatalf("expected ok status, got %s", result.Status)
	}
	if len(result.Listings) != 3 {
		t.Fatalf("expected 3 listings, got %d", len(result.Listings))
	}
	if result.UnparsedPrices != 1 {
		t.Fatalf("expected 1 unparsed price, got %d", result.UnparsedPrices)
	}
	if result.Listings[0].Title != "整租·望京西园三区 1室1厅 南" || result.Listings[2].Community != "万科公寓" {
		t.Fatalf("listings out of page order: %q, %q", result.Listings[0].Title, result.Listings[2].Community)
	}
}

func TestParsePage_EmptyAndMissingContainer(t *testing.T) {
	tests := []struct {
		fixture string
		status  models.PageStatus
	}{
		{"empty_list.html", models.PageStatusEmpty},
		{"captcha.html", models.PageStatusNoContainer},
	}

	for _, tt := range tests {
		result, err := ParsePage(7, bytes.NewReader(loadFixture(t, tt.fixture)))
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tt.fixture, err)
		}
		if result.Status != tt.status {
			t.Fatalf("%s: expected status %s, got %s", tt.fixture, tt.status, result.Status)
		}
		if !result.IsEmpty() || result.Page != 7 {
			t.Fatalf("%s: expected empty result for page 7, got %+v", tt.fixture, result)
		}
	}
}

func TestParsePage_DropsPanickingListing(t *testing.T) {
	calls := 0
	parseListing = func(item *goquery.Selection) models.Listing {
		calls++
		if calls == 2 {
			panic("malformed card")
		}
		return ParseListing(item)
	}
	defer func() { parseListing = ParseListing }()

	result, err := ParsePage(1, strings.NewReader(string(loadFixture(t, "zufang_page.html"))))
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	if result.Dropped != 1 {
		t.Fatalf("expected 1 dropped listing, got %d", result.Dropped)
	}
	if len(result.Listings) != 2 {
		t.Fatalf("expected 2 surviving listings, got %d", len(result.Listings))
	}
	if result.Listings[1].Community != "万科公寓" {
		t.Fatalf("expected third card to survive, got %+v", result.Listings[1])
	}
}
