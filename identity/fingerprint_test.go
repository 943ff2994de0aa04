package identity

import (
	"testing"

	"rental_scrooper/models"
)

func TestDedupKeyIgnoresTitleDecoration(t *testing.T) {
	a := models.Listing{Title: "整租·望京西园 1室1厅 南", Price: models.IntPtr(6500), Area: models.FloatPtr(45)}
	b := models.Listing{Title: "  整租 望京西园  1室1厅 南 ", Price: models.IntPtr(6500), Area: models.FloatPtr(45.0)}

	if DedupKey(&a) != DedupKey(&b) {
		t.Fatalf("expected equal keys, got %q and %q", DedupKey(&a), DedupKey(&b))
	}
	if Fingerprint(&a) != Fingerprint(&b) {
		t.Fatalf("expected equal fingerprints")
	}
	if len(Fingerprint(&a)) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(Fingerprint(&a)))
	}
}

func TestDedupKeyDistinguishesPriceAndArea(t *testing.T) {
	base := models.Listing{Title: "合租·青年汇", Price: models.IntPtr(2800), Area: models.FloatPtr(12)}
	price := base
	price.Price = models.IntPtr(2900)
	area := base
	area.Area = models.FloatPtr(12.5)
	missing := base
	missing.Price = nil

	for name, other := range map[string]models.Listing{"price": price, "area": area, "missing price": missing} {
		if DedupKey(&base) == DedupKey(&other) {
			t.Fatalf("%s: expected different keys, both %q", name, DedupKey(&base))
		}
	}
}
