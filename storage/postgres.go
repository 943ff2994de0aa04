package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rental_scrooper/identity"
	"rental_scrooper/models"
)

// PostgresStore is the optional listing warehouse. Every crawl batch is
// copied in with its fingerprint so duplicates can be collapsed in SQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS crawl_batches (
		id UUID PRIMARY KEY,
		site_id TEXT NOT NULL,
		city TEXT,
		start_page INTEGER,
		end_page INTEGER,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		status TEXT NOT NULL,
		listings_found INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS listings (
		id BIGSERIAL PRIMARY KEY,
		batch_id UUID REFERENCES crawl_batches(id),
		site_id TEXT NOT NULL,
		city TEXT,
		fingerprint TEXT NOT NULL,
		title TEXT,
		rent_type TEXT,
		district TEXT,
		sub_district TEXT,
		community TEXT,
		area DOUBLE PRECISION,
		orientation TEXT,
		bedrooms INTEGER,
		living_rooms INTEGER,
		bathrooms INTEGER,
		floor_level TEXT,
		total_floors INTEGER,
		tags TEXT[],
		platform TEXT,
		price INTEGER,
		scraped_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_listings_fingerprint ON listings(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_listings_site_district ON listings(site_id, district);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// Batches
// =============================================================================

type Batch struct {
	ID            uuid.UUID
	SiteID        string
	City          string
	StartPage     int
	EndPage       int
	StartedAt     time.Time
	FinishedAt    *time.Time
	Status        models.RunStatus
	ListingsFound int
}

func (s *PostgresStore) CreateBatch(ctx context.Context, b *Batch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	query := `
		INSERT INTO crawl_batches (id, site_id, city, start_page, end_page, started_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.SiteID, b.City, b.StartPage, b.EndPage, b.StartedAt, string(b.Status))
	return err
}

func (s *PostgresStore) FinishBatch(ctx context.Context, b *Batch) error {
	query := `
		UPDATE crawl_batches SET finished_at = $2, status = $3, listings_found = $4
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, b.ID, b.FinishedAt, string(b.Status), b.ListingsFound)
	return err
}

// =============================================================================
// Listings
// =============================================================================

var listingColumns = []string{
	"batch_id", "site_id", "city", "fingerprint", "title", "rent_type", "district",
	"sub_district", "community", "area", "orientation", "bedrooms", "living_rooms",
	"bathrooms", "floor_level", "total_floors", "tags", "platform", "price",
}

// CopyListings bulk-loads one batch with COPY.
func (s *PostgresStore) CopyListings(ctx context.Context, b *Batch, listings []models.Listing) (int64, error) {
	rows := make([][]interface{}, 0, len(listings))
	for i := range listings {
		l := &listings[i]
		rows = append(rows, []interface{}{
			b.ID, b.SiteID, nullString(b.City), identity.Fingerprint(l), nullString(l.Title),
			nullString(l.RentType), nullString(l.District), nullString(l.SubDistrict),
			nullString(l.Community), l.Area, nullString(l.Orientation), l.Bedrooms,
			l.LivingRooms, l.Bathrooms, nullString(l.FloorLevel), l.TotalFloors, l.Tags,
			nullString(l.Platform), l.Price,
		})
	}

	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"listings"}, listingColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy listings: %w", err)
	}
	return n, nil
}

type DistrictCount struct {
	SiteID   string  `json:"site_id"`
	District string  `json:"district"`
	Listings int     `json:"listings"`
	AvgPrice float64 `json:"avg_price"`
}

// DistrictCounts summarises distinct advertisements per district across all
// batches.
func (s *PostgresStore) DistrictCounts(ctx context.Context, siteID string) ([]DistrictCount, error) {
	query := `
		SELECT site_id, COALESCE(district, ''), COUNT(DISTINCT fingerprint), COALESCE(AVG(price), 0)
		FROM listings
		WHERE ($1 = '' OR site_id = $1) AND price > 0
		GROUP BY site_id, district
		ORDER BY COUNT(DISTINCT fingerprint) DESC`

	rows, err := s.pool.Query(ctx, query, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DistrictCount
	for rows.Next() {
		var dc DistrictCount
		if err := rows.Scan(&dc.SiteID, &dc.District, &dc.Listings, &dc.AvgPrice); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

func nullString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// MaskConnectionString hides the password in a DSN for logging.
func MaskConnectionString(connStr string) string {
	scheme := strings.Index(connStr, "://")
	if scheme < 0 {
		return connStr
	}
	rest := connStr[scheme+3:]
	at := strings.Index(rest, "@")
	if at < 0 {
		return connStr
	}
	colon := strings.Index(rest[:at], ":")
	if colon < 0 {
		return connStr
	}
	return connStr[:scheme+3] + rest[:colon+1] + "****" + rest[at:]
}
