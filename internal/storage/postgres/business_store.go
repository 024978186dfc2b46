package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/vindloodgieter/discovery/internal/discovery"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

const businessColumns = `external_id, slug, name, address, city, province, province_abbr,
	COALESCE(postcode, ''), latitude, longitude, COALESCE(phone, ''), COALESCE(website, ''),
	rating, review_count, service_types, specializations, certifications, category_tags,
	status, discovered_at, updated_at`

// BusinessStore persists businesses in the businesses table.
type BusinessStore struct {
	db     DB
	now    func() time.Time
	logger *zap.Logger
}

// NewBusinessStore wraps db. A nil clock uses time.Now.
func NewBusinessStore(db DB, now func() time.Time, logger *zap.Logger) (*BusinessStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BusinessStore{db: db, now: now, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *BusinessStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// UpsertBusiness inserts or merge-updates one record in its own transaction.
// The existing row is locked by external ID so concurrent writers serialize.
func (s *BusinessStore) UpsertBusiness(ctx context.Context, b discovery.Business) (discovery.UpsertResult, error) {
	if b.ExternalID == "" {
		return discovery.UpsertResult{}, fmt.Errorf("external id is required")
	}
	b = discovery.Normalize(b)
	now := s.now().UTC()

	var result discovery.UpsertResult
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		existing, err := scanBusiness(tx.QueryRow(ctx,
			`SELECT `+businessColumns+` FROM businesses WHERE external_id = $1 FOR UPDATE`, b.ExternalID))
		switch {
		case errors.Is(err, discovery.ErrNotFound):
			slug, err := resolveSlug(ctx, tx, b)
			if err != nil {
				return err
			}
			b.Slug = slug
			if b.DiscoveredAt.IsZero() {
				b.DiscoveredAt = now
			}
			b.UpdatedAt = now
			if err := insertBusiness(ctx, tx, b); err != nil {
				return err
			}
			result = discovery.UpsertResult{Outcome: discovery.OutcomeInserted, Slug: slug}
			return nil
		case err != nil:
			return fmt.Errorf("lock business %s: %w", b.ExternalID, err)
		}

		merged, changed := discovery.Merge(existing, b, now)
		if !changed {
			result = discovery.UpsertResult{Outcome: discovery.OutcomeUnchanged, Slug: existing.Slug}
			return nil
		}
		if err := updateBusiness(ctx, tx, merged); err != nil {
			return err
		}
		result = discovery.UpsertResult{Outcome: discovery.OutcomeUpdated, Slug: merged.Slug}
		return nil
	})
	if err != nil {
		return discovery.UpsertResult{}, err
	}
	return result, nil
}

func (s *BusinessStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func slugTaken(ctx context.Context, q queryRower, slug string) (bool, error) {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM businesses WHERE slug = $1)`, slug).Scan(&exists); err != nil {
		return false, fmt.Errorf("check slug %q: %w", slug, err)
	}
	return exists, nil
}

// resolveSlug returns the first free candidate for the record's base slug.
func resolveSlug(ctx context.Context, q queryRower, b discovery.Business) (string, error) {
	base := b.Slug
	if base == "" {
		base = discovery.SlugBase(b.Name, b.City)
	}
	if base == "" {
		base = discovery.Slugify(b.ExternalID)
	}
	for attempt := 1; attempt <= discovery.MaxSlugAttempts; attempt++ {
		candidate := discovery.SlugCandidate(base, attempt)
		taken, err := slugTaken(ctx, q, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("slug %q: %w", base, discovery.ErrSlugSpaceExhausted)
}

func coordinateArgs(c *discovery.Coordinates) (*float64, *float64) {
	if c == nil {
		return nil, nil
	}
	lat, lng := c.Lat, c.Lng
	return &lat, &lng
}

func insertBusiness(ctx context.Context, tx pgx.Tx, b discovery.Business) error {
	lat, lng := coordinateArgs(b.Coordinates)
	_, err := tx.Exec(ctx, `
INSERT INTO businesses (
	external_id, slug, name, address, city, province, province_abbr,
	postcode, latitude, longitude, phone, website, rating, review_count,
	service_types, specializations, certifications, category_tags,
	status, discovered_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
)`,
		b.ExternalID, b.Slug, b.Name, b.Address, b.City, b.Province, b.ProvinceAbbr,
		nullString(b.Postcode), lat, lng, nullString(b.Phone), nullString(b.Website), b.Rating, b.ReviewCount,
		b.ServiceTypes, b.Specializations, b.Certifications, b.CategoryTags,
		string(b.Status), b.DiscoveredAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert business %s: %w", b.ExternalID, err)
	}
	return nil
}

func updateBusiness(ctx context.Context, tx pgx.Tx, b discovery.Business) error {
	lat, lng := coordinateArgs(b.Coordinates)
	_, err := tx.Exec(ctx, `
UPDATE businesses SET
	name = $2, address = $3, city = $4, province = $5, province_abbr = $6,
	postcode = $7, latitude = $8, longitude = $9, phone = $10, website = $11,
	rating = $12, review_count = $13, service_types = $14, specializations = $15,
	certifications = $16, category_tags = $17, status = $18, discovered_at = $19,
	updated_at = $20
WHERE external_id = $1`,
		b.ExternalID, b.Name, b.Address, b.City, b.Province, b.ProvinceAbbr,
		nullString(b.Postcode), lat, lng, nullString(b.Phone), nullString(b.Website),
		b.Rating, b.ReviewCount, b.ServiceTypes, b.Specializations,
		b.Certifications, b.CategoryTags, string(b.Status), b.DiscoveredAt,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update business %s: %w", b.ExternalID, err)
	}
	return nil
}

// SlugExists reports whether slug is already assigned.
func (s *BusinessStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	return slugTaken(ctx, s.db, slug)
}

// GetBySlug returns the business with the given slug or discovery.ErrNotFound.
func (s *BusinessStore) GetBySlug(ctx context.Context, slug string) (discovery.Business, error) {
	b, err := scanBusiness(s.db.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE slug = $1`, slug))
	if err != nil {
		if errors.Is(err, discovery.ErrNotFound) {
			return discovery.Business{}, err
		}
		return discovery.Business{}, fmt.Errorf("get business %q: %w", slug, err)
	}
	return b, nil
}

// ListBusinesses returns businesses matching filter, ordered by location and name.
func (s *BusinessStore) ListBusinesses(ctx context.Context, filter discovery.ListFilter) ([]discovery.Business, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + businessColumns + `
FROM businesses
WHERE ($1::text = '' OR lower(province) = lower($1))
  AND ($2::text = '' OR lower(city) = lower($2))
  AND ($3::text = '' OR $3 = ANY(service_types))
  AND ($4::text = '' OR status = $4)
ORDER BY province, city, name, external_id
LIMIT $5 OFFSET $6`
	rows, err := s.db.Query(ctx, query,
		filter.Province, filter.City, filter.ServiceType, string(filter.Status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	defer rows.Close()

	out := make([]discovery.Business, 0)
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, fmt.Errorf("scan business row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	return out, nil
}

// CountByProvince returns the number of businesses per province.
func (s *BusinessStore) CountByProvince(ctx context.Context) ([]discovery.ProvinceCount, error) {
	rows, err := s.db.Query(ctx, `
SELECT province, COUNT(*)
FROM businesses
GROUP BY province
ORDER BY province`)
	if err != nil {
		return nil, fmt.Errorf("count by province: %w", err)
	}
	defer rows.Close()

	out := make([]discovery.ProvinceCount, 0)
	for rows.Next() {
		var pc discovery.ProvinceCount
		if err := rows.Scan(&pc.Province, &pc.Count); err != nil {
			return nil, fmt.Errorf("scan province count: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

// CountByServiceType returns the number of businesses carrying each label.
func (s *BusinessStore) CountByServiceType(ctx context.Context) ([]discovery.ServiceTypeCount, error) {
	rows, err := s.db.Query(ctx, `
SELECT st, COUNT(*)
FROM businesses, unnest(service_types) AS st
GROUP BY st
ORDER BY COUNT(*) DESC, st`)
	if err != nil {
		return nil, fmt.Errorf("count by service type: %w", err)
	}
	defer rows.Close()

	out := make([]discovery.ServiceTypeCount, 0)
	for rows.Next() {
		var sc discovery.ServiceTypeCount
		if err := rows.Scan(&sc.ServiceType, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan service type count: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBusiness(row scanner) (discovery.Business, error) {
	var (
		b        discovery.Business
		lat, lng *float64
		status   string
	)
	err := row.Scan(
		&b.ExternalID, &b.Slug, &b.Name, &b.Address, &b.City, &b.Province, &b.ProvinceAbbr,
		&b.Postcode, &lat, &lng, &b.Phone, &b.Website,
		&b.Rating, &b.ReviewCount, &b.ServiceTypes, &b.Specializations, &b.Certifications, &b.CategoryTags,
		&status, &b.DiscoveredAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return discovery.Business{}, discovery.ErrNotFound
		}
		return discovery.Business{}, err
	}
	if lat != nil && lng != nil {
		b.Coordinates = &discovery.Coordinates{Lat: *lat, Lng: *lng}
	}
	b.Status = discovery.Status(status)
	return discovery.Normalize(b), nil
}

var _ discovery.BusinessStore = (*BusinessStore)(nil)
