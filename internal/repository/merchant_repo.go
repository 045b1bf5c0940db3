package repository

import (
	"context"
	"fmt"
	"math"
	"sort"

	"walletgate/internal/db"
	"walletgate/internal/models"
	"walletgate/internal/proximity"
)

// MerchantRepository finds merchants that accept in-app payments.
type MerchantRepository struct {
	q db.Querier
}

// NewMerchantRepository creates a new merchant repository.
func NewMerchantRepository(q db.Querier) *MerchantRepository {
	return &MerchantRepository{q: q}
}

// Nearby returns up to limit merchants within radiusMeters of center, closest first.
// The bounding box query narrows candidates; the haversine distance decides.
func (r *MerchantRepository) Nearby(ctx context.Context, center models.Coordinate, radiusMeters float64, limit int) ([]models.Suggestion, error) {
	dLat := radiusMeters / proximity.EarthRadiusMeters * 180 / math.Pi
	dLon := dLat / math.Max(math.Cos(center.Latitude*math.Pi/180), 1e-6)

	query := `
		SELECT id, name, category, latitude, longitude
		FROM merchants
		WHERE active
		  AND latitude BETWEEN $1 AND $2
		  AND longitude BETWEEN $3 AND $4`

	rows, err := r.q.Query(ctx, query,
		center.Latitude-dLat, center.Latitude+dLat,
		center.Longitude-dLon, center.Longitude+dLon,
	)
	if err != nil {
		return nil, fmt.Errorf("query merchants: %w", err)
	}
	defer rows.Close()

	var out []models.Suggestion
	for rows.Next() {
		var s models.Suggestion
		if err := rows.Scan(&s.MerchantID, &s.Name, &s.Category, &s.Coordinate.Latitude, &s.Coordinate.Longitude); err != nil {
			return nil, fmt.Errorf("scan merchant: %w", err)
		}
		s.DistanceMeters = proximity.Distance(center, s.Coordinate)
		if s.DistanceMeters <= radiusMeters {
			out = append(out, s)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
