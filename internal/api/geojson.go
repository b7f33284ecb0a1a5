package api

import (
	"strings"

	"github.com/openrelief/aidmatch/internal/geo"
	"github.com/openrelief/aidmatch/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// cellPoint renders a geohash cell as its center point.
func cellPoint(cell string) Geometry {
	lat, lon, _, _, err := geo.Decode(cell)
	if err != nil {
		return Geometry{Type: "Point", Coordinates: []float64{0, 0}}
	}
	return Geometry{Type: "Point", Coordinates: []float64{lon, lat}}
}

func reportsToGeoJSON(reports []models.DisasterReport) FeatureCollection {
	features := make([]Feature, 0, len(reports))

	for _, r := range reports {
		f := Feature{
			Type:     "Feature",
			Geometry: cellPoint(r.Location),
			Properties: map[string]any{
				"id":           r.ID,
				"geohash":      r.Location,
				"severity":     r.Severity,
				"risk_score":   r.RiskScore,
				"evidence_ref": r.EvidenceRef,
				"reporter":     r.Reporter,
				"created_at":   r.CreatedAt,
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}

func requestsToGeoJSON(requests []models.ResourceRequest) FeatureCollection {
	features := make([]Feature, 0, len(requests))

	for _, r := range requests {
		f := Feature{
			Type:     "Feature",
			Geometry: cellPoint(r.Location),
			Properties: map[string]any{
				"id":            r.ID,
				"geohash":       r.Location,
				"resource_type": strings.ToLower(string(r.Type)),
				"quantity":      r.Quantity,
				"urgency":       r.Urgency,
				"state":         strings.ToLower(string(r.State)),
				"requester":     r.Requester,
				"created_at":    r.CreatedAt,
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}

func offersToGeoJSON(offers []models.ResourceOffer) FeatureCollection {
	features := make([]Feature, 0, len(offers))

	for _, o := range offers {
		f := Feature{
			Type:     "Feature",
			Geometry: cellPoint(o.Location),
			Properties: map[string]any{
				"id":            o.ID,
				"geohash":       o.Location,
				"resource_type": strings.ToLower(string(o.Type)),
				"quantity":      o.Quantity,
				"remaining":     o.Remaining,
				"state":         strings.ToLower(string(o.State)),
				"provider":      o.Provider,
				"created_at":    o.CreatedAt,
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
