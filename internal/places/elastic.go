package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/olivere/elastic/v7"

	apperrors "github.com/loocate/loocate/internal/errors"
	"github.com/loocate/loocate/internal/geo"
	"github.com/loocate/loocate/internal/telemetry"
)

const (
	elasticService = "elasticsearch"

	// DefaultElasticIndex holds the self-hosted place documents.
	DefaultElasticIndex = "places"

	defaultElasticSize = 20
)

// indexMapping declares location as a geo_point so geo_distance queries work.
const indexMapping = `{
	"settings": {"number_of_shards": 1, "number_of_replicas": 0},
	"mappings": {
		"properties": {
			"place_id":           {"type": "keyword"},
			"name":               {"type": "text"},
			"vicinity":           {"type": "text"},
			"keywords":           {"type": "text"},
			"location":           {"type": "geo_point"},
			"rating":             {"type": "float"},
			"user_ratings_total": {"type": "integer"}
		}
	}
}`

// PlaceDocument is the indexed form of a place.
type PlaceDocument struct {
	PlaceID          string           `json:"place_id"`
	Name             string           `json:"name"`
	Vicinity         string           `json:"vicinity,omitempty"`
	Keywords         []string         `json:"keywords,omitempty"`
	Location         elastic.GeoPoint `json:"location"`
	Rating           *float64         `json:"rating,omitempty"`
	UserRatingsTotal *int             `json:"user_ratings_total,omitempty"`
}

// ElasticStore answers nearby searches from an Elasticsearch index.
type ElasticStore struct {
	Client *elastic.Client
	Index  string
	Size   int
}

// NewElasticStore connects to url. Sniffing is off so single-node and
// containerised clusters behind a proxy work.
func NewElasticStore(url, index string, opts ...elastic.ClientOptionFunc) (*ElasticStore, error) {
	if index == "" {
		index = DefaultElasticIndex
	}
	options := append([]elastic.ClientOptionFunc{
		elastic.SetURL(url),
		elastic.SetSniff(false),
	}, opts...)

	client, err := elastic.NewClient(options...)
	if err != nil {
		return nil, apperrors.NewNetworkError(elasticService, err)
	}
	return &ElasticStore{Client: client, Index: index, Size: defaultElasticSize}, nil
}

// Name identifies the provider in logs, metrics and cache keys.
func (es *ElasticStore) Name() string { return "elastic" }

// Nearby returns indexed places inside the radius, closest first.
func (es *ElasticStore) Nearby(ctx context.Context, q Query) ([]Place, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "places_nearby",
		"service":   elasticService,
		"index":     es.Index,
		"location":  q.Center.String(),
		"radius":    q.RadiusMeters,
	})

	query := elastic.NewBoolQuery().Filter(
		elastic.NewGeoDistanceQuery("location").
			Lat(q.Center.Latitude).
			Lon(q.Center.Longitude).
			Distance(strconv.FormatFloat(q.RadiusMeters, 'f', -1, 64) + "m"),
	)
	if q.Keyword != "" {
		query = query.Must(elastic.NewMultiMatchQuery(q.Keyword, "name", "keywords", "vicinity"))
	}

	size := es.Size
	if size <= 0 {
		size = defaultElasticSize
	}

	searchResult, err := es.Client.Search().
		Index(es.Index).
		Query(query).
		SortBy(elastic.NewGeoDistanceSort("location").
			Point(q.Center.Latitude, q.Center.Longitude).
			Asc().
			Unit("m").
			DistanceType("arc")).
		Size(size).
		Do(ctx)
	if err != nil {
		err = classifyElasticError(err)
		logger.WithError(err).Warn("Elasticsearch nearby search failed")
		return nil, err
	}

	results := make([]Place, 0, len(searchResult.Hits.Hits))
	for _, hit := range searchResult.Hits.Hits {
		var doc PlaceDocument
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return nil, apperrors.NewProviderError(elasticService, "MALFORMED_RESULT",
				fmt.Sprintf("document %s: %v", hit.Id, err))
		}
		if doc.PlaceID == "" {
			doc.PlaceID = hit.Id
		}
		results = append(results, doc.toPlace())
	}

	logger.WithField("results", len(results)).Debug("Elasticsearch nearby search completed")
	return results, nil
}

// CreateIndex creates the index with the geo mapping unless it already exists.
func (es *ElasticStore) CreateIndex(ctx context.Context) (bool, error) {
	exists, err := es.Client.IndexExists(es.Index).Do(ctx)
	if err != nil {
		return false, classifyElasticError(err)
	}
	if exists {
		return false, nil
	}

	created, err := es.Client.CreateIndex(es.Index).BodyString(indexMapping).Do(ctx)
	if err != nil {
		return false, classifyElasticError(err)
	}
	if !created.Acknowledged {
		telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
			"operation": "create_index",
			"service":   elasticService,
			"index":     es.Index,
		}).Warn("CreateIndex was not acknowledged")
	}
	return true, nil
}

// IndexPlaces bulk-loads docs and returns how many were indexed.
func (es *ElasticStore) IndexPlaces(ctx context.Context, docs []PlaceDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	bulk := es.Client.Bulk().Index(es.Index)
	for _, doc := range docs {
		bulk = bulk.Add(elastic.NewBulkIndexRequest().Id(doc.PlaceID).Doc(doc))
	}

	resp, err := bulk.Refresh("true").Do(ctx)
	if err != nil {
		return 0, classifyElasticError(err)
	}

	failed := resp.Failed()
	for _, item := range failed {
		if item.Error != nil {
			telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
				"operation": "index_places",
				"service":   elasticService,
				"place_id":  item.Id,
				"reason":    item.Error.Reason,
			}).Warn("Failed to index place")
		}
	}
	return len(docs) - len(failed), nil
}

func (doc PlaceDocument) toPlace() Place {
	return Place{
		PlaceID: doc.PlaceID,
		Location: geo.Coordinate{
			Latitude:  doc.Location.Lat,
			Longitude: doc.Location.Lon,
		},
		Name:             doc.Name,
		Vicinity:         doc.Vicinity,
		Rating:           validRating(doc.Rating),
		UserRatingsTotal: validCount(doc.UserRatingsTotal),
	}
}

func classifyElasticError(err error) error {
	if elastic.IsConnErr(err) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewNetworkError(elasticService, err)
	}
	var esErr *elastic.Error
	if errors.As(err, &esErr) {
		reason := ""
		if esErr.Details != nil {
			reason = esErr.Details.Reason
		}
		return apperrors.NewProviderError(elasticService, fmt.Sprintf("HTTP %d", esErr.Status), reason)
	}
	return apperrors.NewNetworkError(elasticService, err)
}
