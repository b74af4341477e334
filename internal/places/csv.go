package places

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olivere/elastic/v7"
)

var requiredColumns = []string{"place_id", "name", "lat", "lng"}

// ReadPlaceDocuments parses a delimited file with a header row. Columns are
// matched by name: place_id, name, vicinity, keywords (semicolon separated),
// lat, lng, rating and user_ratings_total. Optional cells may be empty.
func ReadPlaceDocuments(r io.Reader, comma rune) ([]PlaceDocument, error) {
	reader := csv.NewReader(r)
	if comma != 0 {
		reader.Comma = comma
	}
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	cell := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var docs []PlaceDocument
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		lat, err := strconv.ParseFloat(cell(record, "lat"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: lat: %w", line, err)
		}
		lng, err := strconv.ParseFloat(cell(record, "lng"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: lng: %w", line, err)
		}

		doc := PlaceDocument{
			PlaceID:  cell(record, "place_id"),
			Name:     cell(record, "name"),
			Vicinity: cell(record, "vicinity"),
			Location: elastic.GeoPoint{Lat: lat, Lon: lng},
		}
		if doc.PlaceID == "" {
			return nil, fmt.Errorf("line %d: empty place_id", line)
		}
		if kw := cell(record, "keywords"); kw != "" {
			for _, k := range strings.Split(kw, ";") {
				if k = strings.TrimSpace(k); k != "" {
					doc.Keywords = append(doc.Keywords, k)
				}
			}
		}
		if v := cell(record, "rating"); v != "" {
			rating, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: rating: %w", line, err)
			}
			doc.Rating = &rating
		}
		if v := cell(record, "user_ratings_total"); v != "" {
			total, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("line %d: user_ratings_total: %w", line, err)
			}
			doc.UserRatingsTotal = &total
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
