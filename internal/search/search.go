// Package search keeps an in-memory full text index over the latest stock
// snapshots.
package search

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/guregu/null/v6"

	"nsemarket-backend/internal/records"
)

type document struct {
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Sector   string  `json:"sector"`
	Industry string  `json:"industry"`
	Rank     float64 `json:"rank"`
	Price    float64 `json:"price"`
	HasPrice bool    `json:"has_price"`
}

type Hit struct {
	Symbol   string     `json:"symbol"`
	Name     string     `json:"name"`
	Sector   string     `json:"sector"`
	Industry string     `json:"industry"`
	Price    null.Float `json:"price"`
	Score    float64    `json:"score"`
}

type Index struct {
	index bleve.Index
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	stockMapping := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Store = true
	text.Index = true
	for _, field := range []string{"symbol", "name", "sector", "industry"} {
		stockMapping.AddFieldMappingsAt(field, text)
	}

	numeric := bleve.NewNumericFieldMapping()
	numeric.Store = true
	numeric.Index = true
	stockMapping.AddFieldMappingsAt("rank", numeric)
	stockMapping.AddFieldMappingsAt("price", numeric)

	flag := bleve.NewBooleanFieldMapping()
	flag.Store = true
	stockMapping.AddFieldMappingsAt("has_price", flag)

	indexMapping.DefaultMapping = stockMapping
	return indexMapping
}

// metricText looks key up in every metrics slot of record.
func metricText(record records.CompositeRecord, key string) string {
	for _, view := range records.Views {
		if v, ok := (*record.Slot(view))[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// New indexes snapshots in memory.
func New(snapshots []records.CompositeRecord) (*Index, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	batch := index.NewBatch()
	for _, record := range snapshots {
		doc := document{
			Symbol:   record.TickerSymbol,
			Name:     record.CompanyName,
			Sector:   metricText(record, "sector"),
			Industry: metricText(record, "industry"),
			Rank:     float64(record.Rank.Int64),
			Price:    record.StockPrice.Float64,
			HasPrice: record.StockPrice.Valid,
		}
		err := batch.Index(record.TickerSymbol, doc)
		if err != nil {
			index.Close()
			return nil, fmt.Errorf("index %s: %w", record.TickerSymbol, err)
		}
	}
	err = index.Batch(batch)
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("execute batch: %w", err)
	}
	return &Index{index: index}, nil
}

// Search ranks exact symbol matches first, then symbol prefixes, then
// matches on name, sector or industry.
func (i *Index) Search(query string, limit int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	lower := strings.ToLower(query)

	exact := bleve.NewTermQuery(lower)
	exact.SetField("symbol")
	exact.SetBoost(10)

	prefix := bleve.NewPrefixQuery(lower)
	prefix.SetField("symbol")
	prefix.SetBoost(5)

	name := bleve.NewMatchQuery(query)
	name.SetField("name")
	name.SetBoost(3)

	namePrefix := bleve.NewPrefixQuery(lower)
	namePrefix.SetField("name")
	namePrefix.SetBoost(1.5)

	sector := bleve.NewMatchQuery(query)
	sector.SetField("sector")

	industry := bleve.NewMatchQuery(query)
	industry.SetField("industry")

	request := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(exact, prefix, name, namePrefix, sector, industry))
	request.Fields = []string{"symbol", "name", "sector", "industry", "price", "has_price"}
	request.Size = limit

	result, err := i.index.Search(request)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, match := range result.Hits {
		hit := Hit{
			Symbol:   fieldString(match.Fields, "symbol"),
			Name:     fieldString(match.Fields, "name"),
			Sector:   fieldString(match.Fields, "sector"),
			Industry: fieldString(match.Fields, "industry"),
			Score:    match.Score,
		}
		if hasPrice, _ := match.Fields["has_price"].(bool); hasPrice {
			if price, ok := match.Fields["price"].(float64); ok {
				hit.Price = null.FloatFrom(price)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func fieldString(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func (i *Index) Close() error {
	return i.index.Close()
}
