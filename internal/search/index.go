package search

import (
	"errors"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/temcen/marketrec/internal/recommender"
	"github.com/temcen/marketrec/internal/similarity"
)

const (
	defaultIndexPageSize = 20

	nameBoost        = 3
	descriptionBoost = 2
)

// ErrIndexClosed is returned by reads on a closed index.
var ErrIndexClosed = errors.New("search index closed")

// IndexQuery is a full-text product query with optional filters.
type IndexQuery struct {
	Text      string
	Category  string
	MinPrice  *float64
	MaxPrice  *float64
	MinRating *float64
	Sort      recommender.SortOrder
	Size      int
	From      int
}

// IndexHit is one matching product id and its index relevance score.
type IndexHit struct {
	ID    string
	Score float64
}

// Index is an in-memory bleve index over the product catalog. It accelerates
// product search; nothing depends on its presence.
type Index struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewIndex creates an empty in-memory index.
func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	productMapping := bleve.NewDocumentMapping()

	productMapping.AddFieldMappingsAt("name", bleve.NewTextFieldMapping())
	productMapping.AddFieldMappingsAt("description", bleve.NewTextFieldMapping())
	productMapping.AddFieldMappingsAt("tags", bleve.NewTextFieldMapping())

	// Category is matched whole, after case folding.
	productMapping.AddFieldMappingsAt("category", bleve.NewKeywordFieldMapping())

	productMapping.AddFieldMappingsAt("price", bleve.NewNumericFieldMapping())
	productMapping.AddFieldMappingsAt("rating", bleve.NewNumericFieldMapping())
	productMapping.AddFieldMappingsAt("created_at", bleve.NewDateTimeFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", productMapping)
	return indexMapping
}

// Rebuild replaces the index contents with items. Searches keep hitting the
// previous contents until the new index is complete.
func (i *Index) Rebuild(items []recommender.CatalogItem) (int, error) {
	fresh, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return 0, fmt.Errorf("failed to create bleve index: %w", err)
	}

	batch := fresh.NewBatch()
	indexed := 0
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		if err := batch.Index(item.ID, productDocument(item)); err != nil {
			fresh.Close()
			return 0, fmt.Errorf("failed to index product %s: %w", item.ID, err)
		}
		indexed++
	}
	if err := fresh.Batch(batch); err != nil {
		fresh.Close()
		return 0, fmt.Errorf("failed to batch index products: %w", err)
	}

	i.mu.Lock()
	old := i.index
	i.index = fresh
	i.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return indexed, nil
}

func productDocument(item recommender.CatalogItem) map[string]interface{} {
	doc := map[string]interface{}{
		"name":        item.Name,
		"description": item.Description,
		"tags":        item.Tags,
		"category":    similarity.Fold(item.Category),
		"price":       item.Price,
		"rating":      item.Rating,
	}
	if !item.CreatedAt.IsZero() {
		doc["created_at"] = item.CreatedAt
	}
	return doc
}

// Count returns the number of indexed products.
func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.index == nil {
		return 0, ErrIndexClosed
	}
	n, err := i.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to get doc count: %w", err)
	}
	return n, nil
}

// Search runs q and returns the requested page of hits plus the total number
// of matches.
func (i *Index) Search(q IndexQuery) ([]IndexHit, uint64, error) {
	size := q.Size
	if size <= 0 {
		size = defaultIndexPageSize
	}

	req := bleve.NewSearchRequestOptions(buildQuery(q), size, max(q.From, 0), false)
	if order := sortFields(q.Sort); order != nil {
		req.SortBy(order)
	}

	i.mu.RLock()
	if i.index == nil {
		i.mu.RUnlock()
		return nil, 0, ErrIndexClosed
	}
	res, err := i.index.Search(req)
	i.mu.RUnlock()
	if err != nil {
		return nil, 0, fmt.Errorf("bleve search failed: %w", err)
	}

	hits := make([]IndexHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		hits = append(hits, IndexHit{ID: hit.ID, Score: hit.Score})
	}
	return hits, res.Total, nil
}

// Close releases the index. Closing twice is a no-op.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.index == nil {
		return nil
	}
	err := i.index.Close()
	i.index = nil
	return err
}

func buildQuery(q IndexQuery) query.Query {
	var must []query.Query

	if q.Text != "" {
		must = append(must, bleve.NewDisjunctionQuery(
			fuzzyMatch(q.Text, "name", nameBoost),
			fuzzyMatch(q.Text, "description", descriptionBoost),
			fuzzyMatch(q.Text, "tags", 1),
			categoryTerm(q.Text),
		))
	}
	if q.Category != "" {
		must = append(must, categoryTerm(q.Category))
	}
	if q.MinPrice != nil || q.MaxPrice != nil {
		must = append(must, numericRange("price", q.MinPrice, q.MaxPrice))
	}
	if q.MinRating != nil {
		must = append(must, numericRange("rating", q.MinRating, nil))
	}

	switch len(must) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return must[0]
	default:
		return bleve.NewConjunctionQuery(must...)
	}
}

func fuzzyMatch(text, field string, boost float64) query.Query {
	m := bleve.NewMatchQuery(text)
	m.SetField(field)
	m.SetFuzziness(1)
	m.SetPrefix(1)
	m.SetBoost(boost)
	return m
}

func categoryTerm(category string) query.Query {
	t := bleve.NewTermQuery(similarity.Fold(category))
	t.SetField("category")
	return t
}

func numericRange(field string, lo, hi *float64) query.Query {
	inclusive := true
	r := bleve.NewNumericRangeInclusiveQuery(lo, hi, &inclusive, &inclusive)
	r.SetField(field)
	return r
}

func sortFields(order recommender.SortOrder) []string {
	switch order {
	case recommender.SortPriceAsc:
		return []string{"price", "-_score"}
	case recommender.SortPriceDesc:
		return []string{"-price", "-_score"}
	case recommender.SortRating:
		return []string{"-rating", "-_score"}
	case recommender.SortNewest:
		return []string{"-created_at", "-_score"}
	default:
		return nil
	}
}
