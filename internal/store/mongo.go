package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/temcen/marketrec/internal/recommender"
)

// Mongo reads the marketplace's document collections. It implements every
// recommender data-source interface.
type Mongo struct {
	orders   *mongo.Collection
	products *mongo.Collection
	shops    *mongo.Collection
	logger   *logrus.Logger
}

// NewMongo creates a data source over the "orders", "products" and "shops"
// collections.
func NewMongo(db *mongo.Database, logger *logrus.Logger) *Mongo {
	return &Mongo{
		orders:   db.Collection("orders"),
		products: db.Collection("products"),
		shops:    db.Collection("shops"),
		logger:   logger,
	}
}

type cartLine struct {
	ProductID primitive.ObjectID `bson:"productId"`
	Qty       int                `bson:"qty"`
}

type orderDocument struct {
	ID     primitive.ObjectID `bson:"_id"`
	User   primitive.ObjectID `bson:"user"`
	Status string             `bson:"status"`
	Cart   []cartLine         `bson:"cart"`
}

type productDocument struct {
	ID            primitive.ObjectID `bson:"_id"`
	Name          string             `bson:"name"`
	Description   string             `bson:"description"`
	Category      string             `bson:"category"`
	OriginalPrice float64            `bson:"originalPrice"`
	DiscountPrice float64            `bson:"discountPrice"`
	Ratings       float64            `bson:"ratings"`
	Tags          string             `bson:"tags"`
	SoldOut       int                `bson:"sold_out"`
	ShopID        string             `bson:"shopId"`
	CreatedAt     time.Time          `bson:"createdAt"`
}

func (d orderDocument) toFulfilledOrder() recommender.FulfilledOrder {
	order := recommender.FulfilledOrder{
		OrderID:   d.ID.Hex(),
		UserID:    hexOrEmpty(d.User),
		LineItems: make([]recommender.LineItem, 0, len(d.Cart)),
	}
	for _, line := range d.Cart {
		order.LineItems = append(order.LineItems, recommender.LineItem{
			ItemID:   hexOrEmpty(line.ProductID),
			Quantity: line.Qty,
		})
	}
	return order
}

func (d productDocument) toCatalogItem() recommender.CatalogItem {
	price := d.DiscountPrice
	if price == 0 {
		price = d.OriginalPrice
	}
	return recommender.CatalogItem{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		Price:       price,
		Rating:      d.Ratings,
		Tags:        d.Tags,
		SoldCount:   d.SoldOut,
		ShopID:      d.ShopID,
		CreatedAt:   d.CreatedAt,
	}
}

func hexOrEmpty(id primitive.ObjectID) string {
	if id.IsZero() {
		return ""
	}
	return id.Hex()
}

// FetchFulfilledOrders returns every delivered order.
func (m *Mongo) FetchFulfilledOrders(ctx context.Context) ([]recommender.FulfilledOrder, error) {
	cur, err := m.orders.Find(ctx, bson.M{"status": DeliveredStatus},
		options.Find().SetProjection(bson.M{"user": 1, "status": 1, "cart.productId": 1, "cart.qty": 1}))
	if err != nil {
		return nil, fmt.Errorf("fulfilled orders query failed: %w", err)
	}
	defer cur.Close(ctx)

	var orders []recommender.FulfilledOrder
	for cur.Next(ctx) {
		var doc orderDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode order: %w", err)
		}
		orders = append(orders, doc.toFulfilledOrder())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}

	m.logger.WithField("orders", len(orders)).Debug("Fetched fulfilled orders")
	return orders, nil
}

// FetchCatalogItems returns the products matching filter.
func (m *Mongo) FetchCatalogItems(ctx context.Context, filter recommender.CatalogFilter) ([]recommender.CatalogItem, error) {
	opts := options.Find().SetSort(mongoSort(filter.Sort))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cur, err := m.products.Find(ctx, mongoFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	return decodeProducts(ctx, cur)
}

// FetchCatalogItemsByIDs returns the products with the given ids. Ids that
// are not valid object ids cannot exist and are skipped.
func (m *Mongo) FetchCatalogItemsByIDs(ctx context.Context, ids []string) ([]recommender.CatalogItem, error) {
	objectIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			objectIDs = append(objectIDs, oid)
		}
	}
	if len(objectIDs) == 0 {
		return []recommender.CatalogItem{}, nil
	}

	cur, err := m.products.Find(ctx, bson.M{"_id": bson.M{"$in": objectIDs}})
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}
	return decodeProducts(ctx, cur)
}

// CountCatalogItems counts the products matching filter, ignoring paging.
func (m *Mongo) CountCatalogItems(ctx context.Context, filter recommender.CatalogFilter) (int64, error) {
	count, err := m.products.CountDocuments(ctx, mongoFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("catalog count failed: %w", err)
	}
	return count, nil
}

// FetchUserPurchasedItems returns one product per delivered cart line of the
// user. Lines whose product was deleted are dropped.
func (m *Mongo) FetchUserPurchasedItems(ctx context.Context, userID string) ([]recommender.CatalogItem, error) {
	user, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return []recommender.CatalogItem{}, nil
	}

	cur, err := m.orders.Find(ctx, bson.M{"user": user, "status": DeliveredStatus},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("purchase history query failed: %w", err)
	}
	defer cur.Close(ctx)

	var lines []string
	for cur.Next(ctx) {
		var doc orderDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode order: %w", err)
		}
		for _, line := range doc.toFulfilledOrder().LineItems {
			if line.ItemID != "" {
				lines = append(lines, line.ItemID)
			}
		}
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}

	products, err := m.FetchCatalogItemsByIDs(ctx, lines)
	if err != nil {
		return nil, err
	}
	return expandPurchases(lines, products), nil
}

// termDocument is one row of a grouping aggregation.
type termDocument struct {
	Term      string  `bson:"_id"`
	Count     int     `bson:"count"`
	AvgRating float64 `bson:"avgRating"`
}

// ProductNameCounts groups the products whose name or tags contain query by
// product name.
func (m *Mongo) ProductNameCounts(ctx context.Context, query string, limit int) ([]recommender.TermCount, error) {
	match := bson.M{}
	if query != "" {
		pattern := containsPattern(query)
		match["$or"] = bson.A{bson.M{"name": pattern}, bson.M{"tags": pattern}}
	}
	return aggregateTerms(ctx, m.products, groupPipeline(match, "name", limit))
}

// CategoryCounts groups the products whose category contains query by
// category.
func (m *Mongo) CategoryCounts(ctx context.Context, query string, limit int) ([]recommender.TermCount, error) {
	match := bson.M{}
	if query != "" {
		match["category"] = containsPattern(query)
	}
	return aggregateTerms(ctx, m.products, groupPipeline(match, "category", limit))
}

// ShopProductCounts counts the products of every shop whose name contains
// query. Shops without products are left out.
func (m *Mongo) ShopProductCounts(ctx context.Context, query string, limit int) ([]recommender.TermCount, error) {
	return aggregateTerms(ctx, m.shops, shopPipeline(query, limit))
}

func aggregateTerms(ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline) ([]recommender.TermCount, error) {
	cur, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("catalog aggregation failed: %w", err)
	}
	defer cur.Close(ctx)

	terms := []recommender.TermCount{}
	for cur.Next(ctx) {
		var doc termDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode term count: %w", err)
		}
		terms = append(terms, recommender.TermCount{Term: doc.Term, Count: doc.Count, AvgRating: doc.AvgRating})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to read term counts: %w", err)
	}
	return terms, nil
}

func containsPattern(query string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
}

// groupPipeline counts the documents matching match per value of field.
func groupPipeline(match bson.M, field string, limit int) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "avgRating", Value: bson.D{{Key: "$avg", Value: "$ratings"}}},
		}}},
	}
	return withTermOrder(pipeline, limit)
}

// shopPipeline joins matching shops to their products. Products reference
// shops by the hex form of the shop id.
func shopPipeline(query string, limit int) mongo.Pipeline {
	match := bson.M{}
	if query != "" {
		match["name"] = containsPattern(query)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "products"},
			{Key: "let", Value: bson.D{{Key: "shopId", Value: bson.D{{Key: "$toString", Value: "$_id"}}}}},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{
					{Key: "$eq", Value: bson.A{"$shopId", "$$shopId"}},
				}}}}},
			}},
			{Key: "as", Value: "products"},
		}}},
		{{Key: "$unwind", Value: "$products"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$name"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "avgRating", Value: bson.D{{Key: "$avg", Value: "$products.ratings"}}},
		}}},
	}
	return withTermOrder(pipeline, limit)
}

func withTermOrder(pipeline mongo.Pipeline, limit int) mongo.Pipeline {
	pipeline = append(pipeline, bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}})
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: int64(limit)}})
	}
	return pipeline
}

// expandPurchases repeats each product once per purchase line, in line order.
func expandPurchases(lines []string, products []recommender.CatalogItem) []recommender.CatalogItem {
	byID := make(map[string]recommender.CatalogItem, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	purchases := make([]recommender.CatalogItem, 0, len(lines))
	for _, id := range lines {
		if p, ok := byID[id]; ok {
			purchases = append(purchases, p)
		}
	}
	return purchases
}

func decodeProducts(ctx context.Context, cur *mongo.Cursor) ([]recommender.CatalogItem, error) {
	defer cur.Close(ctx)

	items := []recommender.CatalogItem{}
	for cur.Next(ctx) {
		var doc productDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode product: %w", err)
		}
		items = append(items, doc.toCatalogItem())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}
	return items, nil
}

func mongoFilter(filter recommender.CatalogFilter) bson.M {
	query := bson.M{}

	if filter.Query != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Query), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"description": pattern},
			bson.M{"tags": pattern},
			bson.M{"category": pattern},
		}
	}
	if filter.Category != "" {
		query["category"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(filter.Category) + "$", Options: "i"}
	}
	if filter.MinPrice != nil || filter.MaxPrice != nil {
		price := bson.M{}
		if filter.MinPrice != nil {
			price["$gte"] = *filter.MinPrice
		}
		if filter.MaxPrice != nil {
			price["$lte"] = *filter.MaxPrice
		}
		query["discountPrice"] = price
	}
	if filter.MinRating != nil {
		query["ratings"] = bson.M{"$gte": *filter.MinRating}
	}

	return query
}

func mongoSort(order recommender.SortOrder) bson.D {
	switch order {
	case recommender.SortPriceAsc:
		return bson.D{{Key: "discountPrice", Value: 1}, {Key: "_id", Value: 1}}
	case recommender.SortPriceDesc:
		return bson.D{{Key: "discountPrice", Value: -1}, {Key: "_id", Value: 1}}
	case recommender.SortRating, recommender.SortTopRated:
		return bson.D{{Key: "ratings", Value: -1}, {Key: "sold_out", Value: -1}, {Key: "_id", Value: 1}}
	case recommender.SortNewest:
		return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}
	case recommender.SortTrending:
		return bson.D{{Key: "sold_out", Value: -1}, {Key: "ratings", Value: -1}, {Key: "_id", Value: 1}}
	default:
		return bson.D{{Key: "_id", Value: 1}}
	}
}
