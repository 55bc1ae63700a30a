package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/temcen/marketrec/internal/recommender"
)

func TestOrderDocument_ToFulfilledOrder(t *testing.T) {
	orderID := primitive.NewObjectID()
	userID := primitive.NewObjectID()
	productID := primitive.NewObjectID()

	order := orderDocument{
		ID:     orderID,
		User:   userID,
		Status: DeliveredStatus,
		Cart: []cartLine{
			{ProductID: productID, Qty: 2},
			{Qty: 1}, // deleted product
		},
	}.toFulfilledOrder()

	assert.Equal(t, orderID.Hex(), order.OrderID)
	assert.Equal(t, userID.Hex(), order.UserID)
	assert.Equal(t, []recommender.LineItem{
		{ItemID: productID.Hex(), Quantity: 2},
		{ItemID: "", Quantity: 1},
	}, order.LineItems)
}

func TestProductDocument_ToCatalogItem(t *testing.T) {
	id := primitive.NewObjectID()
	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("discount price wins", func(t *testing.T) {
		item := productDocument{
			ID: id, Name: "Lamp", Category: "Home", OriginalPrice: 80, DiscountPrice: 60,
			Ratings: 4.2, Tags: "light", SoldOut: 12, ShopID: "shop-1", CreatedAt: created,
		}.toCatalogItem()

		assert.Equal(t, recommender.CatalogItem{
			ID: id.Hex(), Name: "Lamp", Category: "Home", Price: 60, Rating: 4.2,
			Tags: "light", SoldCount: 12, ShopID: "shop-1", CreatedAt: created,
		}, item)
	})

	t.Run("falls back to original price", func(t *testing.T) {
		item := productDocument{ID: id, OriginalPrice: 80}.toCatalogItem()
		assert.Equal(t, 80.0, item.Price)
	})
}

func TestMongoFilter(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, mongoFilter(recommender.CatalogFilter{}))
	})

	t.Run("query is escaped and case insensitive", func(t *testing.T) {
		f := mongoFilter(recommender.CatalogFilter{Query: "c++"})
		or, ok := f["$or"].(bson.A)
		require.True(t, ok)
		require.Len(t, or, 4)
		assert.Equal(t, bson.M{"name": primitive.Regex{Pattern: `c\+\+`, Options: "i"}}, or[0])
	})

	t.Run("category, price and rating", func(t *testing.T) {
		lo, hi, rating := 5.0, 50.0, 4.0
		f := mongoFilter(recommender.CatalogFilter{Category: "Books", MinPrice: &lo, MaxPrice: &hi, MinRating: &rating})

		assert.Equal(t, primitive.Regex{Pattern: "^Books$", Options: "i"}, f["category"])
		assert.Equal(t, bson.M{"$gte": 5.0, "$lte": 50.0}, f["discountPrice"])
		assert.Equal(t, bson.M{"$gte": 4.0}, f["ratings"])
	})
}

func TestMongoSort(t *testing.T) {
	assert.Equal(t, "sold_out", mongoSort(recommender.SortTrending)[0].Key)
	assert.Equal(t, "ratings", mongoSort(recommender.SortTopRated)[0].Key)
	assert.Equal(t, bson.E{Key: "discountPrice", Value: -1}, mongoSort(recommender.SortPriceDesc)[0])
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}}, mongoSort(recommender.SortNone))
}

func TestExpandPurchases(t *testing.T) {
	products := []recommender.CatalogItem{{ID: "a"}, {ID: "b"}}

	purchases := expandPurchases([]string{"a", "gone", "b", "a"}, products)

	ids := make([]string, len(purchases))
	for i, p := range purchases {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"a", "b", "a"}, ids)
}

func TestGroupPipeline(t *testing.T) {
	t.Run("groups by field and orders by count", func(t *testing.T) {
		pipeline := groupPipeline(bson.M{"category": containsPattern("sho")}, "category", 3)
		require.Len(t, pipeline, 4)

		assert.Equal(t, bson.D{{Key: "$match", Value: bson.M{"category": primitive.Regex{Pattern: "sho", Options: "i"}}}}, pipeline[0])

		group, ok := pipeline[1][0].Value.(bson.D)
		require.True(t, ok)
		assert.Equal(t, "$group", pipeline[1][0].Key)
		assert.Equal(t, bson.E{Key: "_id", Value: "$category"}, group[0])

		assert.Equal(t, bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}}, pipeline[2])
		assert.Equal(t, bson.D{{Key: "$limit", Value: int64(3)}}, pipeline[3])
	})

	t.Run("unbounded without limit", func(t *testing.T) {
		pipeline := groupPipeline(bson.M{}, "name", 0)
		require.Len(t, pipeline, 3)
		assert.Equal(t, "$sort", pipeline[2][0].Key)
	})
}

func TestShopPipeline(t *testing.T) {
	pipeline := shopPipeline("a.b", 3)

	stages := make([]string, len(pipeline))
	for i, stage := range pipeline {
		stages[i] = stage[0].Key
	}
	assert.Equal(t, []string{"$match", "$lookup", "$unwind", "$group", "$sort", "$limit"}, stages)
	assert.Equal(t, bson.M{"name": primitive.Regex{Pattern: `a\.b`, Options: "i"}}, pipeline[0][0].Value)

	lookup, ok := pipeline[1][0].Value.(bson.D)
	require.True(t, ok)
	assert.Equal(t, bson.E{Key: "from", Value: "products"}, lookup[0])

	assert.Equal(t, bson.M{}, shopPipeline("", 0)[0][0].Value)
}
