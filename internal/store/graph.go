package store

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/temcen/marketrec/internal/recommender"
)

// GraphOrders reads delivered orders from the purchase graph:
// (:User)-[:PLACED]->(:Order)-[:CONTAINS {qty}]->(:Product).
type GraphOrders struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *logrus.Logger
}

// NewGraphOrders creates an OrderSource backed by Neo4j.
func NewGraphOrders(driver neo4j.DriverWithContext, database string, logger *logrus.Logger) *GraphOrders {
	return &GraphOrders{driver: driver, database: database, logger: logger}
}

const fulfilledOrdersCypher = `
	MATCH (u:User)-[:PLACED]->(o:Order {status: $status})
	OPTIONAL MATCH (o)-[c:CONTAINS]->(p:Product)
	WITH o, u, collect({product_id: p.product_id, qty: c.qty}) AS lines
	RETURN o.order_id AS order_id, u.user_id AS user_id, lines
	ORDER BY order_id`

// FetchFulfilledOrders returns every delivered order in the graph.
func (g *GraphOrders) FetchFulfilledOrders(ctx context.Context) ([]recommender.FulfilledOrder, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: g.database,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, fulfilledOrdersCypher, map[string]interface{}{
		"status": DeliveredStatus,
	})
	if err != nil {
		return nil, fmt.Errorf("fulfilled orders graph query failed: %w", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read order records: %w", err)
	}

	orders, err := ordersFromRecords(records)
	if err != nil {
		return nil, err
	}

	g.logger.WithField("orders", len(orders)).Debug("Fetched fulfilled orders from graph")
	return orders, nil
}

func ordersFromRecords(records []*neo4j.Record) ([]recommender.FulfilledOrder, error) {
	orders := make([]recommender.FulfilledOrder, 0, len(records))

	for _, record := range records {
		orderID, _, err := neo4j.GetRecordValue[string](record, "order_id")
		if err != nil {
			return nil, fmt.Errorf("invalid order record: %w", err)
		}
		userID, _, err := neo4j.GetRecordValue[string](record, "user_id")
		if err != nil {
			return nil, fmt.Errorf("invalid user on order %s: %w", orderID, err)
		}
		lines, _, err := neo4j.GetRecordValue[[]interface{}](record, "lines")
		if err != nil {
			return nil, fmt.Errorf("invalid lines on order %s: %w", orderID, err)
		}

		order := recommender.FulfilledOrder{OrderID: orderID, UserID: userID}
		for _, raw := range lines {
			line, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			// An order without products still yields one null line from collect.
			productID, _ := line["product_id"].(string)
			qty, _ := line["qty"].(int64)
			if productID == "" {
				continue
			}
			order.LineItems = append(order.LineItems, recommender.LineItem{ItemID: productID, Quantity: int(qty)})
		}
		orders = append(orders, order)
	}

	return orders, nil
}
