package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/temcen/marketrec/internal/recommender"
)

// DeliveredStatus is the order status that counts as a completed purchase.
const DeliveredStatus = "Delivered"

// DatabaseQuerier is the subset of pgxpool.Pool the stores use.
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Postgres reads orders and products from the relational schema. It
// implements every recommender data-source interface.
type Postgres struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

// NewPostgres creates a Postgres-backed data source.
func NewPostgres(db DatabaseQuerier, logger *logrus.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

const productColumns = `
		p.id::text,
		p.name,
		COALESCE(p.description, ''),
		p.category,
		COALESCE(NULLIF(p.discount_price, 0), p.original_price)::float8,
		COALESCE(p.ratings, 0)::float8,
		COALESCE(p.tags, ''),
		COALESCE(p.sold_out, 0),
		COALESCE(p.shop_id::text, ''),
		p.created_at`

// FetchFulfilledOrders returns every delivered order with its line items.
func (s *Postgres) FetchFulfilledOrders(ctx context.Context) ([]recommender.FulfilledOrder, error) {
	query := `
		SELECT o.id::text, COALESCE(o.user_id::text, ''), COALESCE(oi.product_id::text, ''), COALESCE(oi.quantity, 0)
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		WHERE o.status = $1
		ORDER BY o.id, oi.id`

	rows, err := s.db.Query(ctx, query, DeliveredStatus)
	if err != nil {
		return nil, fmt.Errorf("fulfilled orders query failed: %w", err)
	}
	defer rows.Close()

	var orders []recommender.FulfilledOrder
	for rows.Next() {
		var orderID, userID, productID string
		var quantity int

		if err := rows.Scan(&orderID, &userID, &productID, &quantity); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}

		if n := len(orders); n == 0 || orders[n-1].OrderID != orderID {
			orders = append(orders, recommender.FulfilledOrder{OrderID: orderID, UserID: userID})
		}
		last := &orders[len(orders)-1]
		last.LineItems = append(last.LineItems, recommender.LineItem{ItemID: productID, Quantity: quantity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}

	s.logger.WithField("orders", len(orders)).Debug("Fetched fulfilled orders")
	return orders, nil
}

// FetchCatalogItems returns the products matching filter.
func (s *Postgres) FetchCatalogItems(ctx context.Context, filter recommender.CatalogFilter) ([]recommender.CatalogItem, error) {
	where, args := catalogConditions(filter)

	query := "SELECT" + productColumns + "\n\t\tFROM products p" + where + "\n\t\tORDER BY " + orderClause(filter.Sort)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	return collectProducts(rows)
}

// FetchCatalogItemsByIDs returns the products with the given ids. Unknown ids
// are silently absent from the result.
func (s *Postgres) FetchCatalogItemsByIDs(ctx context.Context, ids []string) ([]recommender.CatalogItem, error) {
	if len(ids) == 0 {
		return []recommender.CatalogItem{}, nil
	}

	query := "SELECT" + productColumns + "\n\t\tFROM products p\n\t\tWHERE p.id::text = ANY($1)"

	rows, err := s.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}
	return collectProducts(rows)
}

// CountCatalogItems counts the products matching filter, ignoring paging.
func (s *Postgres) CountCatalogItems(ctx context.Context, filter recommender.CatalogFilter) (int64, error) {
	where, args := catalogConditions(filter)

	var count int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM products p"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("catalog count failed: %w", err)
	}
	return count, nil
}

// FetchUserPurchasedItems returns one product per delivered order line of the
// user, so repeat purchases appear repeatedly.
func (s *Postgres) FetchUserPurchasedItems(ctx context.Context, userID string) ([]recommender.CatalogItem, error) {
	query := "SELECT" + productColumns + `
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		JOIN products p ON p.id = oi.product_id
		WHERE o.status = $1 AND o.user_id::text = $2
		ORDER BY o.created_at, oi.id`

	rows, err := s.db.Query(ctx, query, DeliveredStatus, userID)
	if err != nil {
		return nil, fmt.Errorf("purchase history query failed: %w", err)
	}
	return collectProducts(rows)
}

// ProductNameCounts groups the products whose name or tags contain query by
// product name.
func (s *Postgres) ProductNameCounts(ctx context.Context, query string, limit int) ([]recommender.TermCount, error) {
	return s.termCounts(ctx, `
		SELECT p.name, COUNT(*), COALESCE(AVG(p.ratings), 0)::float8
		FROM products p
		WHERE p.name ILIKE $1 OR p.tags ILIKE $1
		GROUP BY p.name
		ORDER BY COUNT(*) DESC, p.name`, query, limit)
}

// CategoryCounts groups the products whose category contains query by
// category.
func (s *Postgres) CategoryCounts(ctx context.Context, query string, limit int) ([]recommender.TermCount, error) {
	return s.termCounts(ctx, `
		SELECT p.category, COUNT(*), COALESCE(AVG(p.ratings), 0)::float8
		FROM products p
		WHERE p.category ILIKE $1
		GROUP BY p.category
		ORDER BY COUNT(*) DESC, p.category`, query, limit)
}

// ShopProductCounts counts the products of every shop whose name contains
// query. Shops without products are left out.
func (s *Postgres) ShopProductCounts(ctx context.Context, query string, limit int) ([]recommender.TermCount, error) {
	return s.termCounts(ctx, `
		SELECT sh.name, COUNT(p.id), COALESCE(AVG(p.ratings), 0)::float8
		FROM shops sh
		JOIN products p ON p.shop_id = sh.id
		WHERE sh.name ILIKE $1
		GROUP BY sh.name
		ORDER BY COUNT(p.id) DESC, sh.name`, query, limit)
}

func (s *Postgres) termCounts(ctx context.Context, query, match string, limit int) ([]recommender.TermCount, error) {
	args := []interface{}{"%" + escapeLike(match) + "%"}
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $2"
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog aggregation failed: %w", err)
	}
	defer rows.Close()

	terms := []recommender.TermCount{}
	for rows.Next() {
		var term recommender.TermCount
		if err := rows.Scan(&term.Term, &term.Count, &term.AvgRating); err != nil {
			return nil, fmt.Errorf("failed to scan term count: %w", err)
		}
		terms = append(terms, term)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read term counts: %w", err)
	}
	return terms, nil
}

func collectProducts(rows pgx.Rows) ([]recommender.CatalogItem, error) {
	defer rows.Close()

	items := []recommender.CatalogItem{}
	for rows.Next() {
		var item recommender.CatalogItem
		if err := rows.Scan(
			&item.ID,
			&item.Name,
			&item.Description,
			&item.Category,
			&item.Price,
			&item.Rating,
			&item.Tags,
			&item.SoldCount,
			&item.ShopID,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}
	return items, nil
}

func catalogConditions(filter recommender.CatalogFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.Query != "" {
		args = append(args, "%"+escapeLike(filter.Query)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(p.name ILIKE $%d OR p.description ILIKE $%d OR p.tags ILIKE $%d OR p.category ILIKE $%d)", n, n, n, n))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("LOWER(p.category) = LOWER($%d)", len(args)))
	}
	if filter.MinPrice != nil {
		args = append(args, *filter.MinPrice)
		conditions = append(conditions, fmt.Sprintf("COALESCE(NULLIF(p.discount_price, 0), p.original_price) >= $%d", len(args)))
	}
	if filter.MaxPrice != nil {
		args = append(args, *filter.MaxPrice)
		conditions = append(conditions, fmt.Sprintf("COALESCE(NULLIF(p.discount_price, 0), p.original_price) <= $%d", len(args)))
	}
	if filter.MinRating != nil {
		args = append(args, *filter.MinRating)
		conditions = append(conditions, fmt.Sprintf("p.ratings >= $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "\n\t\tWHERE " + strings.Join(conditions, " AND "), args
}

func orderClause(order recommender.SortOrder) string {
	switch order {
	case recommender.SortPriceAsc:
		return "COALESCE(NULLIF(p.discount_price, 0), p.original_price) ASC, p.id"
	case recommender.SortPriceDesc:
		return "COALESCE(NULLIF(p.discount_price, 0), p.original_price) DESC, p.id"
	case recommender.SortRating, recommender.SortTopRated:
		return "p.ratings DESC, p.sold_out DESC, p.id"
	case recommender.SortNewest:
		return "p.created_at DESC, p.id"
	case recommender.SortTrending:
		return "p.sold_out DESC, p.ratings DESC, p.id"
	default:
		return "p.id"
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
