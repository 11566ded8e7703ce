package postgres

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const topCategoriesLimit = 5

type statsRepository struct{ querier }

// Totals собирает сводку одним запросом с подзапросами по каждой таблице.
func (r statsRepository) Totals() (domain.PlatformTotals, error) {
	scan := func(row rowScanner) (domain.PlatformTotals, error) {
		var t domain.PlatformTotals
		err := row.Scan(
			&t.TotalUsers, &t.Buyers, &t.Sellers, &t.VerifiedSellers, &t.PremiumUsers, &t.PendingVerifications,
			&t.ActiveListings, &t.ProductsPendingReview, &t.ExpiredListings, &t.FeaturedProducts,
			&t.TotalOrders, &t.PendingOrders, &t.ShippedOrders, &t.CompletedOrders, &t.TotalRevenue,
			&t.OpenDisputes, &t.PendingReports,
		)
		return t, err
	}
	totals, err := getOne(r.querier, scan, nil, "platform totals", `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE user_type IN ('buyer', 'both')),
			(SELECT COUNT(*) FROM users WHERE user_type IN ('seller', 'both')),
			(SELECT COUNT(*) FROM users WHERE user_type IN ('seller', 'both')
				AND verification_status = 'verified' AND account_approved),
			(SELECT COUNT(*) FROM users WHERE is_premium),
			(SELECT COUNT(*) FROM users WHERE user_type IN ('seller', 'both') AND verification_status = 'pending'),
			(SELECT COUNT(*) FROM products WHERE status = 'active' AND is_active),
			(SELECT COUNT(*) FROM products WHERE status = 'pending_verification' AND is_active),
			(SELECT COUNT(*) FROM products WHERE status = 'expired'),
			(SELECT COUNT(*) FROM products WHERE is_featured AND is_active),
			(SELECT COUNT(*) FROM orders),
			(SELECT COUNT(*) FROM orders WHERE status = 'pending'),
			(SELECT COUNT(*) FROM orders WHERE status = 'shipped'),
			(SELECT COUNT(*) FROM orders WHERE status = 'delivered'),
			(SELECT COALESCE(SUM(total_amount), 0) FROM orders WHERE status = 'delivered'),
			(SELECT COUNT(*) FROM disputes WHERE status = 'open'),
			(SELECT COUNT(*) FROM reports WHERE status = 'pending')
	`)
	if err != nil {
		return domain.PlatformTotals{}, err
	}

	scanCategory := func(row rowScanner) (domain.CategoryCount, error) {
		var c domain.CategoryCount
		err := row.Scan(&c.CategoryID, &c.Name, &c.Count)
		return c, err
	}
	top, err := queryList(r.querier, scanCategory, `
		SELECT c.id, c.name, COUNT(*) AS n
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.status = 'active' AND p.is_active
		GROUP BY c.id, c.name
		ORDER BY n DESC, c.name
		LIMIT $1
	`, topCategoriesLimit)
	if err != nil {
		return domain.PlatformTotals{}, fmt.Errorf("top categories: %w", err)
	}
	totals.TopCategories = top
	return totals, nil
}

// PeriodCounts считает новые записи в полуинтервале [from, to).
func (r statsRepository) PeriodCounts(from, to time.Time) (domain.PeriodCounts, error) {
	scan := func(row rowScanner) (domain.PeriodCounts, error) {
		var c domain.PeriodCounts
		err := row.Scan(&c.NewUsers, &c.NewProducts, &c.NewOrders, &c.Revenue)
		return c, err
	}
	return getOne(r.querier, scan, nil, "period counts", `
		SELECT
			(SELECT COUNT(*) FROM users WHERE created_at >= $1 AND created_at < $2),
			(SELECT COUNT(*) FROM products WHERE created_at >= $1 AND created_at < $2),
			(SELECT COUNT(*) FROM orders WHERE created_at >= $1 AND created_at < $2),
			(SELECT COALESCE(SUM(total_amount), 0) FROM orders
				WHERE created_at >= $1 AND created_at < $2 AND status = 'delivered')
	`, from, to)
}

func (r statsRepository) RevenueFor(filter domain.OrderFilter, statuses ...domain.OrderStatus) (decimal.Decimal, error) {
	var w whereBuilder
	orderFilterWhere(filter, &w)
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = string(s)
		}
		w.add("status = ANY(?)", names)
	}

	scan := func(row rowScanner) (decimal.Decimal, error) {
		var sum decimal.Decimal
		err := row.Scan(&sum)
		return sum, err
	}
	return getOne(r.querier, scan, nil, "order revenue",
		`SELECT COALESCE(SUM(total_amount), 0) FROM orders`+w.sql(), w.args...)
}

var _ domain.StatsRepository = statsRepository{}
