package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// StatsPeriod — окно сравнения на панели администратора.
type StatsPeriod string

const (
	PeriodDay   StatsPeriod = "day"
	PeriodWeek  StatsPeriod = "week"
	PeriodMonth StatsPeriod = "month"
	PeriodYear  StatsPeriod = "year"
)

// ParseStatsPeriod возвращает окно по строке, по умолчанию неделя.
func ParseStatsPeriod(s string) StatsPeriod {
	switch StatsPeriod(s) {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return StatsPeriod(s)
	default:
		return PeriodWeek
	}
}

// Duration возвращает длину окна.
func (p StatsPeriod) Duration() time.Duration {
	switch p {
	case PeriodDay:
		return 24 * time.Hour
	case PeriodMonth:
		return 30 * 24 * time.Hour
	case PeriodYear:
		return 365 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Windows возвращает текущее и предыдущее окно одинаковой длины.
func (p StatsPeriod) Windows(now time.Time) (curFrom, prevFrom time.Time) {
	d := p.Duration()
	curFrom = now.Add(-d)
	prevFrom = curFrom.Add(-d)
	return curFrom, prevFrom
}

// Growth считает прирост в процентах к предыдущему окну.
// При нулевой базе: 100, если текущее значение больше нуля, иначе 0.
func Growth(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return math.Round((current-previous)/previous*100*100) / 100
}

// PeriodCounts — показатели, созданные внутри окна [From, To).
type PeriodCounts struct {
	NewUsers    int `json:"new_users"`
	NewProducts int `json:"new_products"`
	NewOrders   int `json:"new_orders"`
	// Revenue — сумма доставленных заказов, созданных в окне.
	Revenue decimal.Decimal `json:"revenue"`
}

// PlatformTotals — точечный срез площадки.
type PlatformTotals struct {
	TotalUsers            int             `json:"total_users"`
	Buyers                int             `json:"buyers"`
	Sellers               int             `json:"sellers"`
	VerifiedSellers       int             `json:"verified_sellers"`
	PremiumUsers          int             `json:"premium_users"`
	PendingVerifications  int             `json:"pending_verifications"`
	ActiveListings        int             `json:"active_listings"`
	ProductsPendingReview int             `json:"products_pending_review"`
	ExpiredListings       int             `json:"expired_listings"`
	FeaturedProducts      int             `json:"featured_products"`
	TotalOrders           int             `json:"total_orders"`
	PendingOrders         int             `json:"pending_orders"`
	ShippedOrders         int             `json:"shipped_orders"`
	CompletedOrders       int             `json:"completed_orders"`
	TotalRevenue          decimal.Decimal `json:"total_revenue"`
	OpenDisputes          int             `json:"open_disputes"`
	PendingReports        int             `json:"pending_reports"`
	TopCategories         []CategoryCount `json:"top_categories"`
}

// OrderStatistics — сводка по заказам пользователя.
type OrderStatistics struct {
	BuyerTotal      int             `json:"buyer_total"`
	BuyerPending    int             `json:"buyer_pending"`
	BuyerCompleted  int             `json:"buyer_completed"`
	BuyerSpent      decimal.Decimal `json:"buyer_spent"`
	SellerTotal     int             `json:"seller_total"`
	SellerPending   int             `json:"seller_pending"`
	SellerCompleted int             `json:"seller_completed"`
	// SellerRevenue считается по отправленным и доставленным заказам.
	SellerRevenue   decimal.Decimal `json:"seller_revenue"`
	DisputesOpened  int             `json:"disputes_opened"`
	DisputesActive  int             `json:"disputes_active"`
	RecentPurchases []Order         `json:"recent_purchases"`
	RecentSales     []Order         `json:"recent_sales"`
}

// GrowthRates — прирост показателей к предыдущему окну, в процентах.
type GrowthRates struct {
	Users    float64 `json:"users"`
	Products float64 `json:"products"`
	Orders   float64 `json:"orders"`
	Revenue  float64 `json:"revenue"`
}

// DashboardStats — сводка панели администратора за окно.
type DashboardStats struct {
	Period      StatsPeriod    `json:"period"`
	Totals      PlatformTotals `json:"totals"`
	Current     PeriodCounts   `json:"current"`
	Previous    PeriodCounts   `json:"previous"`
	Growth      GrowthRates    `json:"growth"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// NewDashboardStats считает прирост по двум окнам.
func NewDashboardStats(period StatsPeriod, totals PlatformTotals, cur, prev PeriodCounts, at time.Time) DashboardStats {
	curRevenue, _ := cur.Revenue.Float64()
	prevRevenue, _ := prev.Revenue.Float64()
	return DashboardStats{
		Period:   period,
		Totals:   totals,
		Current:  cur,
		Previous: prev,
		Growth: GrowthRates{
			Users:    Growth(float64(cur.NewUsers), float64(prev.NewUsers)),
			Products: Growth(float64(cur.NewProducts), float64(prev.NewProducts)),
			Orders:   Growth(float64(cur.NewOrders), float64(prev.NewOrders)),
			Revenue:  Growth(curRevenue, prevRevenue),
		},
		GeneratedAt: at,
	}
}
