package memory

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const topCategoriesLimit = 5

type statsRepository struct{ view }

func (r statsRepository) Totals() (domain.PlatformTotals, error) {
	defer r.rlock()()
	st := r.s.st

	t := domain.PlatformTotals{TotalRevenue: decimal.Zero}
	for _, u := range st.users {
		t.TotalUsers++
		if u.UserType == domain.UserTypeBuyer || u.UserType == domain.UserTypeBoth {
			t.Buyers++
		}
		if u.RequiresVerification() {
			t.Sellers++
			if u.IsVerifiedSeller() {
				t.VerifiedSellers++
			}
			if u.VerificationStatus == domain.VerificationPending {
				t.PendingVerifications++
			}
		}
		if u.IsPremium {
			t.PremiumUsers++
		}
	}

	perCategory := make(map[string]int)
	for _, p := range st.products {
		if p.IsAvailable() {
			t.ActiveListings++
			perCategory[p.CategoryID]++
		}
		if p.Status == domain.ProductStatusPendingVerification && p.IsActive {
			t.ProductsPendingReview++
		}
		if p.Status == domain.ProductStatusExpired {
			t.ExpiredListings++
		}
		if p.IsFeatured && p.IsActive {
			t.FeaturedProducts++
		}
	}

	for _, o := range st.orders {
		t.TotalOrders++
		switch o.Status {
		case domain.OrderStatusPending:
			t.PendingOrders++
		case domain.OrderStatusShipped:
			t.ShippedOrders++
		case domain.OrderStatusDelivered:
			t.CompletedOrders++
			t.TotalRevenue = t.TotalRevenue.Add(o.TotalAmount)
		}
	}

	for _, d := range st.disputes {
		if d.Status == domain.DisputeStatusOpen {
			t.OpenDisputes++
		}
	}
	for _, rep := range st.reports {
		if rep.Status == domain.ReportStatusPending {
			t.PendingReports++
		}
	}

	top := make([]domain.CategoryCount, 0, len(perCategory))
	for id, n := range perCategory {
		top = append(top, domain.CategoryCount{CategoryID: id, Name: st.categories[id].Name, Count: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Name < top[j].Name
	})
	t.TopCategories = limitSlice(top, topCategoriesLimit)
	return t, nil
}

func (r statsRepository) PeriodCounts(from, to time.Time) (domain.PeriodCounts, error) {
	defer r.rlock()()
	st := r.s.st

	in := func(at time.Time) bool { return !at.Before(from) && at.Before(to) }

	c := domain.PeriodCounts{Revenue: decimal.Zero}
	for _, u := range st.users {
		if in(u.CreatedAt) {
			c.NewUsers++
		}
	}
	for _, p := range st.products {
		if in(p.CreatedAt) {
			c.NewProducts++
		}
	}
	for _, o := range st.orders {
		if !in(o.CreatedAt) {
			continue
		}
		c.NewOrders++
		if o.Status == domain.OrderStatusDelivered {
			c.Revenue = c.Revenue.Add(o.TotalAmount)
		}
	}
	return c, nil
}

func (r statsRepository) RevenueFor(filter domain.OrderFilter, statuses ...domain.OrderStatus) (decimal.Decimal, error) {
	defer r.rlock()()

	allowed := make(map[domain.OrderStatus]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}

	sum := decimal.Zero
	for _, o := range r.s.st.orders {
		if !filter.Matches(o) {
			continue
		}
		if len(allowed) > 0 && !allowed[o.Status] {
			continue
		}
		sum = sum.Add(o.TotalAmount)
	}
	return sum, nil
}

var _ domain.StatsRepository = statsRepository{}
