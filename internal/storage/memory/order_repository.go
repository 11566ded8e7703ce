package memory

import (
	"sort"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type orderRepository struct{ view }

// Create сохраняет новый заказ. Занятый номер возвращает ErrOrderNumberTaken.
func (r orderRepository) Create(order domain.Order) error {
	defer r.lock()()
	st := r.s.st

	if _, exists := st.orders[order.ID]; exists {
		return domain.ErrVersionConflict
	}
	if _, taken := st.orderNumbers[order.OrderNumber]; taken {
		return domain.ErrOrderNumberTaken
	}
	put(r.tx, st.orders, order.ID, order)
	put(r.tx, st.orderNumbers, order.OrderNumber, order.ID)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r orderRepository) Get(id string) (domain.Order, error) {
	defer r.rlock()()

	order, ok := r.s.st.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r orderRepository) GetByNumber(orderNumber string) (domain.Order, error) {
	defer r.rlock()()

	id, ok := r.s.st.orderNumbers[orderNumber]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.s.st.orders[id], nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r orderRepository) Save(order domain.Order) error {
	defer r.lock()()

	current, ok := r.s.st.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrVersionConflict
	}
	order.OrderNumber = current.OrderNumber
	order.Version++
	put(r.tx, r.s.st.orders, order.ID, order)
	return nil
}

// List возвращает заказы по фильтру, новые первыми.
func (r orderRepository) List(filter domain.OrderFilter) ([]domain.Order, error) {
	defer r.rlock()()

	result := make([]domain.Order, 0)
	for _, order := range r.s.st.orders {
		if filter.Matches(order) {
			result = append(result, order)
		}
	}
	sortNewestFirst(result, func(o domain.Order) (int64, string) { return o.CreatedAt.UnixNano(), o.ID })
	return limitSlice(result, filter.Limit), nil
}

type orderHistoryRepository struct{ view }

func (r orderHistoryRepository) Append(entry domain.OrderStatusEntry) error {
	defer r.lock()()
	appendTo(r.tx, r.s.st.history, entry.OrderID, entry)
	return nil
}

// List возвращает историю в порядке добавления.
func (r orderHistoryRepository) List(orderID string) ([]domain.OrderStatusEntry, error) {
	defer r.rlock()()

	entries := r.s.st.history[orderID]
	result := make([]domain.OrderStatusEntry, len(entries))
	copy(result, entries)
	return result, nil
}

type shippingMethodRepository struct{ view }

func (r shippingMethodRepository) Create(method domain.ShippingMethod) error {
	defer r.lock()()
	put(r.tx, r.s.st.shippingMethods, method.ID, method)
	return nil
}

func (r shippingMethodRepository) Get(id string) (domain.ShippingMethod, error) {
	defer r.rlock()()

	m, ok := r.s.st.shippingMethods[id]
	if !ok {
		return domain.ShippingMethod{}, domain.ErrShippingMethodNotFound
	}
	return m, nil
}

func (r shippingMethodRepository) ListActive() ([]domain.ShippingMethod, error) {
	defer r.rlock()()

	result := make([]domain.ShippingMethod, 0)
	for _, m := range r.s.st.shippingMethods {
		if m.IsActive {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].BaseCost.Equal(result[j].BaseCost) {
			return result[i].BaseCost.LessThan(result[j].BaseCost)
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

type offerRepository struct{ view }

// Create сохраняет предложение. Второе ожидающее предложение пары отклоняется.
func (r offerRepository) Create(offer domain.Offer) error {
	defer r.lock()()

	if offer.Status == domain.OfferStatusPending && r.hasPending(offer.ProductID, offer.BuyerID) {
		return domain.ErrOfferDuplicatePending
	}
	put(r.tx, r.s.st.offers, offer.ID, offer)
	return nil
}

func (r offerRepository) Get(id string) (domain.Offer, error) {
	defer r.rlock()()

	o, ok := r.s.st.offers[id]
	if !ok {
		return domain.Offer{}, domain.ErrOfferNotFound
	}
	return o, nil
}

func (r offerRepository) Save(offer domain.Offer) error {
	defer r.lock()()

	if _, ok := r.s.st.offers[offer.ID]; !ok {
		return domain.ErrOfferNotFound
	}
	put(r.tx, r.s.st.offers, offer.ID, offer)
	return nil
}

func (r offerRepository) HasPending(productID, buyerID string) (bool, error) {
	defer r.rlock()()
	return r.hasPending(productID, buyerID), nil
}

func (r offerRepository) hasPending(productID, buyerID string) bool {
	for _, o := range r.s.st.offers {
		if o.ProductID == productID && o.BuyerID == buyerID && o.Status == domain.OfferStatusPending {
			return true
		}
	}
	return false
}

func (r offerRepository) ListByProduct(productID string) ([]domain.Offer, error) {
	return r.list(func(o domain.Offer) bool { return o.ProductID == productID })
}

func (r offerRepository) ListByBuyer(buyerID string) ([]domain.Offer, error) {
	return r.list(func(o domain.Offer) bool { return o.BuyerID == buyerID })
}

func (r offerRepository) list(match func(domain.Offer) bool) ([]domain.Offer, error) {
	defer r.rlock()()

	result := make([]domain.Offer, 0)
	for _, o := range r.s.st.offers {
		if match(o) {
			result = append(result, o)
		}
	}
	sortNewestFirst(result, func(o domain.Offer) (int64, string) { return o.CreatedAt.UnixNano(), o.ID })
	return result, nil
}

var (
	_ domain.OrderRepository          = orderRepository{}
	_ domain.OrderStatusRepository    = orderHistoryRepository{}
	_ domain.ShippingMethodRepository = shippingMethodRepository{}
	_ domain.OfferRepository          = offerRepository{}
)
