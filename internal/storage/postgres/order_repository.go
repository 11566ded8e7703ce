package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const orderColumns = `
	id, order_number, buyer_id, seller_id, product_id, offer_id, unit_price, shipping_cost, total_amount,
	shipping_method_id, shipping_name, shipping_address, shipping_city, shipping_postal_code,
	shipping_country, shipping_phone, tracking_number, status, buyer_notes, seller_notes, version,
	created_at, updated_at, approved_at, shipped_at, delivered_at, cancelled_at`

type orderRepository struct{ querier }

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o                                          domain.Order
		status                                     string
		offerID, methodID                          sql.NullString
		approvedAt, shippedAt, deliveredAt, cancAt sql.NullTime
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.BuyerID, &o.SellerID, &o.ProductID, &offerID, &o.UnitPrice, &o.ShippingCost, &o.TotalAmount,
		&methodID, &o.ShippingName, &o.ShippingAddress, &o.ShippingCity, &o.ShippingPostalCode,
		&o.ShippingCountry, &o.ShippingPhone, &o.TrackingNumber, &status, &o.BuyerNotes, &o.SellerNotes, &o.Version,
		&o.CreatedAt, &o.UpdatedAt, &approvedAt, &shippedAt, &deliveredAt, &cancAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	o.OfferID = offerID.String
	o.ShippingMethodID = methodID.String
	o.ApprovedAt = timePtr(approvedAt)
	o.ShippedAt = timePtr(shippedAt)
	o.DeliveredAt = timePtr(deliveredAt)
	o.CancelledAt = timePtr(cancAt)
	return o, nil
}

// Create вставляет заказ. Конфликт номера не прерывает транзакцию
// и возвращается как ErrOrderNumberTaken.
func (r orderRepository) Create(o domain.Order) error {
	affected, err := r.exec(`
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
		        $21,$22,$23,$24,$25,$26,$27)
		ON CONFLICT (order_number) DO NOTHING
	`,
		o.ID, o.OrderNumber, o.BuyerID, o.SellerID, o.ProductID, nullString(o.OfferID), o.UnitPrice, o.ShippingCost, o.TotalAmount,
		nullString(o.ShippingMethodID), o.ShippingName, o.ShippingAddress, o.ShippingCity, o.ShippingPostalCode,
		o.ShippingCountry, o.ShippingPhone, o.TrackingNumber, string(o.Status), o.BuyerNotes, o.SellerNotes, o.Version,
		o.CreatedAt, o.UpdatedAt, nullTime(o.ApprovedAt), nullTime(o.ShippedAt), nullTime(o.DeliveredAt), nullTime(o.CancelledAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNumberTaken
	}
	return nil
}

func (r orderRepository) Get(id string) (domain.Order, error) {
	return getOne(r.querier, scanOrder, domain.ErrOrderNotFound, "select order",
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r orderRepository) GetByNumber(orderNumber string) (domain.Order, error) {
	return getOne(r.querier, scanOrder, domain.ErrOrderNotFound, "select order by number",
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber)
}

func (r orderRepository) Save(o domain.Order) error {
	affected, err := r.exec(`
		UPDATE orders SET
			status = $3, tracking_number = $4, buyer_notes = $5, seller_notes = $6,
			shipping_name = $7, shipping_address = $8, shipping_city = $9, shipping_postal_code = $10,
			shipping_country = $11, shipping_phone = $12, updated_at = $13,
			approved_at = $14, shipped_at = $15, delivered_at = $16, cancelled_at = $17,
			version = version + 1
		WHERE id = $1 AND version = $2
	`,
		o.ID, o.Version, string(o.Status), o.TrackingNumber, o.BuyerNotes, o.SellerNotes,
		o.ShippingName, o.ShippingAddress, o.ShippingCity, o.ShippingPostalCode,
		o.ShippingCountry, o.ShippingPhone, o.UpdatedAt,
		nullTime(o.ApprovedAt), nullTime(o.ShippedAt), nullTime(o.DeliveredAt), nullTime(o.CancelledAt),
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.Get(o.ID); getErr != nil {
			return getErr
		}
		return domain.ErrVersionConflict
	}
	return nil
}

func orderFilterWhere(f domain.OrderFilter, w *whereBuilder) {
	switch f.Role {
	case domain.OrderRoleBuyer:
		w.add("buyer_id = ?", f.UserID)
	case domain.OrderRoleSeller:
		w.add("seller_id = ?", f.UserID)
	default:
		if f.UserID != "" {
			p := w.arg(f.UserID)
			w.conds = append(w.conds, "(buyer_id = "+p+" OR seller_id = "+p+")")
		}
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
}

func (r orderRepository) List(f domain.OrderFilter) ([]domain.Order, error) {
	var w whereBuilder
	orderFilterWhere(f, &w)

	query := `SELECT ` + orderColumns + ` FROM orders` + w.sql() + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT " + w.arg(f.Limit)
	}
	orders, err := queryList(r.querier, scanOrder, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

type orderHistoryRepository struct{ querier }

func (r orderHistoryRepository) Append(e domain.OrderStatusEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if _, err := r.exec(`
		INSERT INTO order_status_history (id, order_id, status, notes, changed_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, e.ID, e.OrderID, string(e.Status), e.Notes, e.ChangedBy, e.CreatedAt); err != nil {
		return fmt.Errorf("append order status: %w", err)
	}
	return nil
}

func (r orderHistoryRepository) List(orderID string) ([]domain.OrderStatusEntry, error) {
	scan := func(row rowScanner) (domain.OrderStatusEntry, error) {
		var (
			e      domain.OrderStatusEntry
			status string
		)
		err := row.Scan(&e.ID, &e.OrderID, &status, &e.Notes, &e.ChangedBy, &e.CreatedAt)
		e.Status = domain.OrderStatus(status)
		return e, err
	}
	entries, err := queryList(r.querier, scan, `
		SELECT id, order_id, status, notes, changed_by, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order history: %w", err)
	}
	return entries, nil
}

type shippingMethodRepository struct{ querier }

func scanShippingMethod(row rowScanner) (domain.ShippingMethod, error) {
	var m domain.ShippingMethod
	err := row.Scan(&m.ID, &m.Name, &m.BaseCost, &m.EstimatedDays, &m.IsActive, &m.CreatedAt)
	return m, err
}

func (r shippingMethodRepository) Create(m domain.ShippingMethod) error {
	if _, err := r.exec(`
		INSERT INTO shipping_methods (id, name, base_cost, estimated_days, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, m.ID, m.Name, m.BaseCost, m.EstimatedDays, m.IsActive, m.CreatedAt); err != nil {
		return fmt.Errorf("insert shipping method: %w", err)
	}
	return nil
}

func (r shippingMethodRepository) Get(id string) (domain.ShippingMethod, error) {
	return getOne(r.querier, scanShippingMethod, domain.ErrShippingMethodNotFound, "select shipping method", `
		SELECT id, name, base_cost, estimated_days, is_active, created_at FROM shipping_methods WHERE id = $1
	`, id)
}

func (r shippingMethodRepository) ListActive() ([]domain.ShippingMethod, error) {
	methods, err := queryList(r.querier, scanShippingMethod, `
		SELECT id, name, base_cost, estimated_days, is_active, created_at
		FROM shipping_methods
		WHERE is_active
		ORDER BY base_cost, name
	`)
	if err != nil {
		return nil, fmt.Errorf("list shipping methods: %w", err)
	}
	return methods, nil
}

const offerColumns = `
	id, product_id, buyer_id, seller_id, amount, message, status, seller_response,
	expires_at, responded_at, created_at, updated_at`

type offerRepository struct{ querier }

func scanOffer(row rowScanner) (domain.Offer, error) {
	var (
		o                    domain.Offer
		status               string
		expiresAt, respondAt sql.NullTime
	)
	err := row.Scan(&o.ID, &o.ProductID, &o.BuyerID, &o.SellerID, &o.Amount, &o.Message, &status,
		&o.SellerResponse, &expiresAt, &respondAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Offer{}, err
	}
	o.Status = domain.OfferStatus(status)
	o.ExpiresAt = timePtr(expiresAt)
	o.RespondedAt = timePtr(respondAt)
	return o, nil
}

// Create опирается на частичный уникальный индекс offers_pending_key.
func (r offerRepository) Create(o domain.Offer) error {
	_, err := r.exec(`
		INSERT INTO offers (`+offerColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, o.ID, o.ProductID, o.BuyerID, o.SellerID, o.Amount, o.Message, string(o.Status),
		o.SellerResponse, nullTime(o.ExpiresAt), nullTime(o.RespondedAt), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if name, ok := uniqueConstraint(err); ok && name == "offers_pending_key" {
			return domain.ErrOfferDuplicatePending
		}
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

func (r offerRepository) Get(id string) (domain.Offer, error) {
	return getOne(r.querier, scanOffer, domain.ErrOfferNotFound, "select offer",
		`SELECT `+offerColumns+` FROM offers WHERE id = $1`, id)
}

func (r offerRepository) Save(o domain.Offer) error {
	affected, err := r.exec(`
		UPDATE offers SET status = $2, seller_response = $3, responded_at = $4, updated_at = $5
		WHERE id = $1
	`, o.ID, string(o.Status), o.SellerResponse, nullTime(o.RespondedAt), o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update offer: %w", err)
	}
	if affected == 0 {
		return domain.ErrOfferNotFound
	}
	return nil
}

func (r offerRepository) HasPending(productID, buyerID string) (bool, error) {
	scan := func(row rowScanner) (bool, error) {
		var ok bool
		err := row.Scan(&ok)
		return ok, err
	}
	return getOne(r.querier, scan, nil, "pending offer exists", `
		SELECT EXISTS (SELECT 1 FROM offers WHERE product_id = $1 AND buyer_id = $2 AND status = 'pending')
	`, productID, buyerID)
}

func (r offerRepository) ListByProduct(productID string) ([]domain.Offer, error) {
	offers, err := queryList(r.querier, scanOffer,
		`SELECT `+offerColumns+` FROM offers WHERE product_id = $1 ORDER BY created_at DESC, id DESC`, productID)
	if err != nil {
		return nil, fmt.Errorf("list product offers: %w", err)
	}
	return offers, nil
}

func (r offerRepository) ListByBuyer(buyerID string) ([]domain.Offer, error) {
	offers, err := queryList(r.querier, scanOffer,
		`SELECT `+offerColumns+` FROM offers WHERE buyer_id = $1 ORDER BY created_at DESC, id DESC`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list buyer offers: %w", err)
	}
	return offers, nil
}

var (
	_ domain.OrderRepository          = orderRepository{}
	_ domain.OrderStatusRepository    = orderHistoryRepository{}
	_ domain.ShippingMethodRepository = shippingMethodRepository{}
	_ domain.OfferRepository          = offerRepository{}
)
