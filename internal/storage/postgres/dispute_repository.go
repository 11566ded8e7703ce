package postgres

import (
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const disputeColumns = `
	id, order_id, complainant_id, dispute_type, description, evidence, status,
	resolution, resolved_by, resolved_at, created_at, updated_at`

type disputeRepository struct{ querier }

func scanDispute(row rowScanner) (domain.Dispute, error) {
	var (
		d            domain.Dispute
		kind, status string
		resolvedBy   sql.NullString
		resolvedAt   sql.NullTime
	)
	err := row.Scan(&d.ID, &d.OrderID, &d.ComplainantID, &kind, &d.Description, &d.Evidence, &status,
		&d.Resolution, &resolvedBy, &resolvedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return domain.Dispute{}, err
	}
	d.Type = domain.DisputeType(kind)
	d.Status = domain.DisputeStatus(status)
	d.ResolvedBy = resolvedBy.String
	d.ResolvedAt = timePtr(resolvedAt)
	return d, nil
}

// Create опирается на частичный индекс disputes_active_key: у заказа один активный спор.
func (r disputeRepository) Create(d domain.Dispute) error {
	_, err := r.exec(`
		INSERT INTO disputes (`+disputeColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, d.ID, d.OrderID, d.ComplainantID, string(d.Type), d.Description, d.Evidence, string(d.Status),
		d.Resolution, nullString(d.ResolvedBy), nullTime(d.ResolvedAt), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if name, ok := uniqueConstraint(err); ok && name == "disputes_active_key" {
			return domain.ErrDisputeAlreadyOpen
		}
		return fmt.Errorf("insert dispute: %w", err)
	}
	return nil
}

func (r disputeRepository) Get(id string) (domain.Dispute, error) {
	return getOne(r.querier, scanDispute, domain.ErrDisputeNotFound, "select dispute",
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
}

func (r disputeRepository) Save(d domain.Dispute) error {
	affected, err := r.exec(`
		UPDATE disputes SET status = $2, resolution = $3, resolved_by = $4, resolved_at = $5, updated_at = $6
		WHERE id = $1
	`, d.ID, string(d.Status), d.Resolution, nullString(d.ResolvedBy), nullTime(d.ResolvedAt), d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update dispute: %w", err)
	}
	if affected == 0 {
		return domain.ErrDisputeNotFound
	}
	return nil
}

func (r disputeRepository) HasActive(orderID string) (bool, error) {
	scan := func(row rowScanner) (bool, error) {
		var ok bool
		err := row.Scan(&ok)
		return ok, err
	}
	return getOne(r.querier, scan, nil, "active dispute exists", `
		SELECT EXISTS (SELECT 1 FROM disputes WHERE order_id = $1 AND status IN ('open', 'under_review'))
	`, orderID)
}

func (r disputeRepository) ListForUser(userID string, status domain.DisputeStatus, limit int) ([]domain.Dispute, error) {
	disputes, err := queryList(r.querier, scanDispute, `
		SELECT `+prefixed("d.", disputeColumns)+`
		FROM disputes d
		JOIN orders o ON o.id = d.order_id
		WHERE ($1 = '' OR d.complainant_id = $1 OR o.buyer_id = $1 OR o.seller_id = $1)
		  AND ($2 = '' OR d.status = $2)
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT NULLIF($3, 0)
	`, userID, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	return disputes, nil
}

type disputeMessageRepository struct{ querier }

func (r disputeMessageRepository) Append(m domain.DisputeMessage) error {
	if _, err := r.exec(`
		INSERT INTO dispute_messages (id, dispute_id, sender_id, message, is_admin_message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, m.ID, m.DisputeID, m.SenderID, m.Message, m.IsAdminMessage, m.CreatedAt); err != nil {
		return fmt.Errorf("append dispute message: %w", err)
	}
	return nil
}

func (r disputeMessageRepository) List(disputeID string) ([]domain.DisputeMessage, error) {
	scan := func(row rowScanner) (domain.DisputeMessage, error) {
		var m domain.DisputeMessage
		err := row.Scan(&m.ID, &m.DisputeID, &m.SenderID, &m.Message, &m.IsAdminMessage, &m.CreatedAt)
		return m, err
	}
	msgs, err := queryList(r.querier, scan, `
		SELECT id, dispute_id, sender_id, message, is_admin_message, created_at
		FROM dispute_messages
		WHERE dispute_id = $1
		ORDER BY created_at, id
	`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("list dispute messages: %w", err)
	}
	return msgs, nil
}

var (
	_ domain.DisputeRepository        = disputeRepository{}
	_ domain.DisputeMessageRepository = disputeMessageRepository{}
)
