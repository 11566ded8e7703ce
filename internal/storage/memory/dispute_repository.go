package memory

import (
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type disputeRepository struct{ view }

func (r disputeRepository) Create(dispute domain.Dispute) error {
	defer r.lock()()
	put(r.tx, r.s.st.disputes, dispute.ID, dispute)
	return nil
}

func (r disputeRepository) Get(id string) (domain.Dispute, error) {
	defer r.rlock()()

	d, ok := r.s.st.disputes[id]
	if !ok {
		return domain.Dispute{}, domain.ErrDisputeNotFound
	}
	return d, nil
}

func (r disputeRepository) Save(dispute domain.Dispute) error {
	defer r.lock()()

	if _, ok := r.s.st.disputes[dispute.ID]; !ok {
		return domain.ErrDisputeNotFound
	}
	put(r.tx, r.s.st.disputes, dispute.ID, dispute)
	return nil
}

func (r disputeRepository) HasActive(orderID string) (bool, error) {
	defer r.rlock()()

	for _, d := range r.s.st.disputes {
		if d.OrderID == orderID && d.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (r disputeRepository) ListForUser(userID string, status domain.DisputeStatus, limit int) ([]domain.Dispute, error) {
	defer r.rlock()()

	result := make([]domain.Dispute, 0)
	for _, d := range r.s.st.disputes {
		if status != "" && d.Status != status {
			continue
		}
		if userID != "" && d.ComplainantID != userID && !r.s.st.orders[d.OrderID].IsParty(userID) {
			continue
		}
		result = append(result, d)
	}
	sortNewestFirst(result, func(d domain.Dispute) (int64, string) { return d.CreatedAt.UnixNano(), d.ID })
	return limitSlice(result, limit), nil
}

type disputeMessageRepository struct{ view }

func (r disputeMessageRepository) Append(msg domain.DisputeMessage) error {
	defer r.lock()()
	appendTo(r.tx, r.s.st.disputeMessages, msg.DisputeID, msg)
	return nil
}

// List возвращает сообщения в хронологическом порядке.
func (r disputeMessageRepository) List(disputeID string) ([]domain.DisputeMessage, error) {
	defer r.rlock()()

	msgs := r.s.st.disputeMessages[disputeID]
	result := make([]domain.DisputeMessage, len(msgs))
	copy(result, msgs)
	return result, nil
}

var (
	_ domain.DisputeRepository        = disputeRepository{}
	_ domain.DisputeMessageRepository = disputeMessageRepository{}
)
