package domain

import "time"

// ReportReason — причина жалобы на объявление.
type ReportReason string

const (
	ReportReasonSpam          ReportReason = "spam"
	ReportReasonFraud         ReportReason = "fraud"
	ReportReasonInappropriate ReportReason = "inappropriate"
	ReportReasonProhibited    ReportReason = "prohibited"
	ReportReasonOther         ReportReason = "other"
)

// Valid сообщает, известна ли причина.
func (r ReportReason) Valid() bool {
	switch r {
	case ReportReasonSpam, ReportReasonFraud, ReportReasonInappropriate, ReportReasonProhibited, ReportReasonOther:
		return true
	}
	return false
}

// ReportStatus — стадия модерации жалобы.
type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "pending"
	ReportStatusReviewed  ReportStatus = "reviewed"
	ReportStatusResolved  ReportStatus = "resolved"
	ReportStatusDismissed ReportStatus = "dismissed"
)

// IsOpen — жалоба ещё не закрыта модератором.
func (s ReportStatus) IsOpen() bool {
	return s == ReportStatusPending || s == ReportStatusReviewed
}

// Report — жалоба пользователя на объявление.
type Report struct {
	ID          string       `json:"id"`
	ReporterID  string       `json:"reporter_id"`
	ProductID   string       `json:"product_id"`
	Reason      ReportReason `json:"reason"`
	Description string       `json:"description"`
	Status      ReportStatus `json:"status"`
	ReviewedBy  string       `json:"reviewed_by"`
	AdminNotes  string       `json:"admin_notes"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// MarkReviewed берёт жалобу в работу.
func (r *Report) MarkReviewed(staffID string, at time.Time) error {
	if r.Status != ReportStatusPending {
		return ErrReportClosed
	}
	r.Status = ReportStatusReviewed
	r.ReviewedBy = staffID
	r.UpdatedAt = at
	return nil
}

// Close закрывает жалобу решением resolved или dismissed.
func (r *Report) Close(staffID string, to ReportStatus, notes string, at time.Time) error {
	if !r.Status.IsOpen() {
		return ErrReportClosed
	}
	if to != ReportStatusResolved && to != ReportStatusDismissed {
		return ErrReportClosed
	}
	r.Status = to
	r.ReviewedBy = staffID
	r.AdminNotes = notes
	r.UpdatedAt = at
	return nil
}
