package admin

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

const maxReports = 100

// ListReports возвращает жалобы в статусе status, пустой статус — все.
func (s *Service) ListReports(_ context.Context, staff domain.User, status domain.ReportStatus, limit int) ([]domain.Report, error) {
	if !staff.IsAdmin() {
		return nil, domain.ErrStaffOnly
	}
	if limit <= 0 || limit > maxReports {
		limit = maxReports
	}
	return s.exec.Store().Repos().Reports.List(status, limit)
}

// ReviewReport берёт жалобу в работу.
func (s *Service) ReviewReport(ctx context.Context, staff domain.User, reportID string) (domain.Report, error) {
	return s.moderate(ctx, staff, reportID, "review_report", func(_ domain.Repositories, r *domain.Report) error {
		return r.MarkReviewed(staff.ID, s.now())
	})
}

// ResolveReport закрывает жалобу как обоснованную. deactivate снимает объявление с публикации.
func (s *Service) ResolveReport(ctx context.Context, staff domain.User, reportID, notes string, deactivate bool) (domain.Report, error) {
	return s.moderate(ctx, staff, reportID, "resolve_report", func(repos domain.Repositories, r *domain.Report) error {
		now := s.now()
		if err := r.Close(staff.ID, domain.ReportStatusResolved, notes, now); err != nil {
			return err
		}
		if !deactivate {
			return nil
		}
		product, err := repos.Products.Get(r.ProductID)
		if err != nil {
			return err
		}
		product.IsActive = false
		product.UpdatedAt = now
		return repos.Products.Save(product)
	})
}

// DismissReport отклоняет жалобу.
func (s *Service) DismissReport(ctx context.Context, staff domain.User, reportID, notes string) (domain.Report, error) {
	return s.moderate(ctx, staff, reportID, "dismiss_report", func(_ domain.Repositories, r *domain.Report) error {
		return r.Close(staff.ID, domain.ReportStatusDismissed, notes, s.now())
	})
}

func (s *Service) moderate(
	ctx context.Context,
	staff domain.User,
	reportID, operation string,
	apply func(repos domain.Repositories, r *domain.Report) error,
) (domain.Report, error) {
	if !staff.IsAdmin() {
		return domain.Report{}, domain.ErrStaffOnly
	}

	var report domain.Report
	err := s.exec.Do(ctx, operation, func(repos domain.Repositories, _ *outbox.Recorder) error {
		var err error
		report, err = repos.Reports.Get(reportID)
		if err != nil {
			return err
		}
		if err := apply(repos, &report); err != nil {
			return err
		}
		return repos.Reports.Save(report)
	})
	if err != nil {
		return domain.Report{}, err
	}

	s.logger.WithFields(log.Fields{
		"report_id":  report.ID,
		"product_id": report.ProductID,
		"status":     report.Status,
	}).Info("report moderated")
	return report, nil
}
