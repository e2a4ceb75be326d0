package scheduler

import (
	"context"
	"fmt"
	"time"

	"certflow/internal/certification/ledger"
	"certflow/internal/certification/models"
	dErrors "certflow/pkg/domain-errors"
)

// documentReminders nudges candidates whose process has been waiting on
// documents for longer than ReminderDelay.
func (s *Scheduler) documentReminders(ctx context.Context, now time.Time, jr *JobReport) error {
	startedBefore := now.Add(-ReminderDelay)
	processes, err := s.repo.FindProcessesNeeding(ctx, models.ProcessQuery{
		Stage:         models.StageRequested,
		StartedBefore: &startedBefore,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "select processes awaiting documents")
	}
	forEach(ctx, s, jr, processes, func(ctx context.Context, p *models.Process) (recordResult, error) {
		if err := s.inspect(ctx, p); err != nil {
			return resultFailed, err
		}
		comp, err := s.competency(ctx, p)
		if err != nil {
			return resultFailed, err
		}
		complete, err := s.documents.IsComplete(ctx, p.CandidateID, comp.RequiredKinds)
		if err != nil {
			return resultFailed, err
		}
		if complete {
			return resultNotDue, nil
		}
		return s.deliver(ctx, ledger.Delivery{
			Recipient: p.CandidateUserID,
			Kind:      models.KindDocumentReminder,
			Subject:   models.ProcessSubject(p.ID),
			Payload: models.Payload{
				ProcessID:    p.ID.String(),
				CompetencyID: p.CompetencyID.String(),
				Level:        p.Level,
				Stage:        p.Stage,
			},
		}, now)
	})
	return nil
}

// evaluatorStalls reminds evaluators who have held an assignment for longer
// than StallDelay without submitting.
func (s *Scheduler) evaluatorStalls(ctx context.Context, now time.Time, jr *JobReport) error {
	assignedBefore := now.Add(-StallDelay)
	processes, err := s.repo.FindProcessesNeeding(ctx, models.ProcessQuery{
		Stage:          models.StageUnderEvaluation,
		AssignedBefore: &assignedBefore,
		NotEvaluated:   true,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "select stalled evaluations")
	}
	forEach(ctx, s, jr, processes, func(ctx context.Context, p *models.Process) (recordResult, error) {
		if err := s.inspect(ctx, p); err != nil {
			return resultFailed, err
		}
		ev, err := s.evaluatorUser(ctx, p)
		if err != nil {
			return resultFailed, err
		}
		return s.deliver(ctx, ledger.Delivery{
			Recipient: ev.UserID,
			Kind:      models.KindEvaluatorStall,
			Subject:   models.ProcessSubject(p.ID),
			Payload: models.Payload{
				ProcessID:     p.ID.String(),
				CompetencyID:  p.CompetencyID.String(),
				Level:         p.Level,
				Stage:         p.Stage,
				EvaluatorName: ev.Name,
			},
		}, now)
	})
	return nil
}

// deadlineAlerts warns evaluators whose evaluation deadline falls within
// DeadlineLead. Competencies without a duration have no deadline.
func (s *Scheduler) deadlineAlerts(ctx context.Context, now time.Time, jr *JobReport) error {
	processes, err := s.repo.FindProcessesNeeding(ctx, models.ProcessQuery{
		Stage: models.StageUnderEvaluation,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "select processes under evaluation")
	}
	forEach(ctx, s, jr, processes, func(ctx context.Context, p *models.Process) (recordResult, error) {
		if err := s.inspect(ctx, p); err != nil {
			return resultFailed, err
		}
		comp, err := s.competency(ctx, p)
		if err != nil {
			return resultFailed, err
		}
		if p.AssignedAt == nil {
			return resultFailed, fmt.Errorf("process %s has no assignment time", p.ID)
		}
		deadline, ok := comp.Deadline(*p.AssignedAt)
		if !ok {
			return resultNotDue, nil
		}
		if left := deadline.Sub(now); left <= 0 || left > DeadlineLead {
			return resultNotDue, nil
		}
		ev, err := s.evaluatorUser(ctx, p)
		if err != nil {
			return resultFailed, err
		}
		return s.deliver(ctx, ledger.Delivery{
			Recipient: ev.UserID,
			Kind:      models.KindDeadlineApproaching,
			Subject:   models.ProcessSubject(p.ID),
			Payload: models.Payload{
				ProcessID:     p.ID.String(),
				CompetencyID:  p.CompetencyID.String(),
				Level:         p.Level,
				Stage:         p.Stage,
				EvaluatorName: ev.Name,
				Deadline:      &deadline,
			},
		}, now)
	})
	return nil
}

// expiringSoon warns holders whose certificate expires between 29 and 30
// days from now.
func (s *Scheduler) expiringSoon(ctx context.Context, now time.Time, jr *JobReport) error {
	from := now.Add(ExpiringWindowStart)
	to := now.Add(ExpiringWindowEnd)
	certs, err := s.repo.FindCertificates(ctx, models.CertificateQuery{
		Status:      models.CertificateStatusActive,
		ExpiresFrom: &from,
		ExpiresTo:   &to,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "select expiring certificates")
	}
	forEach(ctx, s, jr, certs, func(ctx context.Context, c *models.Certificate) (recordResult, error) {
		return s.deliver(ctx, ledger.Delivery{
			Recipient: c.HolderUserID,
			Kind:      models.KindCertificateExpiring,
			Subject:   models.CertificateSubject(c.ID),
			Payload: models.Payload{
				CertificateID: c.ID.String(),
				CompetencyID:  c.CompetencyID.String(),
				Level:         c.Level,
				ExpiresAt:     c.ExpiresAt,
			},
		}, now)
	})
	return nil
}

// expire delegates to the certificate lifecycle manager and folds its report
// into the job counters.
func (s *Scheduler) expire(ctx context.Context, now time.Time, jr *JobReport) (int, error) {
	r, err := s.expirer.Sweep(ctx, now)
	if err != nil {
		return 0, err
	}
	jr.Candidates = r.Candidates
	jr.Sent = r.HolderNotified + r.SummaryRecipients
	jr.Skipped = r.Skipped
	jr.Failed = r.Failed + r.HolderNotifyFailed + r.SummaryFailed
	return len(r.Expired), nil
}
