package service

import (
	"context"
	"encoding/json"
	"fmt"

	"compliance/infrastructure/queue"
	"compliance/internal/domain"
	"compliance/observability/types"
)

// ArchiveKey is the object key a check is archived under.
func ArchiveKey(check *domain.ComplianceCheck) string {
	return fmt.Sprintf("checks/%s/%s/%s.json", check.ProjectID, check.CheckType, check.ID)
}

// notify publishes and archives a recorded check. Failures are logged and
// counted only; the ledger row stands either way.
func (s *CheckService) notify(ctx context.Context, check *domain.ComplianceCheck) {
	if s.deps.Publisher != nil {
		err := s.deps.Publisher.Publish(ctx, &queue.Message{
			Target: s.deps.EventTarget,
			Type:   EventCheckRecorded,
			Body: CheckRecordedEvent{
				Event:     EventCheckRecorded,
				CheckID:   check.ID,
				ProjectID: check.ProjectID,
				CheckType: check.CheckType,
				Passed:    check.Passed,
				Verdict:   check.Verdict(),
				CreatedAt: check.CreatedAt,
				CreatedBy: check.CreatedBy,
			},
			Attributes: map[string]string{
				"project_id": check.ProjectID,
				"check_type": string(check.CheckType),
			},
		})
		if err != nil {
			s.metrics.RecordError("notify", "publish_failed")
			s.logger.Warn(ctx, "Failed to publish check event", types.Fields{
				"check_id": check.ID,
				"error":    err.Error(),
			})
		}
	}

	if s.deps.Archive != nil {
		data, err := json.Marshal(check)
		if err == nil {
			err = s.deps.Archive.Put(ctx, ArchiveKey(check), data)
		}
		if err != nil {
			s.metrics.RecordError("notify", "archive_failed")
			s.logger.Warn(ctx, "Failed to archive check", types.Fields{
				"check_id": check.ID,
				"error":    err.Error(),
			})
		}
	}
}
