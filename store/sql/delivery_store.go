package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-mailroom/core"
)

// DeliveryRecordStore persists delivery records. Every status transition
// is one conditional UPDATE keyed on the expected prior state; the
// database row is the single source of truth for who owns a record.
type DeliveryRecordStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryRecordRow]
}

func NewDeliveryRecordStore(db *bun.DB) (*DeliveryRecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecordRow](db, deliveryRecordHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery record repository wiring: %w", err)
		}
	}
	return &DeliveryRecordStore{db: db, repo: repo}, nil
}

func (s *DeliveryRecordStore) Get(ctx context.Context, id string) (core.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: delivery record store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: record id is required")
	}
	row := &deliveryRecordRow{}
	err := s.db.NewSelect().
		Model(row).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.DeliveryRecord{}, fmt.Errorf("%w: id %q", core.ErrRecordNotFound, id)
		}
		return core.DeliveryRecord{}, err
	}
	return row.toDomain(), nil
}

func (s *DeliveryRecordStore) Create(ctx context.Context, record core.DeliveryRecord) (core.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: delivery record store is not configured")
	}
	record.Email = strings.TrimSpace(record.Email)
	if record.Email == "" {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: record email is required")
	}
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = core.DeliveryStatusPending
	}
	if record.Validity == "" {
		record.Validity = core.EmailValidityUnknown
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	row := newDeliveryRecordRow(record)
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return core.DeliveryRecord{}, err
	}
	return row.toDomain(), nil
}

// MarkQueued is the atomic enqueue guard: the update succeeds only for a
// pending or failed record whose email is known-valid. A failed guard is
// classified by reloading the row.
func (s *DeliveryRecordStore) MarkQueued(ctx context.Context, id string, provider string) (core.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: delivery record store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: record id is required")
	}
	now := time.Now().UTC()

	res, err := s.db.NewUpdate().
		Model((*deliveryRecordRow)(nil)).
		Set("status = ?", string(core.DeliveryStatusQueued)).
		Set("provider = ?", strings.TrimSpace(provider)).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status IN (?)", bun.In([]string{
			string(core.DeliveryStatusPending),
			string(core.DeliveryStatusFailed),
		})).
		Where("validity = ?", string(core.EmailValidityValid)).
		Exec(ctx)
	if err != nil {
		return core.DeliveryRecord{}, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return core.DeliveryRecord{}, s.classifyQueueRejection(ctx, id)
	}
	return s.Get(ctx, id)
}

// classifyQueueRejection decides why the conditional update matched no
// row, so callers can tell "skip" from "complain".
func (s *DeliveryRecordStore) classifyQueueRejection(ctx context.Context, id string) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if record.Validity != core.EmailValidityValid {
		return fmt.Errorf("%w: validity is %q", core.ErrInvalidEmail, record.Validity)
	}
	return fmt.Errorf("%w: %s -> %s", core.ErrIneligibleState, record.Status, core.DeliveryStatusQueued)
}

func (s *DeliveryRecordStore) MarkSending(ctx context.Context, id string) (core.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: delivery record store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: record id is required")
	}
	now := time.Now().UTC()

	res, err := s.db.NewUpdate().
		Model((*deliveryRecordRow)(nil)).
		Set("status = ?", string(core.DeliveryStatusSending)).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", string(core.DeliveryStatusQueued)).
		Exec(ctx)
	if err != nil {
		return core.DeliveryRecord{}, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		record, getErr := s.Get(ctx, id)
		if getErr != nil {
			return core.DeliveryRecord{}, getErr
		}
		return core.DeliveryRecord{}, fmt.Errorf("%w: %s -> %s", core.ErrIneligibleState, record.Status, core.DeliveryStatusSending)
	}
	return s.Get(ctx, id)
}

func (s *DeliveryRecordStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery record store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: record id is required")
	}

	res, err := s.db.NewUpdate().
		Model((*deliveryRecordRow)(nil)).
		Set("status = ?", string(core.DeliveryStatusSent)).
		Set("sent_at = ?", at.UTC()).
		Set("last_error = ?", "").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", string(core.DeliveryStatusSending)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.requireTransition(ctx, res, id, core.DeliveryStatusSent)
}

func (s *DeliveryRecordStore) MarkFailed(ctx context.Context, id string, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery record store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: record id is required")
	}

	res, err := s.db.NewUpdate().
		Model((*deliveryRecordRow)(nil)).
		Set("status = ?", string(core.DeliveryStatusFailed)).
		Set("last_error = ?", strings.TrimSpace(reason)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", string(core.DeliveryStatusSending)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.requireTransition(ctx, res, id, core.DeliveryStatusFailed)
}

// ResetDelivery returns the record to pending and clears the delivery
// outcome. Queued and sending records are owned by a worker and cannot
// be reset out from under it.
func (s *DeliveryRecordStore) ResetDelivery(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery record store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: record id is required")
	}

	res, err := s.db.NewUpdate().
		Model((*deliveryRecordRow)(nil)).
		Set("status = ?", string(core.DeliveryStatusPending)).
		Set("sent_at = NULL").
		Set("last_error = ?", "").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status IN (?)", bun.In([]string{
			string(core.DeliveryStatusPending),
			string(core.DeliveryStatusSent),
			string(core.DeliveryStatusFailed),
		})).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.requireTransition(ctx, res, id, core.DeliveryStatusPending)
}

func (s *DeliveryRecordStore) requireTransition(ctx context.Context, res sql.Result, id string, next core.DeliveryStatus) error {
	affected, _ := res.RowsAffected()
	if affected > 0 {
		return nil
	}
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", core.ErrIneligibleState, record.Status, next)
}

func (s *DeliveryRecordStore) ListEligible(ctx context.Context, statuses []core.DeliveryStatus) ([]core.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery record store is not configured")
	}
	if len(statuses) == 0 {
		statuses = []core.DeliveryStatus{core.DeliveryStatusPending, core.DeliveryStatusFailed}
	}
	wanted := make([]string, 0, len(statuses))
	for _, status := range statuses {
		wanted = append(wanted, string(status))
	}

	var rows []deliveryRecordRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.status IN (?)", bun.In(wanted)).
		Where("?TableAlias.validity = ?", string(core.EmailValidityValid)).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]core.DeliveryRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toDomain())
	}
	return records, nil
}

// ListUnverified pages through records needing verification, starting
// strictly past afterID. The caller threads the cursor forward, so rows
// that stay invalid after a verdict are not re-fetched within one run.
func (s *DeliveryRecordStore) ListUnverified(ctx context.Context, afterID string, limit int) ([]core.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery record store is not configured")
	}
	if limit <= 0 {
		limit = core.DefaultChunkSize
	}

	var rows []deliveryRecordRow
	q := s.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.validity != ?", string(core.EmailValidityValid))
	if afterID = strings.TrimSpace(afterID); afterID != "" {
		q = q.Where("?TableAlias.id > ?", afterID)
	}
	err := q.
		Order("id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]core.DeliveryRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toDomain())
	}
	return records, nil
}

func (s *DeliveryRecordStore) CountUnverified(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: delivery record store is not configured")
	}
	return s.db.NewSelect().
		Model((*deliveryRecordRow)(nil)).
		Where("?TableAlias.validity != ?", string(core.EmailValidityValid)).
		Count(ctx)
}

func (s *DeliveryRecordStore) SaveVerdict(ctx context.Context, id string, verdict core.Verdict, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery record store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: record id is required")
	}

	validity := core.EmailValidityInvalid
	reason := strings.TrimSpace(verdict.Reason)
	if verdict.Valid {
		validity = core.EmailValidityValid
		reason = ""
	}

	res, err := s.db.NewUpdate().
		Model((*deliveryRecordRow)(nil)).
		Set("validity = ?", string(validity)).
		Set("invalidity_reason = ?", reason).
		Set("last_validated_at = ?", at.UTC()).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: id %q", core.ErrRecordNotFound, id)
	}
	return nil
}
