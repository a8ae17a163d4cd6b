package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-mailroom/core"
	mailroommigrations "github.com/goliatone/go-mailroom/migrations"
	sqlstore "github.com/goliatone/go-mailroom/store/sql"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-mailroom-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"delivery_records",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "delivery_records" {
		t.Fatalf("expected delivery_records table, got %q", tableName)
	}
}

func TestDeliveryRecordStore_CreateAppliesDefaults(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.DeliveryRecordStore()

	created, err := store.Create(ctx, core.DeliveryRecord{Email: "person@example.com"})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated record id")
	}
	if created.Status != core.DeliveryStatusPending {
		t.Fatalf("expected pending status, got %q", created.Status)
	}
	if created.Validity != core.EmailValidityUnknown {
		t.Fatalf("expected unknown validity, got %q", created.Validity)
	}

	if _, err := store.Create(ctx, core.DeliveryRecord{Email: "   "}); err == nil {
		t.Fatalf("expected blank email to be rejected")
	}

	_, err = store.Get(ctx, "missing-record")
	if !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestDeliveryRecordStore_MarkQueuedGuards(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.DeliveryRecordStore()

	valid, err := store.Create(ctx, core.DeliveryRecord{
		Email:    "valid@example.com",
		Validity: core.EmailValidityValid,
	})
	if err != nil {
		t.Fatalf("create valid record: %v", err)
	}

	queued, err := store.MarkQueued(ctx, valid.ID, "smtp")
	if err != nil {
		t.Fatalf("mark queued: %v", err)
	}
	if queued.Status != core.DeliveryStatusQueued {
		t.Fatalf("expected queued status, got %q", queued.Status)
	}
	if queued.Provider != "smtp" {
		t.Fatalf("expected provider smtp stamped, got %q", queued.Provider)
	}

	// The record is already queued; a second enqueue must not match.
	_, err = store.MarkQueued(ctx, valid.ID, "smtp")
	if !errors.Is(err, core.ErrIneligibleState) {
		t.Fatalf("expected ineligible state for double queue, got %v", err)
	}

	unverified, err := store.Create(ctx, core.DeliveryRecord{Email: "unverified@example.com"})
	if err != nil {
		t.Fatalf("create unverified record: %v", err)
	}
	_, err = store.MarkQueued(ctx, unverified.ID, "smtp")
	if !errors.Is(err, core.ErrInvalidEmail) {
		t.Fatalf("expected invalid email rejection, got %v", err)
	}

	_, err = store.MarkQueued(ctx, "missing-record", "smtp")
	if !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestDeliveryRecordStore_SendLifecycle(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.DeliveryRecordStore()

	record, err := store.Create(ctx, core.DeliveryRecord{
		Email:    "lifecycle@example.com",
		Validity: core.EmailValidityValid,
	})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	// Sending requires a queued record.
	_, err = store.MarkSending(ctx, record.ID)
	if !errors.Is(err, core.ErrIneligibleState) {
		t.Fatalf("expected ineligible state for pending -> sending, got %v", err)
	}

	if _, err := store.MarkQueued(ctx, record.ID, "smtp"); err != nil {
		t.Fatalf("mark queued: %v", err)
	}
	sending, err := store.MarkSending(ctx, record.ID)
	if err != nil {
		t.Fatalf("mark sending: %v", err)
	}
	if sending.Status != core.DeliveryStatusSending {
		t.Fatalf("expected sending status, got %q", sending.Status)
	}

	sentAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := store.MarkSent(ctx, record.ID, sentAt); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	sent, err := store.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get sent record: %v", err)
	}
	if sent.Status != core.DeliveryStatusSent {
		t.Fatalf("expected sent status, got %q", sent.Status)
	}
	if sent.SentAt == nil || !sent.SentAt.Equal(sentAt) {
		t.Fatalf("expected sent_at %v, got %v", sentAt, sent.SentAt)
	}

	// Sent is terminal for the send path.
	if err := store.MarkSent(ctx, record.ID, sentAt); !errors.Is(err, core.ErrIneligibleState) {
		t.Fatalf("expected repeated mark sent to fail, got %v", err)
	}
}

func TestDeliveryRecordStore_FailureAndRequeue(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.DeliveryRecordStore()

	record, err := store.Create(ctx, core.DeliveryRecord{
		Email:    "retry@example.com",
		Validity: core.EmailValidityValid,
	})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	if _, err := store.MarkQueued(ctx, record.ID, "smtp"); err != nil {
		t.Fatalf("mark queued: %v", err)
	}
	if _, err := store.MarkSending(ctx, record.ID); err != nil {
		t.Fatalf("mark sending: %v", err)
	}
	if err := store.MarkFailed(ctx, record.ID, "relay refused connection"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	failed, err := store.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get failed record: %v", err)
	}
	if failed.Status != core.DeliveryStatusFailed {
		t.Fatalf("expected failed status, got %q", failed.Status)
	}
	if failed.LastError != "relay refused connection" {
		t.Fatalf("expected failure reason persisted, got %q", failed.LastError)
	}
	if failed.SentAt != nil {
		t.Fatalf("expected no sent stamp on failure, got %v", failed.SentAt)
	}

	// Failed records can be queued again.
	requeued, err := store.MarkQueued(ctx, record.ID, "mailgun")
	if err != nil {
		t.Fatalf("requeue failed record: %v", err)
	}
	if requeued.Provider != "mailgun" {
		t.Fatalf("expected requeue to stamp new provider, got %q", requeued.Provider)
	}
}

func TestDeliveryRecordStore_ResetDelivery(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.DeliveryRecordStore()

	record, err := store.Create(ctx, core.DeliveryRecord{
		Email:    "reset@example.com",
		Validity: core.EmailValidityValid,
	})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	if _, err := store.MarkQueued(ctx, record.ID, "smtp"); err != nil {
		t.Fatalf("mark queued: %v", err)
	}

	// Queued records are owned by a worker and cannot be reset.
	if err := store.ResetDelivery(ctx, record.ID); !errors.Is(err, core.ErrIneligibleState) {
		t.Fatalf("expected reset of queued record to fail, got %v", err)
	}

	if _, err := store.MarkSending(ctx, record.ID); err != nil {
		t.Fatalf("mark sending: %v", err)
	}
	if err := store.MarkSent(ctx, record.ID, time.Now().UTC()); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := store.ResetDelivery(ctx, record.ID); err != nil {
		t.Fatalf("reset sent record: %v", err)
	}

	reset, err := store.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get reset record: %v", err)
	}
	if reset.Status != core.DeliveryStatusPending {
		t.Fatalf("expected pending status after reset, got %q", reset.Status)
	}
	if reset.SentAt != nil {
		t.Fatalf("expected sent stamp cleared, got %v", reset.SentAt)
	}
	if reset.LastError != "" {
		t.Fatalf("expected last error cleared, got %q", reset.LastError)
	}
	if reset.Validity != core.EmailValidityValid {
		t.Fatalf("expected validity preserved across reset, got %q", reset.Validity)
	}
}

func TestDeliveryRecordStore_ListEligible(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.DeliveryRecordStore()

	seed := []core.DeliveryRecord{
		{ID: "rec-001", Email: "a@example.com", Validity: core.EmailValidityValid},
		{ID: "rec-002", Email: "b@example.com", Validity: core.EmailValidityValid},
		{ID: "rec-003", Email: "c@example.com"},
		{ID: "rec-004", Email: "d@example.com", Validity: core.EmailValidityValid},
	}
	for _, record := range seed {
		if _, err := store.Create(ctx, record); err != nil {
			t.Fatalf("seed record %s: %v", record.ID, err)
		}
	}

	// rec-004 through a full failed cycle so it is failed+valid.
	if _, err := store.MarkQueued(ctx, "rec-004", "smtp"); err != nil {
		t.Fatalf("queue rec-004: %v", err)
	}
	if _, err := store.MarkSending(ctx, "rec-004"); err != nil {
		t.Fatalf("send rec-004: %v", err)
	}
	if err := store.MarkFailed(ctx, "rec-004", "boom"); err != nil {
		t.Fatalf("fail rec-004: %v", err)
	}

	eligible, err := store.ListEligible(ctx, nil)
	if err != nil {
		t.Fatalf("list eligible: %v", err)
	}
	if len(eligible) != 3 {
		t.Fatalf("expected 3 eligible records, got %d", len(eligible))
	}
	wantOrder := []string{"rec-001", "rec-002", "rec-004"}
	for i, record := range eligible {
		if record.ID != wantOrder[i] {
			t.Fatalf("expected eligible[%d]=%s, got %s", i, wantOrder[i], record.ID)
		}
	}

	failedOnly, err := store.ListEligible(ctx, []core.DeliveryStatus{core.DeliveryStatusFailed})
	if err != nil {
		t.Fatalf("list failed only: %v", err)
	}
	if len(failedOnly) != 1 || failedOnly[0].ID != "rec-004" {
		t.Fatalf("expected only rec-004 in failed filter, got %+v", failedOnly)
	}
}

func TestDeliveryRecordStore_UnverifiedCursorAndVerdicts(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.DeliveryRecordStore()

	for i := 1; i <= 5; i++ {
		record := core.DeliveryRecord{
			ID:    fmt.Sprintf("rec-%03d", i),
			Email: fmt.Sprintf("user%d@example.com", i),
		}
		if i == 3 {
			record.Validity = core.EmailValidityValid
		}
		if _, err := store.Create(ctx, record); err != nil {
			t.Fatalf("seed record %s: %v", record.ID, err)
		}
	}

	count, err := store.CountUnverified(ctx)
	if err != nil {
		t.Fatalf("count unverified: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 unverified records, got %d", count)
	}

	chunk, err := store.ListUnverified(ctx, "", 2)
	if err != nil {
		t.Fatalf("list unverified: %v", err)
	}
	if len(chunk) != 2 || chunk[0].ID != "rec-001" || chunk[1].ID != "rec-002" {
		t.Fatalf("expected first unverified chunk [rec-001 rec-002], got %+v", chunk)
	}

	// The cursor skips everything at or below it, already-valid rows
	// included, so a chunked pass never revisits a row.
	chunk, err = store.ListUnverified(ctx, "rec-002", 2)
	if err != nil {
		t.Fatalf("list unverified after cursor: %v", err)
	}
	if len(chunk) != 2 || chunk[0].ID != "rec-004" || chunk[1].ID != "rec-005" {
		t.Fatalf("expected chunk past cursor [rec-004 rec-005], got %+v", chunk)
	}

	validatedAt := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	if err := store.SaveVerdict(ctx, "rec-001", core.Verdict{Valid: true}, validatedAt); err != nil {
		t.Fatalf("save valid verdict: %v", err)
	}
	if err := store.SaveVerdict(ctx, "rec-002", core.Verdict{Valid: false, Reason: "domain has no mail exchanger"}, validatedAt); err != nil {
		t.Fatalf("save invalid verdict: %v", err)
	}

	verified, err := store.Get(ctx, "rec-001")
	if err != nil {
		t.Fatalf("get verified record: %v", err)
	}
	if verified.Validity != core.EmailValidityValid || verified.InvalidityReason != "" {
		t.Fatalf("expected clean valid verdict, got %+v", verified)
	}
	if verified.LastValidatedAt == nil || !verified.LastValidatedAt.Equal(validatedAt) {
		t.Fatalf("expected last validated stamp %v, got %v", validatedAt, verified.LastValidatedAt)
	}

	rejected, err := store.Get(ctx, "rec-002")
	if err != nil {
		t.Fatalf("get rejected record: %v", err)
	}
	if rejected.Validity != core.EmailValidityInvalid {
		t.Fatalf("expected invalid validity, got %q", rejected.Validity)
	}
	if rejected.InvalidityReason != "domain has no mail exchanger" {
		t.Fatalf("expected invalidity reason persisted, got %q", rejected.InvalidityReason)
	}

	// Valid records drop out of the unverified set; invalid ones stay.
	next, err := store.ListUnverified(ctx, "", 10)
	if err != nil {
		t.Fatalf("list unverified after verdicts: %v", err)
	}
	wantIDs := []string{"rec-002", "rec-004", "rec-005"}
	if len(next) != len(wantIDs) {
		t.Fatalf("expected %d unverified records, got %d", len(wantIDs), len(next))
	}
	for i, record := range next {
		if record.ID != wantIDs[i] {
			t.Fatalf("expected unverified[%d]=%s, got %s", i, wantIDs[i], record.ID)
		}
	}

	// A record that stays invalid is behind the cursor, not ahead of it:
	// the same chunked pass does not fetch rec-002 again.
	next, err = store.ListUnverified(ctx, "rec-002", 10)
	if err != nil {
		t.Fatalf("list unverified past invalid record: %v", err)
	}
	if len(next) != 2 || next[0].ID != "rec-004" || next[1].ID != "rec-005" {
		t.Fatalf("expected [rec-004 rec-005] past the invalid record, got %+v", next)
	}

	if err := store.SaveVerdict(ctx, "missing-record", core.Verdict{Valid: true}, validatedAt); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected record not found for missing verdict target, got %v", err)
	}
}

func TestProxyStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.ProxyStore()

	created, err := store.Create(ctx, core.Proxy{
		Name:     "egress-a",
		Host:     "proxy.internal",
		Port:     3128,
		Username: "relay",
		Password: "secret",
		Active:   true,
	})
	if err != nil {
		t.Fatalf("create proxy: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated proxy id")
	}

	fetched, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get proxy: %v", err)
	}
	if fetched.Host != "proxy.internal" || fetched.Port != 3128 || !fetched.Active {
		t.Fatalf("unexpected proxy row: %+v", fetched)
	}

	if _, err := store.Create(ctx, core.Proxy{Port: 3128}); err == nil {
		t.Fatalf("expected proxy without host to be rejected")
	}

	_, err = store.Get(ctx, "missing-proxy")
	if !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected proxy not found, got %v", err)
	}
}

func TestRepositoryFactory_ResolvesStoresFromBunDB(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromDB(client.DB())
	if err != nil {
		t.Fatalf("new repository factory from db: %v", err)
	}
	if factory.DeliveryRecordStore() == nil || factory.ProxyStore() == nil {
		t.Fatalf("expected delivery record and proxy stores from factory")
	}

	if _, err := sqlstore.NewRepositoryFactoryFromDB(nil); err == nil {
		t.Fatalf("expected nil bun db to be rejected")
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:mailroom-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = mailroommigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != mailroommigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, mailroommigrations.WithValidationTargets(mailroommigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
