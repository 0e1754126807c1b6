package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"docforge-backend/internal/client"
	"docforge-backend/internal/model"
	"docforge-backend/internal/repository"
	"docforge-backend/internal/service"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testGatewaySecret = "unit-test-secret"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// a named shared-cache memory database so the connection pool sees
	// one store
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// serialize writers; sqlite is not the concurrency story under test
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Membership{},
		&model.MembershipPlan{},
		&model.Order{},
		&model.PromoCode{},
		&model.WebhookEvent{},
	))

	return db
}

func seedUser(t *testing.T, db *gorm.DB, externalID string) *model.User {
	t.Helper()

	user := &model.User{ExternalID: externalID, Nickname: "tester"}
	require.NoError(t, db.Create(user).Error)
	return user
}

// fakeGateway is an in-memory GatewayClient for driving the engine.
type fakeGateway struct {
	createFn func(ctx context.Context, orderNo string, amount int, subject string) (*client.PaymentReference, error)
	queryFn  func(ctx context.Context, orderNo string) (client.GatewayStatus, error)
}

func (f *fakeGateway) CreateNativePay(ctx context.Context, orderNo string, amount int, subject string) (*client.PaymentReference, error) {
	if f.createFn != nil {
		return f.createFn(ctx, orderNo, amount, subject)
	}
	return &client.PaymentReference{OrderNo: orderNo, QRCode: "https://qr.example.com/" + orderNo}, nil
}

func (f *fakeGateway) QueryOrder(ctx context.Context, orderNo string) (client.GatewayStatus, error) {
	if f.queryFn != nil {
		return f.queryFn(ctx, orderNo)
	}
	return client.GatewayStatusPending, nil
}

// countingLedger wraps the real membership ledger and counts grant
// invocations, for at-most-once assertions.
type countingLedger struct {
	service.MembershipService

	mu     sync.Mutex
	grants int
}

func (c *countingLedger) GrantOrRenew(ctx context.Context, tx *gorm.DB, userID uint, planType string, durationDays int) (*model.Membership, error) {
	c.mu.Lock()
	c.grants++
	c.mu.Unlock()
	return c.MembershipService.GrantOrRenew(ctx, tx, userID, planType, durationDays)
}

func (c *countingLedger) Grants() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grants
}

type engineFixture struct {
	db      *gorm.DB
	gateway *fakeGateway
	ledger  *countingLedger
	payment service.PaymentService
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	db := newTestDB(t)
	gateway := &fakeGateway{}
	ledger := &countingLedger{
		MembershipService: service.NewMembershipService(db, repository.NewMembershipRepository(db), repository.NewUserRepository(db)),
	}

	payment := service.NewPaymentService(
		db, gateway, testGatewaySecret,
		repository.NewUserRepository(db),
		repository.NewPlanRepository(db),
		repository.NewOrderRepository(db),
		ledger,
		repository.NewWebhookEventRepository(db),
	)

	return &engineFixture{db: db, gateway: gateway, ledger: ledger, payment: payment}
}

// signedNotify builds a webhook parameter set carrying a valid signature.
func signedNotify(params map[string]string) map[string]string {
	params["sign"] = client.Sign(params, nil, testGatewaySecret)
	return params
}
