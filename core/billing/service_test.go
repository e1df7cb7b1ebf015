package billing_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/malipo/core/billing"
	"github.com/trezcool/malipo/core/student"
	emailsvc "github.com/trezcool/malipo/services/email"
	dummydb "github.com/trezcool/malipo/storage/database/dummy"
	testutil "github.com/trezcool/malipo/tests"
)

const schoolID = "sch1"

type serviceFixture struct {
	svc         *billing.Service
	billingRepo billing.Repository
	studentRepo student.Repository
	loc         *time.Location
}

func setup(t *testing.T, cacheTTL ...time.Duration) serviceFixture {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	billingRepo := dummydb.NewBillingRepository(db)
	studentRepo := dummydb.NewStudentRepository(db)

	conf := testutil.NewConfig(cacheTTL...)
	now := time.Date(2021, time.March, 10, 9, 0, 0, 0, conf.Location()) // a Wednesday

	svc := billing.NewServiceMock(
		billingRepo,
		student.NewService(studentRepo),
		emailsvc.NewConsoleServiceMock(conf),
		testutil.NewNopLogger(),
		conf,
		func() time.Time { return now },
	)
	return serviceFixture{svc: svc, billingRepo: billingRepo, studentRepo: studentRepo, loc: conf.Location()}
}

func seedSchool(t *testing.T, fix serviceFixture) (withSessions, neverBilled billing.Subscription) {
	t.Helper()

	loc := fix.loc
	billingRepo, studentRepo := fix.billingRepo, fix.studentRepo

	anna := testutil.CreateStudent(t, studentRepo, schoolID, "Anna K", "anna@test.cd")
	boris := testutil.CreateStudent(t, studentRepo, schoolID, "Boris P", "boris@test.cd")

	testutil.CreateCurrency(t, billingRepo, schoolID, "RUB", 1, true)
	testutil.CreateCurrency(t, billingRepo, schoolID, "USD", 0.0135, false)

	mondays := billing.Schedule{{Day: billing.Weekday(time.Monday)}}
	thursdays := billing.Schedule{{Day: billing.Weekday(time.Thursday)}}

	withSessions = testutil.CreateSubscription(t, billingRepo, schoolID, anna.ID, mondays, 5000, "RUB", billing.SubscriptionActive)
	testutil.CreateSession(t, billingRepo, withSessions, null.TimeFrom(testutil.Date(2021, time.March, 1, loc)), billing.SessionCompleted)
	testutil.CreateSession(t, billingRepo, withSessions, null.TimeFrom(testutil.Date(2021, time.March, 8, loc)), billing.SessionCompleted)

	neverBilled = testutil.CreateSubscription(t, billingRepo, schoolID, boris.ID, thursdays, 3000, "USD", billing.SubscriptionActive)

	// noise: unprojectable and inactive subscriptions never surface
	testutil.CreateSubscription(t, billingRepo, schoolID, anna.ID, nil, 100, "RUB", billing.SubscriptionActive)
	testutil.CreateSubscription(t, billingRepo, schoolID, boris.ID, mondays, 200, "RUB", billing.SubscriptionCancelled)

	return withSessions, neverBilled
}

func Test_Service_ExpectedPayments(t *testing.T) {
	fix := setup(t)
	svc, loc := fix.svc, fix.loc
	withSessions, neverBilled := seedSchool(t, fix)

	ctx := context.Background()

	payments, err := svc.ExpectedPayments(ctx, schoolID, billing.DateRange{Preset: billing.RangeAll})
	if err != nil {
		t.Fatalf("ExpectedPayments() failed: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("ExpectedPayments() returned %d payments, want 2", len(payments))
	}

	// sorted by date: Boris is due today (Mar 10), Anna next Monday (Mar 15)
	assert.Equal(t, neverBilled.ID, payments[0].SubscriptionID)
	assert.Equal(t, "Boris P", payments[0].StudentName)
	assert.Equal(t, testutil.Date(2021, time.March, 10, loc), payments[0].NextPaymentDate)
	assert.Equal(t, float64(3000), payments[0].NextPaymentAmount)
	assert.Equal(t, "USD", payments[0].CurrencyCode)
	assert.Equal(t, "$", payments[0].CurrencySymbol)
	assert.False(t, payments[0].LastSessionDate.Valid)

	assert.Equal(t, withSessions.ID, payments[1].SubscriptionID)
	assert.Equal(t, "Anna K", payments[1].StudentName)
	assert.Equal(t, testutil.Date(2021, time.March, 15, loc), payments[1].NextPaymentDate)
	assert.Equal(t, "₽", payments[1].CurrencySymbol)
	if assert.True(t, payments[1].LastSessionDate.Valid) {
		assert.True(t, testutil.Date(2021, time.March, 8, loc).Equal(payments[1].LastSessionDate.Time))
	}

	// range filters apply to the projected dates
	payments, err = svc.ExpectedPayments(ctx, schoolID, billing.DateRange{Preset: billing.RangeToday})
	if err != nil {
		t.Fatalf("ExpectedPayments() failed: %v", err)
	}
	if assert.Len(t, payments, 1) {
		assert.Equal(t, neverBilled.ID, payments[0].SubscriptionID)
	}

	payments, err = svc.ExpectedPayments(ctx, schoolID, billing.DateRange{
		Preset: billing.RangeCustom,
		From:   testutil.Date(2021, time.March, 14, loc),
	})
	if err != nil {
		t.Fatalf("ExpectedPayments() failed: %v", err)
	}
	if assert.Len(t, payments, 1) {
		assert.Equal(t, withSessions.ID, payments[0].SubscriptionID)
	}

	// unknown school simply has nothing due
	payments, err = svc.ExpectedPayments(ctx, "ghost", billing.DateRange{Preset: billing.RangeAll})
	if err != nil {
		t.Fatalf("ExpectedPayments() failed: %v", err)
	}
	assert.Empty(t, payments)
}

func Test_Service_ExpectedPayments_cache(t *testing.T) {
	fix := setup(t, 5*time.Minute)
	svc, billingRepo, loc := fix.svc, fix.billingRepo, fix.loc
	withSessions, _ := seedSchool(t, fix)

	ctx := context.Background()
	rng := billing.DateRange{Preset: billing.RangeAll}

	first, err := svc.ExpectedPayments(ctx, schoolID, rng)
	if err != nil {
		t.Fatalf("ExpectedPayments() failed: %v", err)
	}

	// a write behind the service's back is not picked up while cached
	testutil.CreateSession(t, billingRepo, withSessions, null.TimeFrom(testutil.Date(2021, time.March, 9, loc)), billing.SessionCompleted)
	cached, err := svc.ExpectedPayments(ctx, schoolID, rng)
	if err != nil {
		t.Fatalf("ExpectedPayments() failed: %v", err)
	}
	assert.Equal(t, first, cached)

	// a write through the service invalidates the school's cache
	_, err = svc.CreateSession(ctx, billing.NewSession{
		SubscriptionID: withSessions.ID,
		SchoolID:       schoolID,
		ScheduledDate:  "2021-03-09",
		Status:         billing.SessionCompleted,
	})
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}

	fresh, err := svc.ExpectedPayments(ctx, schoolID, rng)
	if err != nil {
		t.Fatalf("ExpectedPayments() failed: %v", err)
	}
	for _, p := range fresh {
		if p.SubscriptionID == withSessions.ID {
			assert.Equal(t, testutil.Date(2021, time.March, 15, loc), p.NextPaymentDate)
			if assert.True(t, p.LastSessionDate.Valid) {
				assert.True(t, testutil.Date(2021, time.March, 9, loc).Equal(p.LastSessionDate.Time))
			}
		}
	}
}

func Test_Service_ConvertAmount(t *testing.T) {
	fix := setup(t)
	svc := fix.svc
	testutil.CreateCurrency(t, fix.billingRepo, schoolID, "RUB", 1, true)
	testutil.CreateCurrency(t, fix.billingRepo, schoolID, "USD", 0.0135, false)

	ctx := context.Background()

	got, err := svc.ConvertAmount(ctx, schoolID, 1000, "RUB", "USD")
	if assert.NoError(t, err) {
		assert.InDelta(t, 13.5, got, 1e-9)
	}

	got, err = svc.ConvertAmount(ctx, schoolID, 100, "USD", "RUB", 74.0)
	if assert.NoError(t, err) {
		assert.InDelta(t, 7400, got, 1e-9)
	}

	_, err = svc.ConvertAmount(ctx, schoolID, 100, "XTS", "RUB")
	assert.Equal(t, billing.ErrCurrencyNotFound, errors.Cause(err))
}

func Test_Service_currencies(t *testing.T) {
	svc := setup(t).svc
	ctx := context.Background()

	rub, err := svc.CreateCurrency(ctx, billing.NewCurrency{SchoolID: schoolID, Code: "RUB", Symbol: "₽", IsDefault: true, ExchangeRate: 1})
	if err != nil {
		t.Fatalf("CreateCurrency() failed: %v", err)
	}
	assert.True(t, rub.IsDefault)

	usd, err := svc.CreateCurrency(ctx, billing.NewCurrency{SchoolID: schoolID, Code: "USD", Symbol: "$", ExchangeRate: 0.0135})
	if err != nil {
		t.Fatalf("CreateCurrency() failed: %v", err)
	}
	assert.False(t, usd.IsDefault)

	// swapping the default demotes the old one and pins the new rate to 1
	if err = svc.MakeDefaultCurrency(ctx, schoolID, usd.ID); err != nil {
		t.Fatalf("MakeDefaultCurrency() failed: %v", err)
	}
	currencies, err := svc.Currencies(ctx, schoolID)
	if err != nil {
		t.Fatalf("Currencies() failed: %v", err)
	}
	assert.Equal(t, 1, billing.CountDefaults(currencies))
	curr, err := billing.DefaultCurrency(currencies)
	if assert.NoError(t, err) {
		assert.Equal(t, "USD", curr.Code)
		assert.Equal(t, float64(1), curr.ExchangeRate)
	}

	assert.Equal(t, billing.ErrCurrencyNotFound, errors.Cause(svc.MakeDefaultCurrency(ctx, schoolID, "ghost")))
}

func Test_Service_subscriptions(t *testing.T) {
	svc := setup(t).svc
	ctx := context.Background()

	sub, err := svc.CreateSubscription(ctx, billing.NewSubscription{
		SchoolID:     schoolID,
		StudentID:    "st1",
		Schedule:     billing.Schedule{{Day: billing.Weekday(time.Tuesday), Time: "16:00"}},
		TotalPrice:   2500,
		CurrencyCode: "RUB",
		Status:       billing.SubscriptionActive,
	})
	if err != nil {
		t.Fatalf("CreateSubscription() failed: %v", err)
	}

	got, err := svc.GetSubscription(ctx, sub.ID)
	if assert.NoError(t, err) {
		assert.Equal(t, sub.Schedule, got.Schedule)
	}

	updated, err := svc.UpdateSubscriptionStatus(ctx, sub.ID, billing.SubscriptionPaused)
	if assert.NoError(t, err) {
		assert.Equal(t, billing.SubscriptionPaused, updated.Status)
	}

	active, err := svc.Subscriptions(ctx, schoolID, billing.SubscriptionActive)
	if assert.NoError(t, err) {
		assert.Empty(t, active)
	}

	_, err = svc.GetSubscription(ctx, "ghost")
	assert.Equal(t, billing.ErrSubscriptionNotFound, errors.Cause(err))

	_, err = svc.UpdateSubscriptionStatus(ctx, "ghost", billing.SubscriptionActive)
	assert.Equal(t, billing.ErrSubscriptionNotFound, errors.Cause(err))
}

func Test_Service_SendPaymentReminders(t *testing.T) {
	fix := setup(t)
	svc := fix.svc
	seedSchool(t, fix)

	ctx := context.Background()
	sentBefore := len(emailsvc.SentMessages)

	if err := svc.SendPaymentReminders(ctx, schoolID); err != nil {
		t.Fatalf("SendPaymentReminders() failed: %v", err)
	}
	if len(emailsvc.SentMessages) != sentBefore+1 {
		t.Fatalf("SendPaymentReminders() sent %d messages, want 1", len(emailsvc.SentMessages)-sentBefore)
	}

	msg := emailsvc.SentMessages[len(emailsvc.SentMessages)-1]
	assert.Equal(t, "Expected payments for the next 7 days", msg.Subject)
	if assert.Len(t, msg.To, 1) {
		assert.Equal(t, "finance@test.cd", msg.To[0].Address)
	}
	assert.True(t, strings.Contains(msg.TextContent, "Anna K"), msg.TextContent)
	assert.True(t, strings.Contains(msg.TextContent, "Boris P"), msg.TextContent)

	// nothing due, nothing sent
	sentBefore = len(emailsvc.SentMessages)
	if err := svc.SendPaymentReminders(ctx, "ghost"); err != nil {
		t.Fatalf("SendPaymentReminders() failed: %v", err)
	}
	assert.Len(t, emailsvc.SentMessages, sentBefore)
}
