package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
	"github.com/trezcool/malipo/core/student"
)

// NewConfig returns a config suitable for unit tests. The payments cache is
// disabled unless cacheTTL is given.
func NewConfig(cacheTTL ...time.Duration) *core.Config {
	var ttl time.Duration
	if len(cacheTTL) > 0 {
		ttl = cacheTTL[0]
	}
	return &core.Config{
		TestMode:                 true,
		AppName:                  "Malipo",
		Env:                      "TEST",
		Build:                    "test",
		SecretKey:                "secret",
		TimeZone:                 core.DefaultTimeZone,
		DefaultFromName:          "Malipo",
		DefaultFromAddr:          "noreply@test.cd",
		FinanceEmail:             "finance@test.cd",
		ExpectedPaymentsCacheTTL: ttl,
		Server: core.ServerConfig{
			Host:               "localhost",
			Port:               "8000",
			JWTExpirationDelta: 10 * time.Minute,
		},
	}
}

// NewTranslator returns the default English translator.
func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// NewValidator returns a validator with all app validation tags registered.
// Pass the translator that will be used to translate validation errors
// (mirroring how apps/api/main.go shares one translator instance); a fresh
// one is created when omitted.
func NewValidator(trans ...ut.Translator) *validator.Validate {
	var translator ut.Translator
	if len(trans) > 0 {
		translator = trans[0]
	} else {
		translator = NewTranslator()
	}
	validate := validator.New()
	core.InitValidators(validate, translator)
	billing.InitValidators(validate, translator)
	return validate
}

type nopLogger struct{}

var _ core.Logger = (*nopLogger)(nil)

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func NewNopLogger() core.Logger { return nopLogger{} }

// Date builds a calendar date in the given zone (UTC when omitted).
func Date(year int, month time.Month, day int, loc ...*time.Location) time.Time {
	l := time.UTC
	if len(loc) > 0 {
		l = loc[0]
	}
	return time.Date(year, month, day, 0, 0, 0, 0, l)
}

func CreateStudent(t *testing.T, repo student.Repository, schoolID, name, email string) student.Student {
	t.Helper()

	now := time.Now().UTC()
	st, err := repo.CreateStudent(context.Background(), student.Student{
		SchoolID:  schoolID,
		Name:      name,
		Email:     email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return st
}

func CreateSubscription(
	t *testing.T,
	repo billing.Repository,
	schoolID, studentID string,
	schedule billing.Schedule,
	price float64,
	currencyCode, status string,
) billing.Subscription {
	t.Helper()

	now := time.Now().UTC()
	sub, err := repo.CreateSubscription(context.Background(), billing.Subscription{
		SchoolID:     schoolID,
		StudentID:    studentID,
		Schedule:     schedule,
		TotalPrice:   price,
		CurrencyCode: currencyCode,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("CreateSubscription() failed: %v", err)
	}
	return sub
}

func CreateSession(
	t *testing.T,
	repo billing.Repository,
	sub billing.Subscription,
	date null.Time,
	status string,
) billing.Session {
	t.Helper()

	sess, err := repo.CreateSession(context.Background(), billing.Session{
		SubscriptionID: sub.ID,
		SchoolID:       sub.SchoolID,
		ScheduledDate:  date,
		Status:         status,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return sess
}

func CreateCurrency(
	t *testing.T,
	repo billing.Repository,
	schoolID, code string,
	rate float64,
	isDefault bool,
) billing.Currency {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()
	curr, err := repo.CreateCurrency(ctx, billing.Currency{
		SchoolID:     schoolID,
		Code:         code,
		Symbol:       billing.SymbolFor(code),
		ExchangeRate: rate,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("CreateCurrency() failed: %v", err)
	}
	if isDefault {
		if err = repo.SetDefaultCurrency(ctx, schoolID, curr.ID); err != nil {
			t.Fatalf("SetDefaultCurrency() failed: %v", err)
		}
		curr.IsDefault = true
		curr.ExchangeRate = 1
	}
	return curr
}
