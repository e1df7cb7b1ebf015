package billing

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
)

type (
	Repository interface {
		// QuerySubscriptions returns the school's subscriptions, optionally
		// restricted to the given statuses.
		QuerySubscriptions(ctx context.Context, schoolID string, statuses ...string) ([]Subscription, error)
		GetSubscription(ctx context.Context, id string) (Subscription, error)
		CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		UpdateSubscriptionStatus(ctx context.Context, id, status string) (Subscription, error)

		QuerySessions(ctx context.Context, schoolID string) ([]Session, error)
		CreateSession(ctx context.Context, sess Session) (Session, error)

		QueryCurrencies(ctx context.Context, schoolID string) ([]Currency, error)
		CreateCurrency(ctx context.Context, curr Currency) (Currency, error)
		// SetDefaultCurrency atomically clears the school's current default
		// and marks the given currency instead.
		SetDefaultCurrency(ctx context.Context, schoolID, currencyID string) error
	}

	// StudentDirectory resolves student display names for projected payments.
	StudentDirectory interface {
		StudentNames(ctx context.Context, schoolID string) (map[string]string, error)
	}

	Service struct {
		repo     Repository
		students StudentDirectory
		mailSvc  core.EmailService
		logger   core.Logger
		conf     *core.Config
		cache    *paymentsCache

		nowFunc func() time.Time // mockable
	}
)

func NewService(
	repo Repository,
	students StudentDirectory,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		repo:     repo,
		students: students,
		mailSvc:  mailSvc,
		logger:   logger,
		conf:     conf,
		cache:    newPaymentsCache(conf.ExpectedPaymentsCacheTTL),
		nowFunc:  time.Now,
	}
}

// NewServiceMock returns a Service running on a fixed clock. Test helper.
func NewServiceMock(
	repo Repository,
	students StudentDirectory,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
	nowFunc func() time.Time,
) *Service {
	svc := NewService(repo, students, mailSvc, logger, conf)
	if nowFunc != nil {
		svc.nowFunc = nowFunc
	}
	return svc
}

// now returns the current time in the school's reference zone.
func (svc *Service) now() time.Time {
	return svc.nowFunc().In(svc.conf.Location())
}

// ExpectedPayments projects the next payment of every active subscription of
// the school and filters the result by rng. Unprojectable subscriptions are
// skipped with a warning so one malformed row never fails the whole batch.
// Results are memoized for the configured TTL.
func (svc *Service) ExpectedPayments(ctx context.Context, schoolID string, rng DateRange) ([]ExpectedPayment, error) {
	now := svc.now()
	key := svc.cache.key(schoolID, rng, now)
	if payments, ok := svc.cache.get(key, now); ok {
		return payments, nil
	}

	subs, err := svc.repo.QuerySubscriptions(ctx, schoolID, SubscriptionActive)
	if err != nil {
		return nil, errors.Wrap(err, "querying subscriptions")
	}
	sessions, err := svc.repo.QuerySessions(ctx, schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}

	// symbols and names are display sugar: degrade with a warning
	currencies, err := svc.repo.QueryCurrencies(ctx, schoolID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("querying currencies for school %s: %v", schoolID, err), err)
	}
	names, err := svc.students.StudentNames(ctx, schoolID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("querying student names for school %s: %v", schoolID, err), err)
	}

	today := DateOf(now)
	payments := make([]ExpectedPayment, 0, len(subs))
	for _, sub := range subs {
		ep := Project(sub, sessions, today)
		if ep == nil {
			svc.logger.Warn(fmt.Sprintf("subscription %s is not projectable, skipped", sub.ID))
			continue
		}
		if !rng.Contains(ep.NextPaymentDate, today) {
			continue
		}
		ep.StudentName = names[ep.StudentID]
		ep.CurrencySymbol = symbolFromSet(ep.CurrencyCode, currencies)
		payments = append(payments, *ep)
	}

	sort.Slice(payments, func(i, j int) bool {
		if !payments[i].NextPaymentDate.Equal(payments[j].NextPaymentDate) {
			return payments[i].NextPaymentDate.Before(payments[j].NextPaymentDate)
		}
		return payments[i].SubscriptionID < payments[j].SubscriptionID
	})

	svc.cache.set(key, now, payments)
	return payments, nil
}

// ConvertAmount converts between two of the school's currencies using the
// stored rates, or liveRate when supplied.
func (svc *Service) ConvertAmount(ctx context.Context, schoolID string, amount float64, from, to string, liveRate ...float64) (float64, error) {
	currencies, err := svc.repo.QueryCurrencies(ctx, schoolID)
	if err != nil {
		return 0, errors.Wrap(err, "querying currencies")
	}
	if n := CountDefaults(currencies); n != 1 {
		svc.logger.Warn(fmt.Sprintf("school %s has %d default currencies, conversions may be ill-defined", schoolID, n))
	}
	return Convert(amount, from, to, currencies, liveRate...)
}

func (svc *Service) Currencies(ctx context.Context, schoolID string) ([]Currency, error) {
	return svc.repo.QueryCurrencies(ctx, schoolID)
}

func (svc *Service) CreateCurrency(ctx context.Context, nc NewCurrency) (Currency, error) {
	now := time.Now().UTC()
	curr, err := svc.repo.CreateCurrency(ctx, Currency{
		SchoolID:     nc.SchoolID,
		Code:         nc.Code,
		Symbol:       nc.Symbol,
		ExchangeRate: nc.ExchangeRate,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Currency{}, err
	}
	if nc.IsDefault {
		if err = svc.repo.SetDefaultCurrency(ctx, nc.SchoolID, curr.ID); err != nil {
			return Currency{}, errors.Wrap(err, "setting default currency")
		}
		curr.IsDefault = true
	}
	svc.cache.invalidate(nc.SchoolID)
	return curr, nil
}

// MakeDefaultCurrency swaps the school's default currency in one
// transactional operation.
func (svc *Service) MakeDefaultCurrency(ctx context.Context, schoolID, currencyID string) error {
	if err := svc.repo.SetDefaultCurrency(ctx, schoolID, currencyID); err != nil {
		return err
	}
	svc.cache.invalidate(schoolID)
	return nil
}

func (svc *Service) Subscriptions(ctx context.Context, schoolID string, statuses ...string) ([]Subscription, error) {
	return svc.repo.QuerySubscriptions(ctx, schoolID, statuses...)
}

func (svc *Service) GetSubscription(ctx context.Context, id string) (Subscription, error) {
	return svc.repo.GetSubscription(ctx, id)
}

func (svc *Service) CreateSubscription(ctx context.Context, ns NewSubscription) (Subscription, error) {
	now := time.Now().UTC()
	sub, err := svc.repo.CreateSubscription(ctx, Subscription{
		SchoolID:     ns.SchoolID,
		StudentID:    ns.StudentID,
		Schedule:     ns.Schedule,
		TotalPrice:   ns.TotalPrice,
		CurrencyCode: ns.CurrencyCode,
		Status:       ns.Status,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Subscription{}, err
	}
	svc.cache.invalidate(ns.SchoolID)
	return sub, nil
}

func (svc *Service) UpdateSubscriptionStatus(ctx context.Context, id, status string) (Subscription, error) {
	sub, err := svc.repo.UpdateSubscriptionStatus(ctx, id, status)
	if err != nil {
		return Subscription{}, err
	}
	svc.cache.invalidate(sub.SchoolID)
	return sub, nil
}

func (svc *Service) CreateSession(ctx context.Context, ns NewSession) (Session, error) {
	sess, err := svc.repo.CreateSession(ctx, Session{
		SubscriptionID: ns.SubscriptionID,
		SchoolID:       ns.SchoolID,
		ScheduledDate:  ns.ParsedDate(svc.conf.Location()),
		Status:         ns.Status,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return Session{}, err
	}
	svc.cache.invalidate(ns.SchoolID)
	return sess, nil
}

// SendPaymentReminders emails the school's finance address a summary of the
// payments expected within the next 7 days.
func (svc *Service) SendPaymentReminders(ctx context.Context, schoolID string) error {
	payments, err := svc.ExpectedPayments(ctx, schoolID, DateRange{Preset: RangeNext7Days})
	if err != nil {
		return errors.Wrap(err, "projecting payments")
	}
	if len(payments) == 0 {
		svc.logger.Info(fmt.Sprintf("no payments due within 7 days for school %s, no reminder sent", schoolID))
		return nil
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: svc.conf.FinanceEmail}},
		Subject:      "Expected payments for the next 7 days",
		TemplateName: "payment-reminder",
		TemplateData: struct {
			Payments []ExpectedPayment
			Today    time.Time
		}{payments, DateOf(svc.now())},
	})
	return nil
}

func symbolFromSet(code string, currencies []Currency) string {
	for _, c := range currencies {
		if c.Code == code {
			return c.Symbol
		}
	}
	return SymbolFor(code)
}
