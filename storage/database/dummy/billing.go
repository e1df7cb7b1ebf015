package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/malipo/core/billing"
)

type billingRepository struct {
	subs       *subscriptionTable
	sessions   *sessionTable
	currencies *currencyTable
}

var _ billing.Repository = (*billingRepository)(nil) // interface compliance check

func NewBillingRepository(db *DB) *billingRepository {
	return &billingRepository{
		subs:       db.subscription,
		sessions:   db.session,
		currencies: db.currency,
	}
}

func (repo *billingRepository) QuerySubscriptions(ctx context.Context, schoolID string, statuses ...string) ([]billing.Subscription, error) {
	repo.subs.RLock()
	defer repo.subs.RUnlock()

	subs := make([]billing.Subscription, 0, len(repo.subs.table))
	for _, sub := range repo.subs.table {
		if sub.SchoolID != schoolID {
			continue
		}
		if len(statuses) > 0 && !contains(statuses, sub.Status) {
			continue
		}
		subs = append(subs, *sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
	return subs, nil
}

func (repo *billingRepository) GetSubscription(ctx context.Context, id string) (billing.Subscription, error) {
	repo.subs.RLock()
	defer repo.subs.RUnlock()

	if sub, ok := repo.subs.table[id]; ok {
		return *sub, nil
	}
	return billing.Subscription{}, billing.ErrSubscriptionNotFound
}

func (repo *billingRepository) CreateSubscription(ctx context.Context, sub billing.Subscription) (billing.Subscription, error) {
	repo.subs.Lock()
	defer repo.subs.Unlock()

	sub.ID = uuid.New().String()
	repo.subs.table[sub.ID] = &sub
	return sub, nil
}

func (repo *billingRepository) UpdateSubscriptionStatus(ctx context.Context, id, status string) (billing.Subscription, error) {
	repo.subs.Lock()
	defer repo.subs.Unlock()

	sub, ok := repo.subs.table[id]
	if !ok {
		return billing.Subscription{}, billing.ErrSubscriptionNotFound
	}
	sub.Status = status
	sub.UpdatedAt = time.Now().UTC()
	return *sub, nil
}

func (repo *billingRepository) QuerySessions(ctx context.Context, schoolID string) ([]billing.Session, error) {
	repo.sessions.RLock()
	defer repo.sessions.RUnlock()

	sessions := make([]billing.Session, 0, len(repo.sessions.table))
	for _, sess := range repo.sessions.table {
		if sess.SchoolID == schoolID {
			sessions = append(sessions, *sess)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions, nil
}

func (repo *billingRepository) CreateSession(ctx context.Context, sess billing.Session) (billing.Session, error) {
	repo.sessions.Lock()
	defer repo.sessions.Unlock()

	sess.ID = uuid.New().String()
	repo.sessions.table[sess.ID] = &sess
	return sess, nil
}

func (repo *billingRepository) QueryCurrencies(ctx context.Context, schoolID string) ([]billing.Currency, error) {
	repo.currencies.RLock()
	defer repo.currencies.RUnlock()

	currencies := make([]billing.Currency, 0, len(repo.currencies.table))
	for _, curr := range repo.currencies.table {
		if curr.SchoolID == schoolID {
			currencies = append(currencies, *curr)
		}
	}
	sort.Slice(currencies, func(i, j int) bool { return currencies[i].Code < currencies[j].Code })
	return currencies, nil
}

func (repo *billingRepository) CreateCurrency(ctx context.Context, curr billing.Currency) (billing.Currency, error) {
	repo.currencies.Lock()
	defer repo.currencies.Unlock()

	curr.ID = uuid.New().String()
	repo.currencies.table[curr.ID] = &curr
	return curr, nil
}

func (repo *billingRepository) SetDefaultCurrency(ctx context.Context, schoolID, currencyID string) error {
	repo.currencies.Lock()
	defer repo.currencies.Unlock()

	target, ok := repo.currencies.table[currencyID]
	if !ok || target.SchoolID != schoolID {
		return billing.ErrCurrencyNotFound
	}

	now := time.Now().UTC()
	for _, curr := range repo.currencies.table {
		if curr.SchoolID == schoolID && curr.IsDefault {
			curr.IsDefault = false
			curr.UpdatedAt = now
		}
	}
	target.IsDefault = true
	target.ExchangeRate = 1
	target.UpdatedAt = now
	return nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
