package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core/billing"
)

type billingRepository struct {
	db *sqlx.DB
}

var _ billing.Repository = (*billingRepository)(nil) // interface compliance check

func NewBillingRepository(db *sqlx.DB) *billingRepository {
	return &billingRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to a domain not-found error.
func trapNoRowsErr(err, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo billingRepository) QuerySubscriptions(ctx context.Context, schoolID string, statuses ...string) ([]billing.Subscription, error) {
	q := `SELECT * FROM subscriptions WHERE school_id = $1 ORDER BY created_at`
	args := []interface{}{schoolID}

	if len(statuses) > 0 {
		var err error
		q, args, err = sqlx.In(
			`SELECT * FROM subscriptions WHERE school_id = ? AND status IN (?) ORDER BY created_at`,
			schoolID, statuses,
		)
		if err != nil {
			return nil, errors.Wrap(err, "expanding subscription query")
		}
		q = repo.db.Rebind(q)
	}

	subs := make([]billing.Subscription, 0)
	if err := repo.db.SelectContext(ctx, &subs, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying subscriptions")
	}
	return subs, nil
}

func (repo billingRepository) GetSubscription(ctx context.Context, id string) (billing.Subscription, error) {
	var sub billing.Subscription
	if err := repo.db.GetContext(ctx, &sub, `SELECT * FROM subscriptions WHERE id = $1`, id); err != nil {
		return billing.Subscription{}, trapNoRowsErr(err, billing.ErrSubscriptionNotFound, "getting subscription")
	}
	return sub, nil
}

func (repo billingRepository) CreateSubscription(ctx context.Context, sub billing.Subscription) (billing.Subscription, error) {
	sub.ID = uuid.New().String()
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO subscriptions (id, school_id, student_id, schedule, total_price, currency_code, status, created_at, updated_at)
		VALUES (:id, :school_id, :student_id, :schedule, :total_price, :currency_code, :status, :created_at, :updated_at)`,
		sub,
	)
	if err != nil {
		return billing.Subscription{}, errors.Wrap(err, "inserting subscription")
	}
	return sub, nil
}

func (repo billingRepository) UpdateSubscriptionStatus(ctx context.Context, id, status string) (billing.Subscription, error) {
	var sub billing.Subscription
	err := repo.db.GetContext(ctx, &sub, `
		UPDATE subscriptions SET status = $2, updated_at = $3 WHERE id = $1 RETURNING *`,
		id, status, time.Now().UTC(),
	)
	if err != nil {
		return billing.Subscription{}, trapNoRowsErr(err, billing.ErrSubscriptionNotFound, "updating subscription status")
	}
	return sub, nil
}

func (repo billingRepository) QuerySessions(ctx context.Context, schoolID string) ([]billing.Session, error) {
	sessions := make([]billing.Session, 0)
	err := repo.db.SelectContext(ctx, &sessions,
		`SELECT * FROM sessions WHERE school_id = $1 ORDER BY scheduled_date`, schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	return sessions, nil
}

func (repo billingRepository) CreateSession(ctx context.Context, sess billing.Session) (billing.Session, error) {
	sess.ID = uuid.New().String()
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO sessions (id, subscription_id, school_id, scheduled_date, status, created_at)
		VALUES (:id, :subscription_id, :school_id, :scheduled_date, :status, :created_at)`,
		sess,
	)
	if err != nil {
		return billing.Session{}, errors.Wrap(err, "inserting session")
	}
	return sess, nil
}

func (repo billingRepository) QueryCurrencies(ctx context.Context, schoolID string) ([]billing.Currency, error) {
	currencies := make([]billing.Currency, 0)
	err := repo.db.SelectContext(ctx, &currencies,
		`SELECT * FROM currencies WHERE school_id = $1 ORDER BY code`, schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "querying currencies")
	}
	return currencies, nil
}

func (repo billingRepository) CreateCurrency(ctx context.Context, curr billing.Currency) (billing.Currency, error) {
	curr.ID = uuid.New().String()
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO currencies (id, school_id, code, symbol, exchange_rate, is_default, created_at, updated_at)
		VALUES (:id, :school_id, :code, :symbol, :exchange_rate, :is_default, :created_at, :updated_at)`,
		curr,
	)
	if err != nil {
		return billing.Currency{}, errors.Wrap(err, "inserting currency")
	}
	return curr, nil
}

// SetDefaultCurrency clears the school's current default and marks currencyID
// in a single transaction so the at-most-one-default invariant holds at all times.
func (repo billingRepository) SetDefaultCurrency(ctx context.Context, schoolID, currencyID string) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE currencies SET is_default = FALSE, updated_at = $2 WHERE school_id = $1 AND is_default`,
		schoolID, now)
	if err != nil {
		return errors.Wrap(err, "clearing default currency")
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE currencies SET is_default = TRUE, exchange_rate = 1, updated_at = $3 WHERE id = $1 AND school_id = $2`,
		currencyID, schoolID, now)
	if err != nil {
		return errors.Wrap(err, "setting default currency")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "setting default currency")
	} else if n == 0 {
		return billing.ErrCurrencyNotFound
	}

	return errors.Wrap(tx.Commit(), "committing default currency swap")
}
