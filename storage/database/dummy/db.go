package dummydb

import (
	"sync"

	"github.com/trezcool/malipo/core/billing"
	"github.com/trezcool/malipo/core/student"
)

// DB is an in-memory store used by tests and local tinkering.
type DB struct {
	subscription *subscriptionTable
	session      *sessionTable
	currency     *currencyTable
	student      *studentTable
}

type (
	subscriptionTable struct {
		sync.RWMutex
		table map[string]*billing.Subscription
	}
	sessionTable struct {
		sync.RWMutex
		table map[string]*billing.Session
	}
	currencyTable struct {
		sync.RWMutex
		table map[string]*billing.Currency
	}
	studentTable struct {
		sync.RWMutex
		table map[string]*student.Student
	}
)

func Open() (*DB, error) {
	db := &DB{
		subscription: &subscriptionTable{table: make(map[string]*billing.Subscription)},
		session:      &sessionTable{table: make(map[string]*billing.Session)},
		currency:     &currencyTable{table: make(map[string]*billing.Currency)},
		student:      &studentTable{table: make(map[string]*student.Student)},
	}
	return db, nil
}
