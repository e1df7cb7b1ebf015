package main

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/malipo/core/billing"
)

// starter currency set for a fresh school. Rates are in units per 1 default
// currency unit and are meant to be adjusted from the dashboard.
var seedCurrencySet = []billing.Currency{
	{Code: "RUB", Symbol: "₽", ExchangeRate: 1, IsDefault: true},
	{Code: "USD", Symbol: "$", ExchangeRate: 0.011},
	{Code: "EUR", Symbol: "€", ExchangeRate: 0.010},
}

func (cli *commandLine) seedCurrencies(schoolID string) error {
	ctx := context.Background()

	existing, err := cli.billingRepo.QueryCurrencies(ctx, schoolID)
	if err != nil {
		return err
	}
	codes := make(map[string]bool, len(existing))
	for _, curr := range existing {
		codes[curr.Code] = true
	}

	now := time.Now().UTC()
	for _, seed := range seedCurrencySet {
		if codes[seed.Code] {
			logger.Printf("%s already exists for school %s, skipped\n", seed.Code, schoolID)
			continue
		}
		// defaults are only ever set through SetDefaultCurrency so a school
		// keeps at most one; a pre-existing default wins over the seed's.
		makeDefault := seed.IsDefault && billing.CountDefaults(existing) == 0
		seed.IsDefault = false
		seed.SchoolID = schoolID
		seed.CreatedAt = now
		seed.UpdatedAt = now

		curr, err := cli.billingRepo.CreateCurrency(ctx, seed)
		if err != nil {
			return fmt.Errorf("creating %s: %w", seed.Code, err)
		}
		if makeDefault {
			if err = cli.billingRepo.SetDefaultCurrency(ctx, schoolID, curr.ID); err != nil {
				return fmt.Errorf("marking %s default: %w", seed.Code, err)
			}
		}
		logger.Printf("created %s for school %s\n", seed.Code, schoolID)
	}
	return nil
}
