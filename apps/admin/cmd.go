package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf        *core.Config
	db          *sql.DB
	billingRepo billing.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - apply database migrations (goose commands)")
	fmt.Println("  mktoken -school SCHOOL_ID [-name NAME] - print an API token for a school")
	fmt.Println("  seedcurrencies -school SCHOOL_ID - create the school's starter currency set")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	mkTokenCmd := flag.NewFlagSet("mktoken", flag.ExitOnError)
	mkTokenSchool := mkTokenCmd.String("school", "", "The school ID the token is scoped to.")
	mkTokenName := mkTokenCmd.String("name", "", "Optional school display name embedded in the token.")

	seedCmd := flag.NewFlagSet("seedcurrencies", flag.ExitOnError)
	seedSchool := seedCmd.String("school", "", "The school ID to seed currencies for.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "mktoken":
		if err := mkTokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *mkTokenSchool == "" {
			mkTokenCmd.Usage()
			return errHelp
		}
		return cli.mkToken(*mkTokenSchool, *mkTokenName)
	case "seedcurrencies":
		if err := seedCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *seedSchool == "" {
			seedCmd.Usage()
			return errHelp
		}
		return cli.seedCurrencies(*seedSchool)
	default:
		cli.printUsage()
		return errHelp
	}
}
