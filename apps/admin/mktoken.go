package main

import (
	"fmt"

	echoapi "github.com/trezcool/malipo/apps/api/echo"
)

// mkToken prints a signed JWT scoped to the given school. Handy for wiring up
// dashboards and for local API poking.
func (cli *commandLine) mkToken(schoolID, schoolName string) error {
	claims := echoapi.NewSchoolClaims(cli.conf, schoolID, schoolName)
	token, err := echoapi.GenerateToken(cli.conf, claims)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
