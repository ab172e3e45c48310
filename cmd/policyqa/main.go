// Package main is the entry point for the policyqa server.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/coverport/policyqa/cmd/policyqa/app"
)

func main() {
	app.NewApp().Run()
}
