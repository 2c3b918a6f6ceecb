package main

import (
	"fmt"
	"os"
)

// @title Voter Support API
// @version 1.0.0
// @description Voter chat support intake and admin triage
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
