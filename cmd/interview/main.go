// Terminal client for the mock interview chat engine
package main

import (
	"fmt"
	"os"

	"github.com/ashureev/mock-interview/internal/cli"
	"github.com/ashureev/mock-interview/internal/config"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := cli.NewRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
