package main

import (
	"os"

	"github.com/wonny/optrader/cmd/optrader/commands"
)

// main is the entry point for the optrader CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/optrader [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
