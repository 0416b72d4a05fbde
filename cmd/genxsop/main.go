package main

import (
	"os"

	"github.com/wonny/genxsop/backend/cmd/genxsop/commands"
)

// main is the entry point for the GenXSOP forecast CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/genxsop [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
