package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	modelConfigFile string
	env             string
	storeBackend    string
	seedFile        string
	outputJSON      bool
	verbose         bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "genxsop",
	Short: "GenXSOP - S&OP 수요예측 엔진",
	Long: `GenXSOP Forecast Engine CLI

S&OP 수요예측 모델 선택 및 오케스트레이션 엔진.
백테스트 → 모델 선택 → 예측 생성 → 컨센서스 승인까지.

Usage:
  go run ./cmd/genxsop [command]

Examples:
  go run ./cmd/genxsop models
  go run ./cmd/genxsop forecast generate --product 1 --horizon 6
  go run ./cmd/genxsop jobs enqueue --product 1 --horizon 3
  go run ./cmd/genxsop worker start
  go run ./cmd/genxsop migrate up
  go run ./cmd/genxsop forecast generate --product 1 --store memory --seed config/seed/history.json`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&modelConfigFile, "config", "", "model config YAML (default: FORECAST_MODEL_CONFIG or built-in)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|test|staging|production)")
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store", storePostgres, "store backend (postgres|memory)")
	rootCmd.PersistentFlags().StringVar(&seedFile, "seed", "", "history seed JSON for --store memory")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
