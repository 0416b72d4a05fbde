package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wonny/genxsop/backend/internal/strategy"
)

// modelsCmd lists the strategy catalogue
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "예측 모델 카탈로그",
	Long: `지원하는 예측 모델과 최소 이력, 강등(fallback) 대상을 출력합니다.

Example:
  go run ./cmd/genxsop models
  go run ./cmd/genxsop models --json`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	// 카탈로그는 파라미터와 무관 → store 연결 없이 출력
	infos := strategy.NewRegistry(nil).Catalogue()
	if outputJSON {
		return PrintJSON(infos)
	}

	PrintHeader("Forecast Models")
	widths := []int{16, 26, 8, 16}
	PrintTableHeader([]string{"ID", "Name", "Min", "Fallback"}, widths)
	for _, info := range infos {
		fallback := "-"
		if info.Fallback != "" {
			fallback = string(info.Fallback)
		}
		PrintTableRow([]string{string(info.ID), info.DisplayName, strconv.Itoa(info.MinDataMonths), fallback}, widths)
	}
	if verbose {
		for _, info := range infos {
			PrintKeyValue(string(info.ID), info.Description, 16)
		}
	}
	return nil
}
