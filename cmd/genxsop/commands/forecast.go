package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/genxsop/backend/internal/backtest"
	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/internal/forecast"
)

// forecastCmd represents the forecast command
var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "수요예측 생성 및 분석",
	Long: `백테스트 기반 모델 선택과 예측 생성, 정확도 분석을 수행합니다.

Subcommands:
  generate   - 예측 생성 및 저장 (run audit 기록)
  recommend  - 모델 추천 진단 (저장 없음)
  sandbox    - 여러 모델 나란히 비교 (저장 없음)
  promote    - 선택한 모델 결과를 demand plan에 반영
  accuracy   - 저장된 예측 vs 실적 정확도
  drift      - 정확도 악화 알림
  anomalies  - 실적 이상치 탐지

Example:
  go run ./cmd/genxsop forecast generate --product 1 --horizon 6
  go run ./cmd/genxsop forecast recommend --product 1
  go run ./cmd/genxsop forecast sandbox --product 1 --models ewma,arima`,
}

var forecastGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "예측 생성",
	Long: `백테스트로 후보 모델을 평가하고 advisor가 선택한 모델로 예측을 생성합니다.

(product, model, period) 기준 latest-wins로 저장되고 run audit가 한 건 기록됩니다.

Example:
  go run ./cmd/genxsop forecast generate --product 1 --horizon 6
  go run ./cmd/genxsop forecast generate --product 1 --horizon 3 --model arima`,
	RunE: runForecastGenerate,
}

var forecastRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "모델 추천 진단",
	Long: `예측을 저장하지 않고 선택 진단만 출력합니다.

Example:
  go run ./cmd/genxsop forecast recommend --product 1`,
	RunE: runForecastRecommend,
}

var forecastSandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "모델 비교 샌드박스",
	Long: `여러 전략을 나란히 실행하고 advisor 비교 결과를 출력합니다. 아무것도 저장하지 않습니다.

Example:
  go run ./cmd/genxsop forecast sandbox --product 1 --horizon 6
  go run ./cmd/genxsop forecast sandbox --product 1 --models ewma,exp_smoothing,arima`,
	RunE: runForecastSandbox,
}

var forecastPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "샌드박스 결과 반영",
	Long: `선택한 모델의 예측을 기간별 demand plan의 forecast_qty로 반영합니다.

Example:
  go run ./cmd/genxsop forecast promote --product 1 --model ewma --horizon 6`,
	RunE: runForecastPromote,
}

var forecastAccuracyCmd = &cobra.Command{
	Use:   "accuracy",
	Short: "예측 정확도",
	Long: `저장된 예측과 demand plan 실적을 비교해 모델별 MAPE/WAPE/bias/hit rate를 출력합니다.

Example:
  go run ./cmd/genxsop forecast accuracy
  go run ./cmd/genxsop forecast accuracy --product 1`,
	RunE: runForecastAccuracy,
}

var forecastDriftCmd = &cobra.Command{
	Use:   "drift",
	Short: "정확도 드리프트 알림",
	Long: `최근 윈도우의 MAPE가 직전 윈도우보다 threshold 이상 악화된 (product, model)을 출력합니다.

Example:
  go run ./cmd/genxsop forecast drift
  go run ./cmd/genxsop forecast drift --threshold 15 --min-points 8`,
	RunE: runForecastDrift,
}

var forecastAnomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "실적 이상치 탐지",
	Long: `z-score 기준으로 실적 이력의 이상치를 탐지합니다 (|z| ≥ 1.5).

Example:
  go run ./cmd/genxsop forecast anomalies --product 1`,
	RunE: runForecastAnomalies,
}

var (
	// Forecast flags
	fcProduct   int64
	fcHorizon   int
	fcModel     string
	fcModels    []string
	fcUser      int64
	fcThreshold float64
	fcMinPoints int
)

func init() {
	rootCmd.AddCommand(forecastCmd)
	forecastCmd.AddCommand(forecastGenerateCmd)
	forecastCmd.AddCommand(forecastRecommendCmd)
	forecastCmd.AddCommand(forecastSandboxCmd)
	forecastCmd.AddCommand(forecastPromoteCmd)
	forecastCmd.AddCommand(forecastAccuracyCmd)
	forecastCmd.AddCommand(forecastDriftCmd)
	forecastCmd.AddCommand(forecastAnomaliesCmd)

	for _, c := range []*cobra.Command{forecastGenerateCmd, forecastRecommendCmd, forecastSandboxCmd, forecastPromoteCmd, forecastAnomaliesCmd} {
		c.Flags().Int64Var(&fcProduct, "product", 0, "product id")
		_ = c.MarkFlagRequired("product")
	}
	for _, c := range []*cobra.Command{forecastGenerateCmd, forecastSandboxCmd, forecastPromoteCmd} {
		c.Flags().IntVar(&fcHorizon, "horizon", 6, "forecast horizon (months)")
	}
	for _, c := range []*cobra.Command{forecastGenerateCmd, forecastPromoteCmd} {
		c.Flags().Int64Var(&fcUser, "user", 0, "acting user id")
	}
	forecastGenerateCmd.Flags().StringVar(&fcModel, "model", "", "requested model (default: advisor selection)")
	forecastRecommendCmd.Flags().StringVar(&fcModel, "model", "", "requested model")
	forecastPromoteCmd.Flags().StringVar(&fcModel, "model", "", "model to promote")
	_ = forecastPromoteCmd.MarkFlagRequired("model")
	forecastSandboxCmd.Flags().StringSliceVar(&fcModels, "models", nil, "models to compare (default: all)")

	forecastAccuracyCmd.Flags().Int64Var(&fcProduct, "product", 0, "product id (default: all)")
	forecastDriftCmd.Flags().Float64Var(&fcThreshold, "threshold", backtest.DefaultDrift.ThresholdPct, "MAPE degradation threshold (%p)")
	forecastDriftCmd.Flags().IntVar(&fcMinPoints, "min-points", backtest.DefaultDrift.MinPoints, "minimum forecasts with actuals")
}

// requestedModel parses --model, nil when empty
func requestedModel(raw string) (*contracts.ModelID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := contracts.ParseModelID(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func runForecastGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	model, err := requestedModel(fcModel)
	if err != nil {
		return err
	}

	res, err := a.forecast.Generate(ctx, forecast.GenerateRequest{
		ProductID:      fcProduct,
		RequestedModel: model,
		Horizon:        fcHorizon,
		UserID:         fcUser,
	})
	if err != nil {
		return err
	}
	if outputJSON {
		return PrintJSON(res)
	}

	PrintHeader(fmt.Sprintf("Forecast · product %d", fcProduct))
	printDiagnostics(res.Diagnostics)
	PrintKeyValue("Audit ID", strconv.FormatInt(res.AuditID, 10), 18)
	fmt.Println()
	printForecastRows(res.Forecasts)
	fmt.Println()
	PrintSuccess(fmt.Sprintf("%d forecasts saved", len(res.Forecasts)))
	return nil
}

func runForecastRecommend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	model, err := requestedModel(fcModel)
	if err != nil {
		return err
	}
	diag, err := a.forecast.Recommend(ctx, fcProduct, model)
	if err != nil {
		return err
	}
	if outputJSON {
		return PrintJSON(diag)
	}

	PrintHeader(fmt.Sprintf("Recommendation · product %d", fcProduct))
	printDiagnostics(*diag)
	fmt.Println()
	printMetrics(diag.CandidateMetrics)
	return nil
}

func runForecastSandbox(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	models := make([]contracts.ModelID, 0, len(fcModels))
	for _, raw := range fcModels {
		id, err := contracts.ParseModelID(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		models = append(models, id)
	}

	res, err := a.forecast.Sandbox(ctx, forecast.SandboxRequest{
		ProductID: fcProduct,
		Horizon:   fcHorizon,
		Models:    models,
	})
	if err != nil {
		return err
	}
	if outputJSON {
		return PrintJSON(res)
	}

	PrintHeader(fmt.Sprintf("Sandbox · product %d · %d months", fcProduct, fcHorizon))
	PrintKeyValue("History", fmt.Sprintf("%d months", res.HistoryMonths), 14)
	if len(res.DataQualityFlags) > 0 {
		PrintKeyValue("Data quality", strings.Join(res.DataQualityFlags, ", "), 14)
	}
	fmt.Println()

	widths := []int{16, 16, 10, 10, 14}
	PrintTableHeader([]string{"Model", "Executed", "MAPE", "Score", "Next period"}, widths)
	for _, opt := range res.Options {
		mape, score, next := "-", "-", "-"
		if opt.Metric != nil {
			mape = strconv.FormatFloat(opt.Metric.MAPE, 'f', 2, 64)
			score = strconv.FormatFloat(opt.Metric.Score, 'f', 2, 64)
		}
		if len(opt.Points) > 0 {
			next = strconv.FormatFloat(opt.Points[0].PredictedQty, 'f', 2, 64)
		}
		PrintTableRow([]string{string(opt.ModelID), string(opt.ExecutedModel), mape, score, next}, widths)
	}

	c := res.Comparison
	fmt.Println()
	PrintKeyValue("Recommended", string(c.RecommendedModel), 14)
	PrintKeyValue("Confidence", strconv.FormatFloat(c.Confidence, 'f', 2, 64), 14)
	PrintKeyValue("Reason", c.Reason, 14)
	if c.ConservativeModel != nil {
		PrintKeyValue("Conservative", string(*c.ConservativeModel), 14)
	}
	if c.AggressiveModel != nil {
		PrintKeyValue("Aggressive", string(*c.AggressiveModel), 14)
	}
	for _, w := range c.Warnings {
		PrintWarning(w)
	}
	return nil
}

func runForecastPromote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	model, err := contracts.ParseModelID(strings.TrimSpace(fcModel))
	if err != nil {
		return err
	}
	res, err := a.forecast.Promote(ctx, forecast.PromoteRequest{
		ProductID: fcProduct,
		Model:     model,
		Horizon:   fcHorizon,
		UserID:    fcUser,
	})
	if err != nil {
		return err
	}
	if outputJSON {
		return PrintJSON(res)
	}

	PrintHeader(fmt.Sprintf("Promote · product %d · %s", fcProduct, model))
	if res.ExecutedModel != res.Model {
		PrintWarning(fmt.Sprintf("strategy degraded: %s -> %s", res.Model, res.ExecutedModel))
	}
	widths := []int{10, 10, 14, 8}
	PrintTableHeader([]string{"Period", "Plan ID", "Forecast", "Version"}, widths)
	for _, p := range res.Plans {
		PrintTableRow([]string{
			formatMonth(p.Period),
			strconv.FormatInt(p.ID, 10),
			p.ForecastQty.StringFixed(2),
			strconv.Itoa(p.Version),
		}, widths)
	}
	fmt.Println()
	PrintSuccess(fmt.Sprintf("%d plans created, %d updated", res.Created, res.Updated))
	return nil
}

func runForecastAccuracy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var product *int64
	if cmd.Flags().Changed("product") {
		product = &fcProduct
	}
	res, err := a.forecast.Accuracy(ctx, product)
	if err != nil {
		return err
	}
	if outputJSON {
		return PrintJSON(res)
	}

	PrintHeader("Forecast Accuracy")
	if len(res.Summary) == 0 {
		PrintInfo("no forecasts with actuals yet")
		return nil
	}
	printAccuracy(res.Summary, false)
	if verbose {
		fmt.Println()
		printAccuracy(res.Reports, true)
	}
	return nil
}

func runForecastDrift(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	alerts, err := a.forecast.DriftAlerts(ctx, backtest.DriftConfig{
		ThresholdPct: fcThreshold,
		MinPoints:    fcMinPoints,
	})
	if err != nil {
		return err
	}
	if outputJSON {
		return PrintJSON(alerts)
	}

	PrintHeader("Accuracy Drift")
	if len(alerts) == 0 {
		PrintSuccess("no drift detected")
		return nil
	}
	widths := []int{8, 16, 10, 10, 10, 8}
	PrintTableHeader([]string{"Product", "Model", "Prior", "Recent", "Δ", "Severity"}, widths)
	for _, al := range alerts {
		PrintTableRow([]string{
			strconv.FormatInt(al.ProductID, 10),
			string(al.ModelID),
			strconv.FormatFloat(al.PreviousMAPE, 'f', 2, 64),
			strconv.FormatFloat(al.RecentMAPE, 'f', 2, 64),
			strconv.FormatFloat(al.DegradationPct, 'f', 2, 64),
			al.Severity,
		}, widths)
	}
	return nil
}

func runForecastAnomalies(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.forecast.DetectAnomalies(ctx, fcProduct)
	if err != nil {
		return err
	}
	if outputJSON {
		return PrintJSON(report)
	}

	PrintHeader(fmt.Sprintf("Anomalies · product %d", fcProduct))
	PrintKeyValue("Mean", strconv.FormatFloat(report.Mean, 'f', 2, 64), 6)
	PrintKeyValue("Std", strconv.FormatFloat(report.Std, 'f', 2, 64), 6)
	fmt.Println()
	if len(report.Anomalies) == 0 {
		PrintSuccess("no anomalies")
		return nil
	}
	widths := []int{10, 12, 8, 8}
	PrintTableHeader([]string{"Period", "Value", "Z", "Severity"}, widths)
	for _, an := range report.Anomalies {
		PrintTableRow([]string{
			formatMonth(an.Period),
			strconv.FormatFloat(an.Value, 'f', 2, 64),
			strconv.FormatFloat(an.ZScore, 'f', 2, 64),
			an.Severity,
		}, widths)
	}
	return nil
}

func printDiagnostics(d contracts.Diagnostics) {
	PrintKeyValue("Selected model", string(d.SelectedModel), 18)
	PrintKeyValue("Executed model", string(d.ExecutedModel), 18)
	PrintKeyValue("Reason", d.SelectionReason, 18)
	PrintKeyValue("Confidence", strconv.FormatFloat(d.AdvisorConfidence, 'f', 2, 64), 18)
	PrintKeyValue("Advisor enabled", strconv.FormatBool(d.AdvisorEnabled), 18)
	PrintKeyValue("Fallback used", strconv.FormatBool(d.FallbackUsed), 18)
	PrintKeyValue("History", fmt.Sprintf("%d months", d.HistoryMonths), 18)
	if len(d.DataQualityFlags) > 0 {
		PrintKeyValue("Data quality", strings.Join(d.DataQualityFlags, ", "), 18)
	}
	for _, w := range d.Warnings {
		PrintWarning(w)
	}
}

func printForecastRows(rows []contracts.Forecast) {
	widths := []int{10, 12, 12, 12, 10}
	PrintTableHeader([]string{"Period", "Predicted", "Lower", "Upper", "Conf"}, widths)
	for _, f := range rows {
		PrintTableRow([]string{
			formatMonth(f.Period),
			strconv.FormatFloat(f.PredictedQty, 'f', 2, 64),
			formatFloat(f.LowerBound),
			formatFloat(f.UpperBound),
			formatFloat(f.Confidence),
		}, widths)
	}
}

func printMetrics(metrics []contracts.BacktestMetric) {
	if len(metrics) == 0 {
		PrintInfo("no candidate could be backtested")
		return
	}
	widths := []int{16, 8, 8, 10, 10, 8, 8}
	PrintTableHeader([]string{"Model", "MAPE", "WAPE", "RMSE", "Bias", "Hit", "Score"}, widths)
	for _, m := range metrics {
		PrintTableRow([]string{
			string(m.ModelID),
			strconv.FormatFloat(m.MAPE, 'f', 2, 64),
			strconv.FormatFloat(m.WAPE, 'f', 2, 64),
			strconv.FormatFloat(m.RMSE, 'f', 2, 64),
			strconv.FormatFloat(m.Bias, 'f', 2, 64),
			strconv.FormatFloat(m.HitRate, 'f', 1, 64),
			strconv.FormatFloat(m.Score, 'f', 2, 64),
		}, widths)
	}
}

func printAccuracy(reports []contracts.AccuracyReport, withProduct bool) {
	columns := []string{"Model", "MAPE", "WAPE", "Bias", "Hit", "Periods"}
	widths := []int{16, 8, 8, 10, 8, 8}
	if withProduct {
		columns = append([]string{"Product"}, columns...)
		widths = append([]int{8}, widths...)
	}
	PrintTableHeader(columns, widths)
	for _, r := range reports {
		row := []string{
			string(r.ModelID),
			strconv.FormatFloat(r.MAPE, 'f', 2, 64),
			strconv.FormatFloat(r.WAPE, 'f', 2, 64),
			strconv.FormatFloat(r.Bias, 'f', 2, 64),
			strconv.FormatFloat(r.HitRate, 'f', 1, 64),
			strconv.Itoa(r.PeriodCount),
		}
		if withProduct {
			row = append([]string{strconv.FormatInt(r.ProductID, 10)}, row...)
		}
		PrintTableRow(row, widths)
	}
}
