package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/internal/jobs"
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "예측 작업 큐 관리",
	Long: `비동기 예측 작업(ForecastJob)을 등록하고 상태를 관리합니다.

작업 실행은 'worker start' 프로세스가 담당합니다 (--wait 제외).

Subcommands:
  enqueue  - 작업 등록
  status   - 작업 상태 조회
  list     - 최근 작업 목록
  cancel   - 작업 취소 (queued/running)
  retry    - 실패/취소 작업 재등록
  metrics  - 큐 지표
  cleanup  - 보존 기간 지난 종료 작업 삭제

Example:
  go run ./cmd/genxsop jobs enqueue --product 1 --horizon 6
  go run ./cmd/genxsop jobs status <job-id>
  go run ./cmd/genxsop jobs cleanup --retention-days 30`,
}

var jobsEnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "작업 등록",
	Long: `예측 작업을 queued 상태로 등록합니다.

--wait를 주면 이 프로세스에서 워커를 띄워 완료까지 기다립니다 (--store memory에 유용).

Example:
  go run ./cmd/genxsop jobs enqueue --product 1 --horizon 6
  go run ./cmd/genxsop jobs enqueue --product 1 --model ewma --wait`,
	RunE: runJobsEnqueue,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "작업 상태 조회",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "최근 작업 목록",
	RunE:  runJobsList,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "작업 취소",
	Long: `queued 또는 running 작업을 취소합니다.

running 작업은 커밋 직전 checkpoint에서 중단되고 결과는 버려집니다.

Example:
  go run ./cmd/genxsop jobs cancel <job-id> --reason "wrong horizon"`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsCancel,
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "실패/취소 작업 재등록",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRetry,
}

var jobsMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "큐 지표",
	RunE:  runJobsMetrics,
}

var jobsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "종료 작업 정리",
	Long: `completed/failed/cancelled 상태이고 보존 기간이 지난 작업을 삭제합니다.
queued/running 작업은 기간과 무관하게 삭제되지 않습니다.

Example:
  go run ./cmd/genxsop jobs cleanup --retention-days 30`,
	RunE: runJobsCleanup,
}

var (
	// Jobs flags
	jobProduct       int64
	jobHorizon       int
	jobModel         string
	jobUser          int64
	jobWait          bool
	jobWaitTimeout   time.Duration
	jobLimit         int
	jobReason        string
	jobRetentionDays int
)

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsEnqueueCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	jobsCmd.AddCommand(jobsRetryCmd)
	jobsCmd.AddCommand(jobsMetricsCmd)
	jobsCmd.AddCommand(jobsCleanupCmd)

	jobsEnqueueCmd.Flags().Int64Var(&jobProduct, "product", 0, "product id")
	_ = jobsEnqueueCmd.MarkFlagRequired("product")
	jobsEnqueueCmd.Flags().IntVar(&jobHorizon, "horizon", 6, "forecast horizon (months)")
	jobsEnqueueCmd.Flags().StringVar(&jobModel, "model", "", "requested model (default: advisor selection)")
	jobsEnqueueCmd.Flags().BoolVar(&jobWait, "wait", false, "run the job in-process and wait for it")
	jobsEnqueueCmd.Flags().DurationVar(&jobWaitTimeout, "timeout", 2*time.Minute, "--wait timeout")

	for _, c := range []*cobra.Command{jobsEnqueueCmd, jobsCleanupCmd} {
		c.Flags().Int64Var(&jobUser, "user", 0, "acting user id")
	}
	jobsListCmd.Flags().IntVar(&jobLimit, "limit", 20, "max rows")
	jobsCancelCmd.Flags().StringVar(&jobReason, "reason", jobs.DefaultCancelReason, "cancel reason")
	jobsCleanupCmd.Flags().IntVar(&jobRetentionDays, "retention-days", 0, "retention window (default: FORECAST_JOB_RETENTION_DAYS)")
}

func runJobsEnqueue(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	model, err := requestedModel(jobModel)
	if err != nil {
		return err
	}

	var stop context.CancelFunc
	if jobWait {
		runCtx, cancel := context.WithCancel(ctx)
		stop = cancel
		a.jobs.Start(runCtx)
	}

	job, err := a.jobs.Enqueue(ctx, jobs.EnqueueRequest{
		ProductID:   jobProduct,
		Horizon:     jobHorizon,
		ModelType:   model,
		RequestedBy: jobUser,
	})
	if err != nil {
		if stop != nil {
			stop()
		}
		return err
	}

	if jobWait {
		job, err = waitForJob(ctx, a.jobs, job.JobID, jobWaitTimeout)
		stop()
		a.jobs.Wait()
		if err != nil {
			return err
		}
	}

	if outputJSON {
		return PrintJSON(job)
	}
	printJob(job)
	return nil
}

// waitForJob polls until the job reaches a terminal status
func waitForJob(ctx context.Context, s jobs.Scheduler, jobID string, timeout time.Duration) (*contracts.ForecastJob, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := s.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, fmt.Errorf("job %s still %s: %w", jobID, job.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.jobs.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if outputJSON {
		return PrintJSON(job)
	}
	printJob(job)
	return nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.jobs.List(ctx, jobLimit)
	if err != nil {
		return err
	}
	if outputJSON {
		return PrintJSON(list)
	}

	PrintHeader("Forecast Jobs")
	if len(list) == 0 {
		PrintInfo("no jobs")
		return nil
	}
	widths := []int{36, 10, 8, 8, 16, 19}
	PrintTableHeader([]string{"Job ID", "Status", "Product", "Horizon", "Model", "Created"}, widths)
	for _, j := range list {
		model := "auto"
		if j.ModelType != nil {
			model = string(*j.ModelType)
		}
		created := j.CreatedAt
		PrintTableRow([]string{
			j.JobID,
			string(j.Status),
			strconv.FormatInt(j.ProductID, 10),
			strconv.Itoa(j.HorizonMonths),
			model,
			formatTime(&created),
		}, widths)
	}
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.jobs.Cancel(ctx, args[0], jobReason)
	if err != nil {
		return err
	}
	if outputJSON {
		return PrintJSON(job)
	}
	printJob(job)
	return nil
}

func runJobsRetry(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.jobs.Retry(ctx, args[0])
	if err != nil {
		return err
	}
	if outputJSON {
		return PrintJSON(job)
	}
	PrintSuccess(fmt.Sprintf("job %s re-enqueued as %s", args[0], job.JobID))
	printJob(job)
	return nil
}

func runJobsMetrics(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.jobs.Metrics(ctx)
	if err != nil {
		return err
	}
	if outputJSON {
		return PrintJSON(m)
	}

	PrintHeader("Job Queue Metrics")
	statuses := make([]string, 0, len(m.StatusCounts))
	for st := range m.StatusCounts {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		PrintKeyValue(st, strconv.FormatInt(m.StatusCounts[contracts.JobStatus(st)], 10), 22)
	}
	PrintKeyValue("Total", strconv.FormatInt(m.TotalJobs, 10), 22)
	PrintKeyValue("Avg processing (s)", formatFloat(m.AvgProcessingSeconds), 22)
	PrintKeyValue("Failed last 24h", strconv.FormatInt(m.FailedLast24h, 10), 22)
	PrintKeyValue("Oldest queued age (s)", formatFloat(m.OldestQueuedAgeSeconds), 22)
	return nil
}

func runJobsCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	days := jobRetentionDays
	if !cmd.Flags().Changed("retention-days") {
		days = a.cfg.Jobs.RetentionDays
	}
	summary, err := a.jobs.Cleanup(ctx, days, jobUser)
	if err != nil {
		return err
	}
	if outputJSON {
		return PrintJSON(summary)
	}
	cutoff := summary.Cutoff
	PrintSuccess(fmt.Sprintf("%d jobs deleted (retention %d days, cutoff %s)",
		summary.DeletedCount, summary.RetentionDays, formatTime(&cutoff)))
	return nil
}

func printJob(j *contracts.ForecastJob) {
	PrintHeader("Forecast Job " + j.JobID)
	model := "auto"
	if j.ModelType != nil {
		model = string(*j.ModelType)
	}
	created := j.CreatedAt
	PrintKeyValue("Status", string(j.Status), 12)
	PrintKeyValue("Product", strconv.FormatInt(j.ProductID, 10), 12)
	PrintKeyValue("Horizon", strconv.Itoa(j.HorizonMonths), 12)
	PrintKeyValue("Model", model, 12)
	PrintKeyValue("Created", formatTime(&created), 12)
	PrintKeyValue("Started", formatTime(j.StartedAt), 12)
	PrintKeyValue("Completed", formatTime(j.CompletedAt), 12)
	if j.Error != nil {
		PrintError(*j.Error)
	}
	if len(j.Result) > 0 && verbose {
		fmt.Println(string(j.Result))
	}
}
