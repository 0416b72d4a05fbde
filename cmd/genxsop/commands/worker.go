package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/genxsop/backend/internal/scheduler"
	"github.com/wonny/genxsop/backend/pkg/metrics"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "백그라운드 워커",
	Long: `큐 기반 예측 작업과 유지보수 cron을 처리하는 워커입니다.

이 워커는:
- job 테이블의 queued 작업을 가져와 실행 (CAS claim, 중복 실행 없음)
- 보존 기간 지난 종료 작업 정리 (cron)
- 오래 대기 중인 큐 감시 (cron)
- /healthz, /metrics ops 서버
- Graceful shutdown 지원

Example:
  go run ./cmd/genxsop worker start
  go run ./cmd/genxsop worker start --concurrency 4`,
}

// workerStartCmd represents the start subcommand
var workerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "워커 시작",
	Long: `job pool, maintenance scheduler, ops 서버를 시작합니다.

Features:
- 동시 실행 작업 수 제어 (--concurrency)
- Graceful shutdown (Ctrl+C): 실행 중인 작업은 끝까지 처리
- cron 비활성화 (--no-cron)

Example:
  go run ./cmd/genxsop worker start
  go run ./cmd/genxsop worker start --concurrency 10 --stale-after 15m`,
	RunE: runWorkerStart,
}

// workerMaintenanceCmd runs one maintenance job immediately
var workerMaintenanceCmd = &cobra.Command{
	Use:   "run-maintenance <job>",
	Short: "유지보수 작업 즉시 실행",
	Long: `등록된 유지보수 작업을 스케줄과 무관하게 한 번 실행합니다 (재시도 포함).

Jobs:
  job_retention_cleanup
  queue_health

Example:
  go run ./cmd/genxsop worker run-maintenance job_retention_cleanup`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkerMaintenance,
}

var (
	// Worker flags
	workerConcurrency int
	workerNoCron      bool
	workerStaleAfter  time.Duration
)

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.AddCommand(workerStartCmd)
	workerCmd.AddCommand(workerMaintenanceCmd)

	// Flags
	workerStartCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "동시 실행 작업 수 (default: FORECAST_JOB_WORKERS)")
	workerStartCmd.Flags().BoolVar(&workerNoCron, "no-cron", false, "유지보수 cron 비활성화")
	for _, c := range []*cobra.Command{workerStartCmd, workerMaintenanceCmd} {
		c.Flags().DurationVar(&workerStaleAfter, "stale-after", 30*time.Minute, "queued 작업 경고 기준")
	}
}

// newMaintenance registers the cron jobs against the app's pool
func newMaintenance(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log)
	jobsToAdd := []scheduler.Job{
		scheduler.NewRetentionCleanupJob(a.jobs, a.cfg.Jobs.RetentionDays, a.cfg.Jobs.CleanupCron, a.log),
		scheduler.NewQueueHealthJob(a.jobs, workerStaleAfter, a.log),
	}
	for _, job := range jobsToAdd {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func runWorkerStart(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("concurrency") && workerConcurrency < 1 {
		return fmt.Errorf("--concurrency must be >= 1")
	}
	if workerConcurrency > 0 {
		if err := os.Setenv("FORECAST_JOB_WORKERS", strconv.Itoa(workerConcurrency)); err != nil {
			return err
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("=== GenXSOP Forecast Worker ===")
	fmt.Println()
	fmt.Printf("Concurrency: %d workers\n", a.cfg.Jobs.Workers)
	fmt.Printf("Store: %s\n", storeBackend)
	fmt.Printf("Events: %s\n\n", a.cfg.Events.Backend)

	var ops *metrics.Server
	if a.cfg.MetricsEnabled {
		ops = metrics.NewServer(a.cfg.MetricsPort, a.metrics, a.health, a.log)
		go func() {
			if err := ops.Start(); err != nil {
				a.log.WithError(err).Error("Ops server stopped")
			}
		}()
	}

	var sched *scheduler.Scheduler
	if !workerNoCron {
		if sched, err = newMaintenance(a); err != nil {
			return err
		}
		sched.Start()
	}

	a.jobs.Start(ctx)

	fmt.Println("🚀 Worker started")
	fmt.Println("   Press Ctrl+C to stop gracefully")
	fmt.Println()

	<-ctx.Done()
	fmt.Println()
	fmt.Println("⚠️  Shutdown signal received")
	fmt.Println("   Waiting for in-flight jobs to complete...")

	a.jobs.Wait()
	if sched != nil {
		sched.Stop()
	}
	if ops != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ops.Shutdown(shutdownCtx); err != nil {
			a.log.WithError(err).Warn("Ops server shutdown failed")
		}
	}

	PrintSuccess("Worker stopped gracefully")
	return nil
}

func runWorkerMaintenance(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newMaintenance(a)
	if err != nil {
		return err
	}
	res, err := sched.RunNow(ctx, args[0])
	if err != nil {
		return err
	}
	if outputJSON {
		return PrintJSON(res)
	}

	PrintHeader("Maintenance · " + res.JobName)
	PrintKeyValue("Attempts", strconv.Itoa(res.Attempts), 10)
	PrintKeyValue("Duration", res.Duration.String(), 10)
	if !res.Success {
		PrintError(res.Error)
		return fmt.Errorf("%s failed after %d attempts", res.JobName, res.Attempts)
	}
	PrintSuccess(res.JobName + " completed")
	return nil
}
