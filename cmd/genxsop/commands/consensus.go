package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wonny/genxsop/backend/internal/consensus"
	"github.com/wonny/genxsop/backend/internal/contracts"
)

// consensusCmd represents the consensus command
var consensusCmd = &cobra.Command{
	Use:   "consensus",
	Short: "S&OP 컨센서스 관리",
	Long: `baseline에 영업/마케팅/재무 조정과 capacity cap을 적용한 컨센서스 수량을 관리합니다.

상태: draft ⇄ proposed → approved → frozen
승인 시 같은 트랜잭션에서 demand plan의 consensus_qty가 갱신됩니다.

Example:
  go run ./cmd/genxsop consensus create --product 1 --period 2025-01 --baseline 1000 --sales 50 --marketing 100 --finance -20 --cap 1080
  go run ./cmd/genxsop consensus approve 12 --approver 7 --note "S&OP board"
  go run ./cmd/genxsop consensus list --product 1`,
}

var consensusCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "컨센서스 생성",
	RunE:  runConsensusCreate,
}

var consensusUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "컨센서스 수정 (draft/proposed만)",
	Long: `전달한 필드만 수정하고 pre/final 수량을 다시 계산합니다.

--expected-version을 주면 optimistic lock으로 검사합니다.

Example:
  go run ./cmd/genxsop consensus update 12 --sales 80 --expected-version 1
  go run ./cmd/genxsop consensus update 12 --clear-cap --status proposed`,
	Args: cobra.ExactArgs(1),
	RunE: runConsensusUpdate,
}

var consensusApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "컨센서스 승인 (demand plan write-through)",
	Args:  cobra.ExactArgs(1),
	RunE:  runConsensusApprove,
}

var consensusFreezeCmd = &cobra.Command{
	Use:   "freeze <id>",
	Short: "승인된 컨센서스 동결",
	Args:  cobra.ExactArgs(1),
	RunE:  runConsensusFreeze,
}

var consensusNoteCmd = &cobra.Command{
	Use:   "note <id> <text>",
	Short: "메모 추가",
	Args:  cobra.ExactArgs(2),
	RunE:  runConsensusNote,
}

var consensusGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "컨센서스 조회",
	Args:  cobra.ExactArgs(1),
	RunE:  runConsensusGet,
}

var consensusListCmd = &cobra.Command{
	Use:   "list",
	Short: "컨센서스 목록",
	RunE:  runConsensusList,
}

var (
	// Consensus flags
	csProduct         int64
	csPeriod          string
	csAuditRef        int64
	csBaseline        string
	csSales           string
	csMarketing       string
	csFinance         string
	csCap             string
	csClearCap        bool
	csStatus          string
	csNote            string
	csUser            int64
	csApprover        int64
	csExpectedVersion int
)

func init() {
	rootCmd.AddCommand(consensusCmd)
	consensusCmd.AddCommand(consensusCreateCmd)
	consensusCmd.AddCommand(consensusUpdateCmd)
	consensusCmd.AddCommand(consensusApproveCmd)
	consensusCmd.AddCommand(consensusFreezeCmd)
	consensusCmd.AddCommand(consensusNoteCmd)
	consensusCmd.AddCommand(consensusGetCmd)
	consensusCmd.AddCommand(consensusListCmd)

	create := consensusCreateCmd.Flags()
	create.Int64Var(&csProduct, "product", 0, "product id")
	create.StringVar(&csPeriod, "period", "", "period (YYYY-MM)")
	create.Int64Var(&csAuditRef, "audit", 0, "forecast run audit id")
	create.StringVar(&csStatus, "status", "", "draft|proposed (default draft)")
	create.StringVar(&csNote, "note", "", "initial notes")
	create.Int64Var(&csUser, "user", 0, "acting user id")

	update := consensusUpdateCmd.Flags()
	update.StringVar(&csStatus, "status", "", "draft|proposed")
	update.StringVar(&csNote, "note", "", "replace notes")
	update.BoolVar(&csClearCap, "clear-cap", false, "remove the constraint cap")

	for _, fs := range []*pflag.FlagSet{create, update} {
		fs.StringVar(&csBaseline, "baseline", "", "baseline quantity")
		fs.StringVar(&csSales, "sales", "", "sales override")
		fs.StringVar(&csMarketing, "marketing", "", "marketing uplift")
		fs.StringVar(&csFinance, "finance", "", "finance adjustment")
		fs.StringVar(&csCap, "cap", "", "constraint cap")
	}
	_ = consensusCreateCmd.MarkFlagRequired("product")
	_ = consensusCreateCmd.MarkFlagRequired("period")
	_ = consensusCreateCmd.MarkFlagRequired("baseline")

	consensusApproveCmd.Flags().Int64Var(&csApprover, "approver", 0, "approver user id")
	consensusApproveCmd.Flags().StringVar(&csNote, "note", "", "approval note")
	for _, c := range []*cobra.Command{consensusUpdateCmd, consensusApproveCmd, consensusFreezeCmd, consensusNoteCmd} {
		c.Flags().IntVar(&csExpectedVersion, "expected-version", 0, "optimistic lock version")
	}

	list := consensusListCmd.Flags()
	list.Int64Var(&csProduct, "product", 0, "product id")
	list.StringVar(&csStatus, "status", "", "status filter")
	list.StringVar(&csPeriod, "period", "", "period (YYYY-MM)")
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", raw, err)
	}
	return id, nil
}

func parsePeriod(raw string) (time.Time, error) {
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid period %q (YYYY-MM): %w", raw, err)
	}
	return t, nil
}

// decimalFlag returns nil when the flag was not set
func decimalFlag(cmd *cobra.Command, name, raw string) (*decimal.Decimal, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	return &d, nil
}

// expectedVersion returns nil when --expected-version was not set
func expectedVersion(cmd *cobra.Command) *int {
	if !cmd.Flags().Changed("expected-version") {
		return nil
	}
	v := csExpectedVersion
	return &v
}

func runConsensusCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	period, err := parsePeriod(csPeriod)
	if err != nil {
		return err
	}
	req := consensus.CreateRequest{
		ProductID: csProduct,
		Period:    period,
		Status:    contracts.ConsensusStatus(csStatus),
		CreatedBy: csUser,
	}
	if cmd.Flags().Changed("audit") {
		req.RunAuditRef = &csAuditRef
	}
	if csNote != "" {
		req.Notes = &csNote
	}

	quantities := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"baseline", csBaseline, &req.BaselineQty},
		{"sales", csSales, &req.SalesOverrideQty},
		{"marketing", csMarketing, &req.MarketingUpliftQty},
		{"finance", csFinance, &req.FinanceAdjustmentQty},
	}
	for _, q := range quantities {
		d, err := decimalFlag(cmd, q.name, q.raw)
		if err != nil {
			return err
		}
		if d != nil {
			*q.dst = *d
		}
	}
	if req.ConstraintCapQty, err = decimalFlag(cmd, "cap", csCap); err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.consensus.Create(ctx, req)
	if err != nil {
		return err
	}
	return printConsensus(rec)
}

func runConsensusUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	req := consensus.UpdateRequest{ID: id, ExpectedVersion: expectedVersion(cmd)}
	if req.BaselineQty, err = decimalFlag(cmd, "baseline", csBaseline); err != nil {
		return err
	}
	if req.SalesOverrideQty, err = decimalFlag(cmd, "sales", csSales); err != nil {
		return err
	}
	if req.MarketingUpliftQty, err = decimalFlag(cmd, "marketing", csMarketing); err != nil {
		return err
	}
	if req.FinanceAdjustmentQty, err = decimalFlag(cmd, "finance", csFinance); err != nil {
		return err
	}

	switch {
	case csClearCap:
		req.ConstraintCapQty = &decimal.NullDecimal{}
	default:
		c, err := decimalFlag(cmd, "cap", csCap)
		if err != nil {
			return err
		}
		if c != nil {
			req.ConstraintCapQty = &decimal.NullDecimal{Decimal: *c, Valid: true}
		}
	}
	if cmd.Flags().Changed("status") {
		st := contracts.ConsensusStatus(csStatus)
		req.Status = &st
	}
	if cmd.Flags().Changed("note") {
		req.Notes = &csNote
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.consensus.Update(ctx, req)
	if err != nil {
		return err
	}
	return printConsensus(rec)
}

func runConsensusApprove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.consensus.Approve(ctx, consensus.ApproveRequest{
		ID:              id,
		ExpectedVersion: expectedVersion(cmd),
		ApproverID:      csApprover,
		Notes:           csNote,
	})
	if err != nil {
		return err
	}
	if !outputJSON {
		PrintSuccess(fmt.Sprintf("consensus %d approved, demand plan updated", rec.ID))
	}
	return printConsensus(rec)
}

func runConsensusFreeze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.consensus.Freeze(ctx, id, expectedVersion(cmd))
	if err != nil {
		return err
	}
	return printConsensus(rec)
}

func runConsensusNote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.consensus.AppendNote(ctx, id, args[1], expectedVersion(cmd))
	if err != nil {
		return err
	}
	return printConsensus(rec)
}

func runConsensusGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.consensus.Get(ctx, id)
	if err != nil {
		return err
	}
	return printConsensus(rec)
}

func runConsensusList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var filter contracts.ConsensusFilter
	if cmd.Flags().Changed("product") {
		filter.ProductID = &csProduct
	}
	if csStatus != "" {
		st := contracts.ConsensusStatus(csStatus)
		filter.Status = &st
	}
	if csPeriod != "" {
		p, err := parsePeriod(csPeriod)
		if err != nil {
			return err
		}
		filter.Period = &p
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.consensus.List(ctx, filter)
	if err != nil {
		return err
	}
	if outputJSON {
		return PrintJSON(list)
	}

	PrintHeader("Consensus Records")
	if len(list) == 0 {
		PrintInfo("no records")
		return nil
	}
	widths := []int{6, 8, 8, 10, 12, 12, 4}
	PrintTableHeader([]string{"ID", "Product", "Period", "Status", "Pre", "Final", "Ver"}, widths)
	for _, r := range list {
		PrintTableRow([]string{
			strconv.FormatInt(r.ID, 10),
			strconv.FormatInt(r.ProductID, 10),
			formatMonth(r.Period),
			string(r.Status),
			r.PreConsensusQty.StringFixed(2),
			r.FinalConsensusQty.StringFixed(2),
			strconv.Itoa(r.Version),
		}, widths)
	}
	return nil
}

func printConsensus(r *contracts.ConsensusRecord) error {
	if outputJSON {
		return PrintJSON(r)
	}

	PrintHeader(fmt.Sprintf("Consensus #%d · product %d · %s", r.ID, r.ProductID, formatMonth(r.Period)))
	capQty := "-"
	if r.ConstraintCapQty != nil {
		capQty = r.ConstraintCapQty.StringFixed(2)
	}
	PrintKeyValue("Status", string(r.Status), 12)
	PrintKeyValue("Version", strconv.Itoa(r.Version), 12)
	PrintKeyValue("Baseline", r.BaselineQty.StringFixed(2), 12)
	PrintKeyValue("Sales", r.SalesOverrideQty.StringFixed(2), 12)
	PrintKeyValue("Marketing", r.MarketingUpliftQty.StringFixed(2), 12)
	PrintKeyValue("Finance", r.FinanceAdjustmentQty.StringFixed(2), 12)
	PrintKeyValue("Cap", capQty, 12)
	PrintKeyValue("Pre", r.PreConsensusQty.StringFixed(2), 12)
	PrintKeyValue("Final", r.FinalConsensusQty.StringFixed(2), 12)
	PrintKeyValue("Approved at", formatTime(r.ApprovedAt), 12)
	PrintKeyValue("Notes", formatString(r.Notes), 12)
	return nil
}
