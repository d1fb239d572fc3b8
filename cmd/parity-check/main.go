package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/payconnector/internal/app"
	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/service/parity"
	"github.com/vladislavdragonenkov/payconnector/internal/version"
)

type checkFlags struct {
	resourceType string
	startID      int64
	maxID        int64
	parityStatus string
	skipValid    bool
	drainTimeout time.Duration
}

// runCheck подменяется в тестах.
var runCheck = app.RunParityCheck

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := checkFlags{}

	cmd := &cobra.Command{
		Use:   "parity-check",
		Short: "Сверка платежей и возвратов с ledger",
		Long: `Разовый прогон сверки поверх хранилища коннектора.
Конфигурация хранилища, ledger, Kafka и Redis берётся из переменных CONNECTOR_*.
Без --resource-type выполняются запросы периодического прогона.`,
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			requests, err := buildRequests(flags)
			if err != nil {
				return err
			}

			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
				log.SetLevel(level)
			}

			results, err := runCheck(cmd.Context(), cfg, flags.drainTimeout, requests...)
			printResults(cmd.OutOrStdout(), results)
			return err
		},
	}

	cmd.Flags().StringVarP(&flags.resourceType, "resource-type", "r", "", "payment|refund (empty: scheduled requests)")
	cmd.Flags().Int64Var(&flags.startID, "start-id", 0, "first record id")
	cmd.Flags().Int64Var(&flags.maxID, "max-id", 0, "last record id (0: no upper bound)")
	cmd.Flags().StringVarP(&flags.parityStatus, "parity-status", "s", "", "select records by previous parity status instead of id range")
	cmd.Flags().BoolVar(&flags.skipValid, "skip-valid", false, "do not recheck records that already exist in ledger")
	cmd.Flags().DurationVar(&flags.drainTimeout, "drain-timeout", app.DefaultDrainTimeout, "time to publish reoffered events")

	return cmd
}

func buildRequests(flags checkFlags) ([]parity.Request, error) {
	resourceType := strings.ToLower(strings.TrimSpace(flags.resourceType))
	if resourceType == "" {
		if flags.parityStatus != "" || flags.startID != 0 || flags.maxID != 0 {
			return nil, fmt.Errorf("--resource-type is required with --start-id, --max-id or --parity-status")
		}
		return nil, nil
	}

	req := parity.Request{
		ResourceType:               domain.ResourceType(resourceType),
		StartID:                    flags.startID,
		MaxID:                      flags.maxID,
		DoNotReprocessValidRecords: flags.skipValid,
	}
	switch req.ResourceType {
	case domain.ResourceTypePayment, domain.ResourceTypeRefund:
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownResourceType, flags.resourceType)
	}

	if raw := strings.ToUpper(strings.TrimSpace(flags.parityStatus)); raw != "" {
		status, err := domain.ParseParityCheckStatus(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, flags.parityStatus)
		}
		req.ParityStatus = status
	}
	if req.MaxID != 0 && req.MaxID < req.StartID {
		return nil, fmt.Errorf("--max-id must be >= --start-id")
	}

	return []parity.Request{req}, nil
}

func printResults(out io.Writer, results []parity.Result) {
	if len(results) == 0 {
		_, _ = fmt.Fprintln(out, "no parity runs")
		return
	}

	_, _ = fmt.Fprintf(out, "%-8s %9s %7s %6s %10s %7s %12s %9s %8s\n",
		"TYPE", "PROCESSED", "SKIPPED", "EXISTS", "MISMATCHED", "MISSING", "INCONCLUSIVE", "REOFFERED", "LAST_ID")
	for _, r := range results {
		_, _ = fmt.Fprintf(out, "%-8s %9d %7d %6d %10d %7d %12d %9d %8d\n",
			r.ResourceType, r.Processed, r.Skipped, r.Exists, r.Mismatched, r.Missing, r.Inconclusive, r.Reoffered, r.LastProcessedID)
	}
}
