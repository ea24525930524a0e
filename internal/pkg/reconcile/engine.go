package reconcile

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/obafemi/settlecore/app/models"
	"github.com/obafemi/settlecore/app/repository"
	"github.com/obafemi/settlecore/internal/pkg/gateway"
	"github.com/obafemi/settlecore/internal/pkg/reportstore"
)

// Engine runs one reconciliation pass over a time window. The run is
// read-only against the ledger; discrepancies are reported, never repaired
// automatically.
type Engine struct {
	reader  *repository.Repositories
	gw      gateway.Gateway
	reports reportstore.Store
}

// NewEngine wires a reconciliation engine.
func NewEngine(reader *repository.Repositories, gw gateway.Gateway, reports reportstore.Store) *Engine {
	return &Engine{reader: reader, gw: gw, reports: reports}
}

// RunResult is the outcome of one reconciliation pass.
type RunResult struct {
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	Rows           []Row     `json:"-"`
	Summary        Summary   `json:"summary"`
	ReportLocation string    `json:"report_location"`
}

// Run reconciles the window [from, to). A failed gateway export aborts the
// run; a partial comparison would report false discrepancies.
func (e *Engine) Run(ctx context.Context, from, to time.Time) (*RunResult, error) {
	locals, err := e.reader.Payment.ListCreatedBetween(from, to)
	if err != nil {
		return nil, err
	}

	remote, err := e.gw.ExportTransactions(ctx, from, to, "")
	if err != nil {
		return nil, fmt.Errorf("gateway export failed, run aborted: %w", err)
	}

	orderNumbers := map[uint]string{}
	for _, p := range locals {
		if _, ok := orderNumbers[p.OrderID]; ok {
			continue
		}
		order, err := e.reader.Order.GetByID(p.OrderID)
		if err != nil {
			return nil, err
		}
		orderNumbers[p.OrderID] = order.OrderNumber
	}

	rows, summary := Classify(locals, remote, orderNumbers)

	report, err := renderCSV(rows)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("reconciliation-%s-%s.csv", from.Format("20060102"), to.Format("20060102"))
	location, err := e.reports.Save(ctx, name, report)
	if err != nil {
		return nil, err
	}

	change, _ := json.Marshal(map[string]interface{}{
		"from":               from.Format(time.RFC3339),
		"to":                 to.Format(time.RFC3339),
		"matched":            summary.Matched,
		"amount_mismatched":  summary.Mismatched,
		"missing_in_gateway": summary.MissingInGateway,
		"missing_in_local":   summary.MissingInLocal,
		"report_location":    location,
	})
	if err := e.reader.Audit.Append(&models.AuditLogEntry{
		Actor:             "reconciliation",
		Action:            models.AuditActionReconciliationRun,
		EntityType:        "reconciliation",
		EntityID:          name,
		ChangePayloadJSON: string(change),
	}); err != nil {
		return nil, err
	}

	if n := summary.Discrepancies(); n > 0 {
		log.Warnf("[Reconcile] %d discrepancies found, report at %s", n, location)
	} else {
		log.Infof("[Reconcile] ledger clean for %s to %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	return &RunResult{From: from, To: to, Rows: rows, Summary: summary, ReportLocation: location}, nil
}

func renderCSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Type", "Reference", "Order Number", "Issue", "Local Amount", "Gateway Amount", "Difference", "Status"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		local, gw := "", ""
		if row.LocalAmount != nil {
			local = row.LocalAmount.StringFixed(2)
		}
		if row.GatewayAmount != nil {
			gw = row.GatewayAmount.StringFixed(2)
		}
		if err := w.Write([]string{
			row.Type,
			row.Reference,
			row.OrderNumber,
			row.Issue,
			local,
			gw,
			row.Difference.StringFixed(2),
			row.Status,
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
