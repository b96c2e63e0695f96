package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
)

// Reportes de las proyecciones para el REPL.

// PrintConnection imprime el estado de la conexión en una línea.
func (c *Console) PrintConnection(st domain.ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", time.Now().Format("15:04:05"), st.Status)
	if st.ReconnectAttempt > 0 {
		fmt.Fprintf(&sb, " attempt=%d", st.ReconnectAttempt)
	}
	if !st.ConnectedAt.IsZero() {
		fmt.Fprintf(&sb, " since=%s", st.ConnectedAt.Format("15:04:05"))
	}
	if st.Stale {
		sb.WriteString(" (cached state)")
	}
	if st.Fatal {
		sb.WriteString(" | reconnect attempts exhausted, use: connect")
	}
	if st.LastError != nil {
		fmt.Fprintf(&sb, "\n  !! %s", st.LastError)
	}
	if st.ServerError != nil {
		fmt.Fprintf(&sb, "\n  >> engine: %s", st.ServerError.Error())
	}
	fmt.Fprintln(c.out, sb.String())
}

// PrintSummary imprime cuenta y backtest.
func (c *Console) PrintSummary(acct domain.Account, bt domain.BacktestStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n  --- BACKTEST ---\n")
	fmt.Fprintf(c.out, "  State:      %s\n", orDash(string(bt.State)))
	fmt.Fprintf(c.out, "  Progress:   %.1f%%\n", bt.Progress*100)
	if bt.CurrentTime > 0 {
		fmt.Fprintf(c.out, "  Sim time:   %s\n", time.UnixMilli(bt.CurrentTime).UTC().Format("2006-01-02 15:04"))
	}
	if bt.Message != "" {
		fmt.Fprintf(c.out, "  Message:    %s\n", bt.Message)
	}

	fmt.Fprintf(c.out, "\n  --- ACCOUNT ---\n")
	fmt.Fprintf(c.out, "  Balance:    %s\n", money(acct.Balance))
	fmt.Fprintf(c.out, "  Equity:     %s\n", money(acct.Equity))
	fmt.Fprintf(c.out, "  Available:  %s\n", money(acct.Available))
	fmt.Fprintf(c.out, "  Margin:     %s\n", money(acct.Margin))
	fmt.Fprintf(c.out, "  Unrealized: %s\n", money(acct.UnrealizedPnL))
	fmt.Fprintf(c.out, "  Realized:   %s\n\n", money(acct.RealizedPnL))
}

// PrintPositions imprime la tabla de posiciones abiertas.
func (c *Console) PrintPositions(positions []domain.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(positions) == 0 {
		fmt.Fprintln(c.out, "  No open positions.")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Symbol", "Side", "Qty", "Avg", "Mkt", "Value", "uPnL", "rPnL")

	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.UnrealizedPnL)
		table.Append(
			p.Symbol,
			string(p.Side),
			p.Quantity.String(),
			p.AvgPrice.StringFixed(4),
			p.MarketPrice.StringFixed(4),
			money(p.MarketValue()),
			money(p.UnrealizedPnL),
			money(p.RealizedPnL),
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "  %d positions | unrealized %s\n", len(positions), money(total))
}

// PrintStrategies imprime las instancias de estrategia.
func (c *Console) PrintStrategies(strategies []domain.StrategyInstance) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(strategies) == 0 {
		fmt.Fprintln(c.out, "  No strategies loaded.")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Name", "Status", "Params", "Error")
	for _, s := range strategies {
		table.Append(s.StrategyID, s.Name, string(s.Status), formatParams(s.Params), truncate(s.ErrorMessage, 40))
	}
	table.Render()
}

// PrintTrades imprime los últimos n trades, el más reciente primero.
func (c *Console) PrintTrades(trades []domain.Trade, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(trades) == 0 {
		fmt.Fprintln(c.out, "  No trades yet.")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Symbol", "Side", "Qty", "Price", "Notional", "Fee", "Order")
	for i := len(trades) - 1; i >= 0 && len(trades)-i <= n; i-- {
		t := trades[i]
		table.Append(
			t.Time().UTC().Format("01-02 15:04:05"),
			t.Symbol,
			string(t.Side),
			t.Quantity.String(),
			t.Price.StringFixed(4),
			money(t.Notional()),
			money(t.Commission),
			t.OrderID,
		)
	}
	table.Render()
}

// PrintAlerts imprime las alertas pendientes y el historial reciente.
func (c *Console) PrintAlerts(pending, history []domain.Alert, blockingID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n  --- PENDING (%d) ---\n", len(pending))
	for _, a := range pending {
		mark := " "
		if a.AlertID == blockingID {
			mark = ">"
		}
		fmt.Fprintf(c.out, "  %s %-10s %-5s %s  [%s]\n", mark, severityTag(a.Severity), a.AlertType, truncate(a.Title, 40), a.AlertID)
	}

	if len(history) == 0 {
		fmt.Fprintln(c.out)
		return
	}
	fmt.Fprintf(c.out, "\n  --- HISTORY ---\n")
	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Sev", "Type", "Title", "Ack")
	for _, a := range history {
		ack := "-"
		if a.Acknowledged {
			ack = "yes"
		}
		table.Append(a.Time().Format("15:04:05"), string(a.Severity), string(a.AlertType), truncate(a.Title, 40), ack)
	}
	table.Render()
	fmt.Fprintln(c.out)
}

// Printf escribe una línea libre, serializada con el resto de la salida.
func (c *Console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// --- helpers ---

func money(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatParams(params map[string]any) string {
	if len(params) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return truncate(strings.Join(parts, " "), 48)
}
