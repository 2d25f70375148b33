package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/attention/internal/domain"
	"github.com/alejandrodnm/attention/internal/ports"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
	now   func() time.Time
}

var _ ports.Notifier = (*Console)(nil)

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return NewConsoleWriter(os.Stdout, table)
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table, now: time.Now}
}

// SetClock reemplaza el reloj usado para el tiempo restante.
func (c *Console) SetClock(now func() time.Time) { c.now = now }

// NotifyEvents imprime el estado de los mercados en el modo configurado.
func (c *Console) NotifyEvents(_ context.Context, events []domain.Event) error {
	now := c.now()
	if len(events) == 0 {
		fmt.Fprintf(c.out, "[%s] no open markets\n", now.Format("15:04:05"))
		return nil
	}
	if c.table {
		c.printTable(events, now)
	} else {
		c.printCompact(events, now)
	}
	return nil
}

// printCompact imprime una línea por ciclo con los primeros mercados.
func (c *Console) printCompact(events []domain.Event, now time.Time) {
	open, resolved := countByStatus(events)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d open %d resolved", now.Format("15:04:05"), open, resolved)
	for i, ev := range events {
		if i >= 4 {
			fmt.Fprintf(&sb, " | +%d more", len(events)-i)
			break
		}
		fmt.Fprintf(&sb, " | %s %.1f→%.1f %s", compactName(ev.Name, 25), ev.IndexStart, ev.IndexCurrent, stateLabel(ev, now))
	}
	fmt.Fprintln(c.out, sb.String())
}

// printTable imprime la tabla completa de mercados.
func (c *Console) printTable(events []domain.Event, now time.Time) {
	open, resolved := countByStatus(events)
	fmt.Fprintf(c.out, "\n[%s] %d markets, open:%d resolved:%d\n", now.Format("15:04:05"), len(events), open, resolved)

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Type", "Status", "Start", "Now", "Up", "Down", "Left", "Result")
	for i, ev := range events {
		table.Append(
			fmt.Sprintf("%d", i+1),
			truncate(ev.Name, 32),
			string(ev.MarketType),
			string(ev.Status),
			fmt.Sprintf("%.2f", ev.IndexStart),
			fmt.Sprintf("%.2f", ev.IndexCurrent),
			fmt.Sprintf("%.3f", ev.PriceUp),
			fmt.Sprintf("%.3f", ev.PriceDown),
			remainingLabel(ev, now),
			resultLabel(ev),
		)
	}
	table.Render()

	for _, ev := range events {
		if ev.Explanation != "" {
			fmt.Fprintf(c.out, "  %s: %s\n", truncate(ev.Name, 32), ev.Explanation)
		}
	}
}

// --- helpers ---

func countByStatus(events []domain.Event) (open, resolved int) {
	for _, ev := range events {
		switch ev.Status {
		case domain.StatusOpen:
			open++
		case domain.StatusResolved:
			resolved++
		}
	}
	return
}

func stateLabel(ev domain.Event, now time.Time) string {
	if ev.Status == domain.StatusResolved {
		return strings.ToUpper(string(ev.Resolution))
	}
	return remainingLabel(ev, now)
}

func remainingLabel(ev domain.Event, now time.Time) string {
	if ev.Status != domain.StatusOpen {
		return "-"
	}
	left := ev.Remaining(now)
	if left == 0 {
		return "closing"
	}
	if left >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(left.Hours()), int(left.Minutes())%60)
	}
	return fmt.Sprintf("%dm%02ds", int(left.Minutes()), int(left.Seconds())%60)
}

func resultLabel(ev domain.Event) string {
	switch ev.Status {
	case domain.StatusResolved:
		return strings.ToUpper(string(ev.Resolution))
	case domain.StatusRejected:
		return truncate(ev.RejectReason, 40)
	}
	return "-"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndex(cut, " "); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
