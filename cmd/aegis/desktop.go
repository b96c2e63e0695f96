package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/config"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/adapters/desktop"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/application/session"
)

// runDesktop abre la ventana fyne; bloquea en el hilo principal hasta cerrarla.
func runDesktop(ctx context.Context, cfg *config.Config, deps session.Deps) error {
	fyneApp := app.NewWithID("io.aegisquant.client")
	w := fyneApp.NewWindow("AegisQuant")
	w.Resize(fyne.NewSize(720, 480))

	var chime *desktop.Chime
	if cfg.Alerts.Sound {
		c, err := desktop.NewChime()
		if err != nil {
			slog.Warn("audio disabled", "err", err)
		} else {
			chime = c
		}
	}
	deps.Host = desktop.NewHost(fyneApp, w, chime, deps.Logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var holder session.Holder
	s, done, err := startSession(ctx, &holder, sessionConfig(cfg), deps)
	if err != nil {
		return fmt.Errorf("runDesktop: %w", err)
	}
	defer func() {
		if err := holder.Replace(nil); err != nil {
			slog.Warn("session close failed", "err", err)
		}
		<-done
	}()

	d := newDashboard(s, w, cfg)
	w.SetContent(d.content())
	s.Watch(func(session.Change) { fyne.Do(d.refresh) })
	d.refresh()

	w.SetOnClosed(cancel)
	go func() {
		<-ctx.Done()
		fyne.Do(fyneApp.Quit)
	}()
	w.ShowAndRun()
	return nil
}

type dashboard struct {
	s   *session.Session
	win fyne.Window
	cfg *config.Config

	conn      *widget.Label
	backtest  *widget.Label
	account   *widget.Label
	positions *widget.Label
	alerts    *widget.Label
}

func newDashboard(s *session.Session, win fyne.Window, cfg *config.Config) *dashboard {
	return &dashboard{
		s:         s,
		win:       win,
		cfg:       cfg,
		conn:      widget.NewLabel(""),
		backtest:  widget.NewLabel(""),
		account:   widget.NewLabel(""),
		positions: widget.NewLabel(""),
		alerts:    widget.NewLabel(""),
	}
}

func (d *dashboard) content() fyne.CanvasObject {
	toolbar := container.NewHBox(
		d.button("Connect", d.s.Connect),
		d.button("Pause", d.s.PauseBacktest),
		d.button("Resume", d.s.ResumeBacktest),
		d.button("Step", func(ctx context.Context) error { return d.s.StepBacktest(ctx, 1) }),
		d.button("Stop", d.s.StopBacktest),
		d.button("Close all", d.s.CloseAllPositions),
		d.button("Sync", d.s.RequestFullState),
	)
	return container.NewBorder(
		container.NewVBox(d.conn, d.backtest, d.account, widget.NewSeparator()),
		toolbar, nil, nil,
		container.NewVScroll(container.NewVBox(d.positions, widget.NewSeparator(), d.alerts)),
	)
}

// button corre op fuera del hilo de UI y muestra el error, si hay.
func (d *dashboard) button(label string, op func(context.Context) error) *widget.Button {
	return widget.NewButton(label, func() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Session.RequestTimeout())
			defer cancel()
			if err := op(ctx); err != nil {
				fyne.Do(func() { dialog.ShowError(err, d.win) })
			}
		}()
	})
}

func (d *dashboard) refresh() {
	st := d.s.Connection()
	conn := string(st.Status)
	if st.Stale {
		conn += " (cached)"
	}
	if st.ReconnectAttempt > 0 {
		conn += fmt.Sprintf(" attempt %d", st.ReconnectAttempt)
	}
	d.conn.SetText("Engine: " + conn)

	bt := d.s.Backtest()
	d.backtest.SetText(fmt.Sprintf("Backtest: %s  %.1f%%", bt.State, bt.Progress*100))

	acct := d.s.Account()
	d.account.SetText(fmt.Sprintf("Equity %s | Balance %s | uPnL %s",
		acct.Equity.StringFixed(2), acct.Balance.StringFixed(2), acct.UnrealizedPnL.StringFixed(2)))

	var sb strings.Builder
	sb.WriteString("Positions\n")
	for _, p := range d.s.Positions() {
		fmt.Fprintf(&sb, "  %-8s %-5s %10s @ %s  uPnL %s\n",
			p.Symbol, p.Side, p.Quantity.String(), p.AvgPrice.StringFixed(4), p.UnrealizedPnL.StringFixed(2))
	}
	d.positions.SetText(sb.String())

	sb.Reset()
	sb.WriteString("Alerts\n")
	for _, a := range d.s.PendingAlerts() {
		fmt.Fprintf(&sb, "  [%s] %s: %s\n", a.Severity, a.Title, a.Message)
	}
	d.alerts.SetText(sb.String())
}
