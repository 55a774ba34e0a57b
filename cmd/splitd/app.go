package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/atch2203/split-the-bill/internal/bill"
	"github.com/atch2203/split-the-bill/internal/config"
	"github.com/atch2203/split-the-bill/internal/ice"
	"github.com/atch2203/split-the-bill/internal/receipt"
	"github.com/atch2203/split-the-bill/internal/resume"
	"github.com/atch2203/split-the-bill/internal/room"
	"github.com/atch2203/split-the-bill/internal/session"
	"github.com/atch2203/split-the-bill/internal/transport"
)

type runOptions struct {
	Mode        string
	RoomID      string
	Link        string
	Passcode    string
	ReceiptPath string
}

// app wires the document store, session core, resumption store, and the
// admin HTTP surface.
type app struct {
	cfg   config.Config
	log   *zap.Logger
	store *bill.Store

	session *session.Session
	resume  *resume.Store

	adminHTTP *http.Server
	ready     atomic.Bool

	// Join/host parameters recorded for the resumption file.
	lastTarget   string
	lastPasscode string
}

func newApp(cfg config.Config, logger *zap.Logger) *app {
	return &app{
		cfg:    cfg,
		log:    logger,
		store:  bill.NewStore(),
		resume: resume.NewStore(cfg.Resume.Path),
	}
}

// Run starts the session in the requested mode and blocks until shutdown.
func (a *app) Run(ctx context.Context, opts runOptions) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	metrics := session.NewMetrics(reg)
	a.startAdminServer(reg)
	defer a.stopAdminServer()

	factory := transport.NewWebsocketFactory(transport.WebsocketConfig{
		ListenAddress: a.cfg.ListenAddress,
		Log:           a.log.Named("transport"),
	})

	var provider ice.Provider = ice.Static(ice.Default())
	if a.cfg.ICE.CredentialURL != "" {
		provider = ice.NewHTTPProvider(a.cfg.ICE.CredentialURL, a.log.Named("ice"))
	}

	sess, err := session.New(session.Config{
		Log:       a.log.Named("session"),
		Transport: factory,
		ICE:       provider,
		Clock:     clockwork.NewRealClock(),
		Metrics:   metrics,
		Hooks: session.Hooks{
			State:    a.store.State,
			SetState: a.store.SetState,
			Apply:    a.store.Apply,
		},
		HandshakeTimeout:  a.cfg.HandshakeTimeout,
		StateRequestDelay: a.cfg.StateRequestDelay,
	})
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}
	a.session = sess

	switch opts.Mode {
	case "host":
		if err := a.startHost(ctx, opts); err != nil {
			return err
		}
	case "join":
		if err := a.startJoin(ctx, opts); err != nil {
			return err
		}
	case "resume":
		if err := a.startResume(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown mode %q", opts.Mode)
	}

	a.ready.Store(true)
	<-ctx.Done()
	a.ready.Store(false)

	a.saveOrClearResumption()
	a.session.Disconnect()
	return nil
}

func (a *app) startHost(ctx context.Context, opts runOptions) error {
	if opts.ReceiptPath != "" {
		if err := a.seedFromReceipt(opts.ReceiptPath); err != nil {
			return err
		}
	}

	roomID, err := a.session.Host(ctx, opts.RoomID, opts.Passcode)
	if err != nil {
		return err
	}

	share, err := room.ShareURL(a.cfg.BaseURL, roomID, opts.Passcode)
	if err != nil {
		return err
	}
	a.lastPasscode = opts.Passcode
	a.log.Info("session ready", zap.String("room", roomID))
	fmt.Printf("share this link: %s\n", share)
	return nil
}

func (a *app) startJoin(ctx context.Context, opts runOptions) error {
	if opts.Link == "" {
		return errors.New("join mode requires -link")
	}
	link, err := room.Parse(opts.Link)
	if err != nil {
		return err
	}
	passcode := opts.Passcode
	if passcode == "" {
		passcode = link.Passcode
	}
	target, err := room.ChannelURL(opts.Link)
	if err != nil {
		return err
	}

	if err := a.session.Join(ctx, target, passcode); err != nil {
		return err
	}
	a.lastTarget = target
	a.lastPasscode = passcode
	a.log.Info("joined session", zap.String("target", target), zap.Int("members", a.session.TotalUsers()))
	return nil
}

// startResume restores a saved session identity: the prior document comes
// back immediately and the session rejoins or rehosts under it.
func (a *app) startResume(ctx context.Context) error {
	passphrase, err := a.cfg.ResumePassphrase()
	if err != nil {
		return err
	}
	rec, err := a.resume.Load(passphrase)
	if err != nil {
		return fmt.Errorf("load saved session: %w", err)
	}
	a.store.SetState(rec.State)
	a.lastTarget = rec.Target
	a.lastPasscode = rec.Passcode

	switch rec.Role {
	case "host":
		roomID, err := a.session.Host(ctx, rec.RoomID, rec.Passcode)
		if err != nil {
			return err
		}
		a.log.Info("resumed hosting", zap.String("room", roomID), zap.Time("savedAt", rec.SavedAt))
		return nil
	case "guest":
		if err := a.session.Join(ctx, rec.Target, rec.Passcode); err != nil {
			return err
		}
		a.log.Info("resumed session", zap.String("target", rec.Target), zap.Time("savedAt", rec.SavedAt))
		return nil
	default:
		return fmt.Errorf("saved session has unknown role %q", rec.Role)
	}
}

func (a *app) seedFromReceipt(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read receipt: %w", err)
	}
	parsed := receipt.Parse(string(raw))

	state := bill.New()
	state.Items = parsed.Items
	if parsed.TaxAmount != nil {
		state.Settings.TaxAmount = *parsed.TaxAmount
	}
	a.store.SetState(state)
	a.log.Info("seeded bill from receipt",
		zap.String("path", path),
		zap.Int("items", len(parsed.Items)),
		zap.Bool("tax", parsed.TaxAmount != nil))
	return nil
}

// saveOrClearResumption persists the session identity when it is worth
// resuming: a suspended session, or a live host whose document should
// survive a restart. A session that was never established clears instead.
func (a *app) saveOrClearResumption() {
	role := a.session.Role()
	if role == session.RoleNone {
		if err := a.resume.Clear(); err != nil {
			a.log.Warn("clear saved session", zap.Error(err))
		}
		return
	}

	passphrase, err := a.cfg.ResumePassphrase()
	if err != nil {
		a.log.Warn("saved session not written", zap.Error(err))
		return
	}

	rec := resume.Record{
		State:   a.store.State(),
		SavedAt: time.Now().UTC(),
	}
	switch role {
	case session.RoleHost:
		rec.Role = "host"
		rec.RoomID = a.session.RoomID()
		rec.Passcode = a.lastPasscode
	case session.RoleGuest:
		rec.Role = "guest"
		rec.Target = a.lastTarget
		rec.Passcode = a.lastPasscode
	}
	if err := a.resume.Save(passphrase, rec); err != nil {
		a.log.Warn("save session", zap.Error(err))
		return
	}
	a.log.Info("session saved for resumption", zap.String("path", a.resume.Path()))
}

func (a *app) startAdminServer(reg *prometheus.Registry) {
	if a.cfg.MetricsAddress == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if a.ready.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not_ready"))
	})

	a.adminHTTP = &http.Server{Addr: a.cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.adminHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("admin server stopped", zap.Error(err))
		}
	}()
	a.log.Info("admin server listening", zap.String("address", a.cfg.MetricsAddress))
}

func (a *app) stopAdminServer() {
	if a.adminHTTP == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGracePeriod)
	defer cancel()
	if err := a.adminHTTP.Shutdown(ctx); err != nil {
		_ = a.adminHTTP.Close()
	}
}
