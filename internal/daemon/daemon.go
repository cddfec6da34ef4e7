package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/refunda-ai/refunda/internal/artifacts"
	"github.com/refunda-ai/refunda/internal/config"
	configstore "github.com/refunda-ai/refunda/internal/config/store"
	"github.com/refunda-ai/refunda/internal/conversation"
	"github.com/refunda-ai/refunda/internal/eligibility"
	"github.com/refunda-ai/refunda/internal/eventbus"
	"github.com/refunda-ai/refunda/internal/observability"
	"github.com/refunda-ai/refunda/internal/procutil"
	"github.com/refunda-ai/refunda/internal/server"
	"github.com/refunda-ai/refunda/internal/session"
)

const (
	// serviceOpTimeout bounds context deadlines for service start and
	// shutdown operations.
	serviceOpTimeout = 5 * time.Second

	// janitorInterval is the polling period for stopped-session cleanup.
	janitorInterval = 10 * time.Minute

	defaultRetention = 24 * time.Hour
)

// Options groups dependencies required to construct a Daemon.
type Options struct {
	Store *configstore.Store
	Env   config.Env
}

// Daemon wires the refund agent services together and runs them until
// shutdown.
type Daemon struct {
	store          *configstore.Store
	env            config.Env
	paths          config.InstancePaths
	bus            *eventbus.Bus
	sessionManager *session.Manager
	sink           *artifacts.Sink
	apiServer      *server.APIServer
	eligibility    *eligibility.Store
	retention      time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	errMu  sync.Mutex
	runErr error

	shutdownOnce sync.Once
}

// New creates a daemon instance bound to the provided configuration store.
func New(opts Options) (*Daemon, error) {
	if opts.Store == nil {
		return nil, errors.New("daemon: configuration store is required")
	}

	paths := config.GetInstancePaths(opts.Store.InstanceName())

	if err := seedEligibilityDataset(opts.Env.DataPath); err != nil {
		return nil, err
	}
	eligStore, err := eligibility.Open(opts.Env.DataPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}
	log.Printf("[Daemon] eligibility dataset loaded: %d customers", eligStore.Customers())

	counter := observability.NewEventCounter()
	bus := eventbus.New(eventbus.WithObserver(counter))

	engine := conversation.NewEngine(bus, eligStore)
	sessionManager := session.NewManager(bus, engine, session.WithRecorder(opts.Store))

	sink := artifacts.NewSink(bus, opts.Env.ArtifactsDir)

	exporter := observability.NewPrometheusExporter(bus, counter)
	exporter.WithSessions(sessionManager)

	apiServer, err := server.NewAPIServer(opts.Env.HTTPAddr, sessionManager)
	if err != nil {
		return nil, fmt.Errorf("daemon: create API server: %w", err)
	}
	apiServer.SetInstance(opts.Store.InstanceName())
	apiServer.SetDecisionHistory(opts.Store)
	apiServer.SetArtifactStore(sink)
	apiServer.SetMetricsExporter(exporter)
	apiServer.SetEligibilityInfo(eligStore)

	settings, err := opts.Store.LoadSettings(context.Background(),
		configstore.SettingAuthToken, configstore.SettingRetentionHours)
	if err != nil {
		return nil, fmt.Errorf("daemon: load settings: %w", err)
	}
	if token := strings.TrimSpace(settings[configstore.SettingAuthToken]); token != "" {
		apiServer.SetAuthToken(token)
		log.Printf("[Daemon] API bearer auth enabled")
	}

	retention := defaultRetention
	if raw := strings.TrimSpace(settings[configstore.SettingRetentionHours]); raw != "" {
		if hours, err := strconv.Atoi(raw); err == nil && hours > 0 {
			retention = time.Duration(hours) * time.Hour
		} else {
			log.Printf("[Daemon] invalid retention setting %q, using default", raw)
		}
	}

	d := &Daemon{
		store:          opts.Store,
		env:            opts.Env,
		paths:          paths,
		bus:            bus,
		sessionManager: sessionManager,
		sink:           sink,
		apiServer:      apiServer,
		eligibility:    eligStore,
		retention:      retention,
		done:           make(chan struct{}),
	}

	apiServer.SetShutdownFunc(func(ctx context.Context) error {
		go d.Shutdown()
		return nil
	})

	return d, nil
}

// Start runs the daemon until Shutdown is called. It blocks.
func (d *Daemon) Start() error {
	if err := writeLockFile(d.paths.Lock); err != nil {
		return err
	}
	defer os.Remove(d.paths.Lock)

	d.ctx, d.cancel = context.WithCancel(context.Background())

	if err := d.sink.Start(d.ctx); err != nil {
		d.cancel()
		return fmt.Errorf("daemon: start artifact sink: %w", err)
	}
	if err := d.apiServer.Start(d.ctx); err != nil {
		d.cancel()
		return fmt.Errorf("daemon: start API server: %w", err)
	}
	log.Printf("[Daemon] instance %q ready on %s", d.store.InstanceName(), d.apiServer.Addr())

	go d.runJanitor()

	<-d.ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), serviceOpTimeout)
	defer cancel()

	if err := d.apiServer.Shutdown(stopCtx); err != nil {
		d.setRunError(fmt.Errorf("daemon: API server shutdown: %w", err))
	}

	d.sessionManager.StopAll()

	if err := d.sink.Shutdown(stopCtx); err != nil {
		d.setRunError(fmt.Errorf("daemon: artifact sink shutdown: %w", err))
	}

	d.bus.Shutdown()

	if err := d.store.Close(); err != nil {
		d.setRunError(fmt.Errorf("daemon: store close: %w", err))
	}

	close(d.done)
	return d.getRunError()
}

// Shutdown signals the daemon to stop and waits for Start to unwind.
func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() {
		log.Printf("[Daemon] shutdown requested")
		if d.cancel != nil {
			d.cancel()
		}
	})
	<-d.done
}

// Addr returns the bound API address once Start has run.
func (d *Daemon) Addr() string {
	return d.apiServer.Addr()
}

// SessionManager returns the session manager.
func (d *Daemon) SessionManager() *session.Manager {
	return d.sessionManager
}

// APIServer returns the API server.
func (d *Daemon) APIServer() *server.APIServer {
	return d.apiServer
}

func (d *Daemon) runJanitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if removed := d.sessionManager.CleanupStopped(d.retention); removed > 0 {
				log.Printf("[Daemon] cleaned up %d stopped sessions", removed)
			}
		}
	}
}

func (d *Daemon) setRunError(err error) {
	if err == nil {
		return
	}
	d.errMu.Lock()
	defer d.errMu.Unlock()
	if d.runErr == nil {
		d.runErr = err
	}
}

func (d *Daemon) getRunError() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.runErr
}

// IsRunning checks whether a daemon already holds the lock file for the
// given instance.
func IsRunning(instanceName string) bool {
	paths := config.GetInstancePaths(instanceName)

	data, err := os.ReadFile(paths.Lock)
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		os.Remove(paths.Lock)
		return false
	}

	if !procutil.IsProcessAlive(pid) {
		os.Remove(paths.Lock)
		return false
	}
	return true
}

func writeLockFile(path string) error {
	if data, err := os.ReadFile(path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && procutil.IsProcessAlive(pid) {
			return fmt.Errorf("daemon: already running (pid %d)", pid)
		}
		os.Remove(path)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// seedEligibilityDataset writes a starter dataset when none exists so a
// fresh install can answer refund questions immediately.
func seedEligibilityDataset(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("daemon: stat eligibility dataset: %w", err)
	}

	ds := eligibility.Dataset{
		Customers: []eligibility.Customer{
			{
				Email: "jane@example.com",
				Last4: "1234",
				Orders: []eligibility.Order{
					{OrderNumber: 1, OrderID: "ORD-1001", Eligible: true, Total: 49.99},
					{OrderNumber: 2, OrderID: "ORD-1002", Eligible: false, Total: 12.50},
				},
			},
		},
	}

	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("daemon: marshal starter dataset: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("daemon: write starter dataset: %w", err)
	}
	log.Printf("[Daemon] wrote starter eligibility dataset to %s", path)
	return nil
}
