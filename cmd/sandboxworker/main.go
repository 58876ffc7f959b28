// Command sandboxworker is the in-process sandbox worker entry point
// (spec.md §6 "Startup contract"). It attaches the host-allocated shared
// memory, dials the control stream, selects embedded or host-mediated
// policy resolution, and runs the executor's frame loop until SIGTERM or
// an interrupt signal cancels its context. End of input and loss of the
// control stream do not stop the loop: control-stream write failures are
// logged and the loop keeps polling ring A.
//
// Grounded on the teacher's facade.HioloadWS.Stop() release ordering
// (poller, then transport, then executor, then affinity) generalized to
// the nesting spec.md §9 "Cyclic ownership" specifies for this worker:
// interception hooks, then the policy client, then the rings, then the
// shared-memory attachment.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/momentics/sandboxworker/api"
	"github.com/momentics/sandboxworker/control"
	"github.com/momentics/sandboxworker/executor"
	"github.com/momentics/sandboxworker/internal/controlstream"
	"github.com/momentics/sandboxworker/internal/lang"
	"github.com/momentics/sandboxworker/internal/ringbuf"
	"github.com/momentics/sandboxworker/internal/shm"
	"github.com/momentics/sandboxworker/internal/transport"
	"github.com/momentics/sandboxworker/intercept"
	"github.com/momentics/sandboxworker/policy"
	"github.com/momentics/sandboxworker/policyclient"
)

func main() {
	if err := run(); err != nil {
		slog.Default().Error("sandboxworker exiting", "err", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 4 {
		return fmt.Errorf("usage: %s <control-socket-path> <shm-name> <shm-size>", os.Args[0])
	}
	socketPath := os.Args[1]
	shmName := os.Args[2]
	shmSize, err := strconv.Atoi(os.Args[3])
	if err != nil || shmSize <= 0 {
		return fmt.Errorf("invalid shm size %q", os.Args[3])
	}

	logger := newLogger(os.Getenv("SANDBOX_LOG_LEVEL"))
	slog.SetDefault(logger)

	slab, err := shm.Attach(shmName, shmSize)
	if err != nil {
		return api.NewError(api.ErrCodeShmAttach, "shared memory attach failed").
			WithContext("name", shmName).WithContext("size", shmSize).WithContext("cause", err.Error())
	}
	defer slab.Close()

	ctl, err := controlstream.Dial(socketPath, logger)
	if err != nil {
		return api.NewError(api.ErrCodeControlConnect, "control stream unreachable").
			WithContext("path", socketPath).WithContext("cause", err.Error())
	}
	defer ctl.Close()

	ringA := ringbuf.New(slab.RingA())
	ringB := ringbuf.New(slab.RingB())
	tr := transport.New(ringA, ringB, ctl)

	metrics := control.NewWorkerMetrics(control.NewMetricsRegistry())
	reloadHooks := control.NewReloadHooks()

	policyPath := os.Getenv("POLICY_PATH")
	client, err := newPolicyClient(policyPath, tr, metrics, reloadHooks, logger)
	if err != nil {
		return err
	}

	guard := intercept.New(client, policyPath)
	ev := lang.NewEvaluator(guard, io.Discard)
	ex := executor.New(tr, ctl, ev, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	watchReload(ctx, reloadHooks, logger)
	watchInterrupt(ctx, ex)
	if addr := os.Getenv("SANDBOX_METRICS_ADDR"); addr != "" {
		watchMetrics(ctx, ctl, metrics, addr, logger)
	}

	if err := ctl.SendReady(); err != nil {
		return api.NewError(api.ErrCodeControlConnect, "failed to send READY token").WithContext("cause", err.Error())
	}
	logger.Info("sandboxworker ready", "mode", client.Mode().String(), "shm_name", shmName, "shm_size", shmSize)

	return ex.Run(ctx)
}

func newPolicyClient(policyPath string, tr *transport.Transport, metrics *control.WorkerMetrics, hooks *control.ReloadHooks, logger *slog.Logger) (*policyclient.Client, error) {
	if policyPath == "" {
		return policyclient.NewHostMediated(tr, metrics, probeTimeoutOption()...), nil
	}
	if _, err := os.Stat(policyPath); err != nil {
		logger.Warn("POLICY_PATH set but unreadable, falling back to host-mediated mode", "path", policyPath, "err", err)
		return policyclient.NewHostMediated(tr, metrics, probeTimeoutOption()...), nil
	}

	loader := policy.NewCachingLoader(policyPath)
	compiled, err := loader.Load()
	if err != nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "failed to load policy ruleset").
			WithContext("path", policyPath).WithContext("cause", err.Error())
	}
	hooks.Register(loader.Invalidate)
	return policyclient.NewEmbedded(&reloadingEvaluator{loader: loader, last: compiled}, metrics), nil
}

// reloadingEvaluator resolves each probe against loader's current ruleset,
// so an mtime change or a reload hook's Invalidate takes effect on the next
// probe. If a re-read fails, the last successfully loaded ruleset is used.
type reloadingEvaluator struct {
	loader *policy.CachingLoader
	last   *policy.Compiled
}

func (e *reloadingEvaluator) Evaluate(p api.Probe) api.Decision {
	if c, err := e.loader.Load(); err == nil {
		e.last = c
	}
	return e.last.Evaluate(p)
}

func probeTimeoutOption() []policyclient.Option {
	raw := os.Getenv("SANDBOX_PROBE_TIMEOUT_MS")
	if raw == "" {
		return nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return nil
	}
	return []policyclient.Option{policyclient.WithTimeout(time.Duration(ms) * time.Millisecond)}
}

// watchReload wires SIGHUP to the registered reload hooks, letting an
// operator force a policy-file re-read without restarting the worker
// (spec.md §1 excludes worker-binary hot-reload only; reloading the
// ruleset document is ambient operational surface).
func watchReload(ctx context.Context, hooks *control.ReloadHooks, logger *slog.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				signal.Stop(ch)
				return
			case <-ch:
				logger.Info("SIGHUP received, reloading policy")
				hooks.Trigger()
			}
		}
	}()
}

// watchInterrupt wires SIGUSR1 to Executor.Interrupt, the process-local
// stand-in for the host-signaled "stop the currently evaluating code"
// control-flow interrupt spec.md §5 describes abstractly without naming a
// wire mechanism.
func watchInterrupt(ctx context.Context, ex *executor.Executor) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				signal.Stop(ch)
				return
			case <-ch:
				ex.Interrupt()
			}
		}
	}()
}

// watchMetrics periodically logs a metrics snapshot to the control stream
// as a diagnostic state event (SPEC_FULL.md §6 "SANDBOX_METRICS_ADDR").
// The env var's name implies a listen address; here it is treated as an
// opt-in flag plus the snapshot interval is fixed, since the worker has no
// HTTP server in its dependency graph and a snapshot-over-control-stream
// is simpler than standing one up for a single diagnostic line.
func watchMetrics(ctx context.Context, ctl *controlstream.Stream, metrics *control.WorkerMetrics, addr string, logger *slog.Logger) {
	logger.Info("periodic metrics logging enabled", "addr", addr)
	ticker := time.NewTicker(10 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ctl.SendMetrics(metrics.Snapshot())
			}
		}
	}()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
