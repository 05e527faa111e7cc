package gbp

import "go.uber.org/zap"

// EnergyLogger receives per-iteration solver diagnostics. FactorGraph
// calls it once per SynchronousIteration when SolveSettings.Log is set;
// implementations must be safe to call from the goroutine driving Solve
// (never concurrently).
type EnergyLogger interface {
	// LogIteration reports the energy observed after iteration (0-based)
	// and how many factors had an ill-conditioned Schur complement skipped.
	LogIteration(iteration int, energy float64, illConditioned int)
}

// ZapEnergyLogger is the default EnergyLogger, backed by a zap.Logger.
type ZapEnergyLogger struct {
	log *zap.Logger
}

// NewZapEnergyLogger wraps log. A nil log is replaced with zap.NewNop(),
// so a zero-value ZapEnergyLogger is safe to log through.
func NewZapEnergyLogger(log *zap.Logger) *ZapEnergyLogger {
	if log == nil {
		log = zap.NewNop()
	}

	return &ZapEnergyLogger{log: log}
}

// LogIteration emits one structured log line per iteration.
func (l *ZapEnergyLogger) LogIteration(iteration int, energy float64, illConditioned int) {
	log := l.log
	if log == nil {
		log = zap.NewNop()
	}
	fields := []zap.Field{
		zap.Int("iteration", iteration),
		zap.Float64("energy", energy),
	}
	if illConditioned > 0 {
		fields = append(fields, zap.Int("ill_conditioned_factors", illConditioned))
	}
	log.Info("gbp iteration", fields...)
}

// noopEnergyLogger is used when SolveSettings.Log is false, to avoid
// branching on a nil EnergyLogger at every call site.
type noopEnergyLogger struct{}

func (noopEnergyLogger) LogIteration(int, float64, int) {}
