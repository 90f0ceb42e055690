// Package report logs training progress and keeps it in a SQLite metrics store.
package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/neurlang/seqadv/stats"
)

// Config holds report manager configuration.
type Config struct {
	// Every reports training statistics on every Every-th step.
	Every int
	// Store keeps the reports (optional).
	Store *Store
	// RunID names the run in the store, a new UUID when empty.
	RunID string
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Manager reports training and validation statistics.
type Manager struct {
	every  int
	store  *Store
	runID  string
	logger *slog.Logger
	start  time.Time
}

// NewManager returns a manager reporting every cfg.Every steps.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	every := cfg.Every
	if every <= 0 {
		every = 1
	}
	return &Manager{
		every:  every,
		store:  cfg.Store,
		runID:  runID,
		logger: logger,
		start:  time.Now(),
	}
}

// RunID identifies the run in the store.
func (m *Manager) RunID() string {
	return m.runID
}

// Start sets the time elapsed times are measured from.
func (m *Manager) Start(t time.Time) {
	if !t.IsZero() {
		m.start = t
	}
	if m.store != nil {
		if err := m.store.StartRun(context.Background(), m.runID, m.start); err != nil {
			m.logger.Warn("failed to record run", "run_id", m.runID, "error", err)
		}
	}
}

// ReportTraining logs st on the report cadence and returns fresh statistics
// after a report, st otherwise.
func (m *Manager) ReportTraining(step, totalSteps int, lr float64, st *stats.Statistics, multiWorker bool) *stats.Statistics {
	if step%m.every != 0 {
		return st
	}
	elapsed := st.ElapsedTime().Seconds()
	var srcRate, tgtRate float64
	if elapsed > 0 {
		srcRate = float64(st.NSrcWords) / elapsed
		tgtRate = float64(st.NWords) / elapsed
	}
	m.logger.Info("training",
		"step", step,
		"total_steps", totalSteps,
		"task", st.Basename,
		"acc", st.Accuracy(),
		"ppl", st.Perplexity(),
		"xent", st.XEnt(),
		"critic", st.CriticLoss,
		"lr", lr,
		"src_tok_s", srcRate,
		"tgt_tok_s", tgtRate,
		"elapsed", time.Since(m.start).Round(time.Second))
	m.insert(KindTrain, step, lr, st)
	return st.Restart()
}

// ReportStep logs and stores the statistics of a validated step; train may be nil.
func (m *Manager) ReportStep(lr float64, step int, train, valid *stats.Statistics) {
	if train != nil {
		m.logger.Info("train perplexity", "step", step, "ppl", train.Perplexity(), "acc", train.Accuracy())
		m.insert(KindTrain, step, lr, train)
	}
	if valid != nil {
		m.logger.Info("validation perplexity", "step", step, "ppl", valid.Perplexity(), "acc", valid.Accuracy())
		m.insert(KindValid, step, lr, valid)
	}
}

func (m *Manager) insert(kind string, step int, lr float64, st *stats.Statistics) {
	if m.store == nil {
		return
	}
	err := m.store.Insert(context.Background(), Row{
		RunID:      m.runID,
		Kind:       kind,
		Step:       step,
		Task:       st.Basename,
		Loss:       st.Loss,
		NWords:     st.NWords,
		NCorrect:   st.NCorrect,
		NSrcWords:  st.NSrcWords,
		CriticLoss: st.CriticLoss,
		LR:         lr,
	})
	if err != nil {
		m.logger.Warn("failed to store report", "kind", kind, "step", step, "error", err)
	}
}
