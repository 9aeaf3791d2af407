// Package trigger implements the per-tick evaluation loop that turns a
// remote listing into fire decisions against persisted trigger state.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/pollwatch/internal/config"
	"github.com/nhle/pollwatch/internal/detect"
	"github.com/nhle/pollwatch/internal/model"
	"github.com/nhle/pollwatch/internal/source"
	"github.com/nhle/pollwatch/internal/state"
)

// Trigger evaluates one polling trigger instance. Each tick is a single
// sequential pipeline: read state, enumerate, evaluate, persist, emit.
// The caller guarantees at most one concurrent tick per state key.
type Trigger struct {
	cfg    config.TriggerConfig
	tctx   model.TriggerContext
	lister source.Lister
	store  state.Store
	logger *slog.Logger
}

// New creates a Trigger. The lister is an explicitly constructed provider
// handle; no shared client state is hidden behind it.
func New(
	cfg config.TriggerConfig,
	tctx model.TriggerContext,
	lister source.Lister,
	store state.Store,
	logger *slog.Logger,
) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{
		cfg:    cfg,
		tctx:   tctx,
		lister: lister,
		store:  store,
		logger: logger.With(slog.String("trigger", cfg.Name)),
	}
}

// Name returns the trigger's configured name.
func (t *Trigger) Name() string {
	return t.cfg.Name
}

// StateKey returns the persistence key for this trigger: the configured
// override, or one derived from the trigger context.
func (t *Trigger) StateKey() string {
	if t.cfg.StateKey != "" {
		return t.cfg.StateKey
	}
	return t.tctx.StateKey()
}

// RunTick executes one evaluation tick and returns the batch event to
// emit, or nil when there is nothing to report.
//
// Only configuration and authentication failures surface as errors.
// Transient provider failures skip the tick with state untouched; cursor
// invalidation clears the stored cursor and resyncs next tick; a state
// persistence failure is logged and does not retract the tick's fire
// decisions.
func (t *Trigger) RunTick(ctx context.Context) (*model.BatchEvent, error) {
	if err := t.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating trigger config: %w", err)
	}

	key := t.StateKey()

	sm, err := t.store.Read(ctx, key, t.cfg.TTL())
	if err != nil {
		// Unreadable state is treated as no state: the tick proceeds in
		// baseline mode and records what it sees without firing.
		t.logger.Warn("state read failed, proceeding as first run",
			slog.String("state_key", key),
			slog.String("error", err.Error()),
		)
		sm = model.StateMap{}
	}
	isFirstRun := sm.IsFirstRun()

	walker := detect.NewWalker(t.lister, t.logger)
	res, err := walker.Walk(ctx, t.cfg.ListTarget(), sm.Cursor())
	if err != nil {
		if source.IsAuthError(err) {
			return nil, fmt.Errorf("listing %s: %w", t.cfg.ListTarget(), err)
		}
		t.logger.Warn("listing failed, skipping tick",
			slog.String("target", t.cfg.ListTarget()),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}

	detailer, _ := t.lister.(source.Detailer)

	now := time.Now()
	var fired []model.ResourceSummary
	for _, item := range res.Items {
		if item.Kind != source.KindContent {
			continue
		}

		decision := detect.Evaluate(sm, model.Candidate{
			URI:        item.URI,
			Version:    item.Version,
			ObservedAt: now,
		}, t.cfg.Mode)

		if decision.Fire && !isFirstRun {
			summary := model.ResourceSummary{
				URI:        item.URI,
				Name:       item.Name,
				Version:    item.Version,
				ModifiedAt: item.ModifiedAt,
				IsNew:      decision.IsNew,
			}
			if detailer != nil {
				summary.Attachments = t.fetchAttachments(ctx, detailer, item)
			}
			fired = append(fired, summary)
		}
	}

	if res.Invalidated {
		sm.ClearCursor()
	} else {
		sm.SetCursor(res.Cursor, now)
	}

	if err := t.store.Write(ctx, key, sm); err != nil {
		// Fire decisions already made stand; the next tick re-derives
		// from the previous state at worst.
		t.logger.Warn("state write failed, decisions for this tick stand",
			slog.String("state_key", key),
			slog.String("error", err.Error()),
		)
	}

	if isFirstRun {
		t.logger.Info("baseline tick recorded existing resources",
			slog.Int("resources", len(res.Items)),
		)
	}

	if len(fired) == 0 {
		return nil, nil
	}

	return &model.BatchEvent{
		ID:    uuid.New().String(),
		Items: fired,
		Count: len(fired),
	}, nil
}

// fetchAttachments expands one fired item into attachment metadata. A
// detail failure degrades the summary, never the tick.
func (t *Trigger) fetchAttachments(
	ctx context.Context,
	detailer source.Detailer,
	item source.Item,
) []model.AttachmentSummary {
	infos, err := detailer.Attachments(ctx, t.cfg.ListTarget(), item)
	if err != nil {
		t.logger.Warn("attachment detail failed, emitting summary without it",
			slog.String("uri", item.URI),
			slog.String("error", err.Error()),
		)
		return nil
	}

	summaries := make([]model.AttachmentSummary, 0, len(infos))
	for _, info := range infos {
		summaries = append(summaries, model.AttachmentSummary{
			Filename: info.Filename,
			Size:     info.Size,
			MIMEType: info.MIMEType,
		})
	}
	return summaries
}
