package trigger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/pollwatch/internal/config"
	"github.com/nhle/pollwatch/internal/model"
	"github.com/nhle/pollwatch/internal/source"
)

// fakeLister returns one scripted page per List call, in order.
type fakeLister struct {
	pages []*source.Page
	errs  []error
	calls int
}

func (f *fakeLister) List(_ context.Context, _, _ string) (*source.Page, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.pages) {
		return f.pages[i], nil
	}
	return &source.Page{}, nil
}

func (f *fakeLister) FetchPage(_ context.Context, link string) (*source.Page, error) {
	return nil, fmt.Errorf("unexpected page fetch %q", link)
}

// memStore is an in-memory state.Store with injectable failures.
type memStore struct {
	maps     map[string]model.StateMap
	readErr  error
	writeErr error
	writes   int
}

func newMemStore() *memStore {
	return &memStore{maps: map[string]model.StateMap{}}
}

func (s *memStore) Read(_ context.Context, key string, ttl time.Duration) (model.StateMap, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	m := model.StateMap{}
	for k, v := range s.maps[key] {
		m[k] = v
	}
	m.Prune(ttl, time.Now())
	return m, nil
}

func (s *memStore) Write(_ context.Context, key string, m model.StateMap) error {
	s.writes++
	if s.writeErr != nil {
		return s.writeErr
	}
	snapshot := model.StateMap{}
	for k, v := range m {
		snapshot[k] = v
	}
	s.maps[key] = snapshot
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	delete(s.maps, key)
	return nil
}

func driveConfig(mode model.Mode) config.TriggerConfig {
	return config.TriggerConfig{
		Name:     "invoices",
		Type:     config.TypeDrive,
		Mode:     mode,
		BaseURL:  "https://drive.example.com",
		Path:     "/invoices",
		TTLHours: 168,
	}
}

func testContext() model.TriggerContext {
	return model.TriggerContext{Namespace: "prod", FlowID: "billing", TriggerID: "invoices"}
}

func contentItem(uri, version string) source.Item {
	return source.Item{URI: uri, Name: uri, Kind: source.KindContent, Version: version}
}

func TestFirstRunSuppressesFiring(t *testing.T) {
	lister := &fakeLister{pages: []*source.Page{
		{Items: []source.Item{contentItem("a", "v1"), contentItem("b", "v1")}},
	}}
	store := newMemStore()
	tr := New(driveConfig(model.ModeCreate), testContext(), lister, store, nil)

	event, err := tr.RunTick(context.Background())

	require.NoError(t, err)
	assert.Nil(t, event, "the baseline tick must not fire")

	saved := store.maps[tr.StateKey()]
	require.Len(t, saved, 2, "the baseline tick still records every resource")
}

func TestSecondTickFiresOnlyNewResources(t *testing.T) {
	lister := &fakeLister{pages: []*source.Page{
		{Items: []source.Item{contentItem("a", "v1")}},
		{Items: []source.Item{contentItem("a", "v1"), contentItem("b", "v1")}},
	}}
	store := newMemStore()
	tr := New(driveConfig(model.ModeCreate), testContext(), lister, store, nil)
	ctx := context.Background()

	_, err := tr.RunTick(ctx)
	require.NoError(t, err)

	event, err := tr.RunTick(ctx)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, 1, event.Count)
	require.Len(t, event.Items, 1)
	assert.Equal(t, "b", event.Items[0].URI)
	assert.True(t, event.Items[0].IsNew)
}

func TestModeCreateIgnoresUpdates(t *testing.T) {
	lister := &fakeLister{pages: []*source.Page{
		{Items: []source.Item{contentItem("a", "v1")}},
		{Items: []source.Item{contentItem("a", "v2")}},
	}}
	store := newMemStore()
	tr := New(driveConfig(model.ModeCreate), testContext(), lister, store, nil)
	ctx := context.Background()

	_, err := tr.RunTick(ctx)
	require.NoError(t, err)

	event, err := tr.RunTick(ctx)
	require.NoError(t, err)
	assert.Nil(t, event, "a version change must not fire in CREATE mode")

	entry := store.maps[tr.StateKey()]["a"]
	assert.Equal(t, "v2", entry.Version, "state still tracks the new version")
}

func TestModeUpdateFiresOnVersionChange(t *testing.T) {
	lister := &fakeLister{pages: []*source.Page{
		{Items: []source.Item{contentItem("a", "v1")}},
		{Items: []source.Item{contentItem("a", "v2"), contentItem("b", "v1")}},
	}}
	store := newMemStore()
	tr := New(driveConfig(model.ModeUpdate), testContext(), lister, store, nil)
	ctx := context.Background()

	_, err := tr.RunTick(ctx)
	require.NoError(t, err)

	event, err := tr.RunTick(ctx)
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Len(t, event.Items, 1)
	assert.Equal(t, "a", event.Items[0].URI)
	assert.False(t, event.Items[0].IsNew)
}

func TestCursorRoundTrip(t *testing.T) {
	lister := &fakeLister{pages: []*source.Page{
		{Items: []source.Item{contentItem("a", "v1")}, Cursor: "delta-1"},
		{Items: nil, Cursor: "delta-2"},
	}}
	store := newMemStore()
	tr := New(driveConfig(model.ModeCreate), testContext(), lister, store, nil)
	ctx := context.Background()

	_, err := tr.RunTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, "delta-1", store.maps[tr.StateKey()].Cursor())

	_, err = tr.RunTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, "delta-2", store.maps[tr.StateKey()].Cursor())
}

func TestCursorInvalidationClearsAndResyncs(t *testing.T) {
	lister := &fakeLister{
		pages: []*source.Page{
			{Items: []source.Item{contentItem("a", "v1")}, Cursor: "delta-1"},
			nil,
			{Items: []source.Item{contentItem("a", "v1"), contentItem("b", "v1")}, Cursor: "delta-2"},
		},
		errs: []error{
			nil,
			fmt.Errorf("delta expired: %w", source.ErrCursorInvalid),
			nil,
		},
	}
	store := newMemStore()
	tr := New(driveConfig(model.ModeCreate), testContext(), lister, store, nil)
	ctx := context.Background()

	_, err := tr.RunTick(ctx)
	require.NoError(t, err)

	// Invalidated tick: no firing, cursor cleared, tracked entries kept.
	event, err := tr.RunTick(ctx)
	require.NoError(t, err)
	assert.Nil(t, event)
	saved := store.maps[tr.StateKey()]
	assert.Empty(t, saved.Cursor())
	_, tracked := saved["a"]
	assert.True(t, tracked, "invalidation must not discard tracked resources")

	// Full resync: known resources stay silent, new ones fire.
	event, err = tr.RunTick(ctx)
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Len(t, event.Items, 1)
	assert.Equal(t, "b", event.Items[0].URI)
	assert.Equal(t, "delta-2", store.maps[tr.StateKey()].Cursor())
}

func TestTransientFailureSkipsTickWithoutStateChange(t *testing.T) {
	lister := &fakeLister{
		pages: []*source.Page{{Items: []source.Item{contentItem("a", "v1")}}},
		errs: []error{
			nil,
			&source.TransientError{Op: "GET /invoices", Err: errors.New("503")},
		},
	}
	store := newMemStore()
	tr := New(driveConfig(model.ModeCreate), testContext(), lister, store, nil)
	ctx := context.Background()

	_, err := tr.RunTick(ctx)
	require.NoError(t, err)
	writesBefore := store.writes

	event, err := tr.RunTick(ctx)
	require.NoError(t, err, "a transient listing failure skips the tick, it is not fatal")
	assert.Nil(t, event)
	assert.Equal(t, writesBefore, store.writes, "a skipped tick must not rewrite state")
}

func TestAuthFailureIsFatal(t *testing.T) {
	lister := &fakeLister{errs: []error{
		&source.AuthError{Provider: "drive", Message: "token expired"},
	}}
	tr := New(driveConfig(model.ModeCreate), testContext(), lister, newMemStore(), nil)

	_, err := tr.RunTick(context.Background())

	require.Error(t, err)
	assert.True(t, source.IsAuthError(err))
}

func TestInvalidConfigIsFatalBeforeAnyIO(t *testing.T) {
	cfg := driveConfig(model.ModeCreate)
	cfg.BaseURL = ""
	lister := &fakeLister{}
	store := newMemStore()
	tr := New(cfg, testContext(), lister, store, nil)

	_, err := tr.RunTick(context.Background())

	require.Error(t, err)
	assert.Zero(t, lister.calls)
	assert.Zero(t, store.writes)
}

func TestWriteFailureDoesNotRetractDecisions(t *testing.T) {
	lister := &fakeLister{pages: []*source.Page{
		{Items: []source.Item{contentItem("a", "v1")}},
		{Items: []source.Item{contentItem("a", "v1"), contentItem("b", "v1")}},
	}}
	store := newMemStore()
	tr := New(driveConfig(model.ModeCreate), testContext(), lister, store, nil)
	ctx := context.Background()

	_, err := tr.RunTick(ctx)
	require.NoError(t, err)

	store.writeErr = errors.New("disk full")
	event, err := tr.RunTick(ctx)

	require.NoError(t, err, "a persistence failure must not fail the tick")
	require.NotNil(t, event)
	assert.Equal(t, "b", event.Items[0].URI)
}

func TestUnreadableStateProceedsAsFirstRun(t *testing.T) {
	lister := &fakeLister{pages: []*source.Page{
		{Items: []source.Item{contentItem("a", "v1")}},
	}}
	store := newMemStore()
	store.readErr = errors.New("corrupt page")
	tr := New(driveConfig(model.ModeCreate), testContext(), lister, store, nil)

	event, err := tr.RunTick(context.Background())

	require.NoError(t, err)
	assert.Nil(t, event, "without readable state the tick records a baseline, not events")
}

func TestContainersAndDeletionMarkersAreNotTracked(t *testing.T) {
	lister := &fakeLister{pages: []*source.Page{
		{Items: []source.Item{
			contentItem("file", "v1"),
			{URI: "folder", Kind: source.KindContainer},
			{URI: "gone", Kind: source.KindDeleted},
		}},
	}}
	store := newMemStore()
	tr := New(driveConfig(model.ModeCreate), testContext(), lister, store, nil)

	_, err := tr.RunTick(context.Background())
	require.NoError(t, err)

	saved := store.maps[tr.StateKey()]
	require.Len(t, saved, 1)
	_, ok := saved["file"]
	assert.True(t, ok)
}

// detailingLister is a fakeLister whose fired items carry attachments.
type detailingLister struct {
	fakeLister
	infos     map[string][]source.AttachmentInfo
	detailErr error
}

func (d *detailingLister) Attachments(
	_ context.Context, _ string, item source.Item,
) ([]source.AttachmentInfo, error) {
	if d.detailErr != nil {
		return nil, d.detailErr
	}
	return d.infos[item.URI], nil
}

func TestFiredSummariesCarryAttachmentMetadata(t *testing.T) {
	lister := &detailingLister{
		fakeLister: fakeLister{pages: []*source.Page{
			{Items: []source.Item{contentItem("a", "v1")}},
			{Items: []source.Item{contentItem("a", "v1"), contentItem("b", "v1")}},
		}},
		infos: map[string][]source.AttachmentInfo{
			"b": {{Filename: "invoice.pdf", Size: 2048, MIMEType: "application/pdf"}},
		},
	}
	store := newMemStore()
	tr := New(driveConfig(model.ModeCreate), testContext(), lister, store, nil)
	ctx := context.Background()

	_, err := tr.RunTick(ctx)
	require.NoError(t, err)

	event, err := tr.RunTick(ctx)
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Len(t, event.Items, 1)
	require.Len(t, event.Items[0].Attachments, 1)
	assert.Equal(t, "invoice.pdf", event.Items[0].Attachments[0].Filename)
	assert.Equal(t, int64(2048), event.Items[0].Attachments[0].Size)
	assert.Equal(t, "application/pdf", event.Items[0].Attachments[0].MIMEType)
}

func TestAttachmentDetailFailureDegradesSummary(t *testing.T) {
	lister := &detailingLister{
		fakeLister: fakeLister{pages: []*source.Page{
			{Items: []source.Item{contentItem("a", "v1")}},
			{Items: []source.Item{contentItem("a", "v1"), contentItem("b", "v1")}},
		}},
		detailErr: errors.New("connection reset"),
	}
	store := newMemStore()
	tr := New(driveConfig(model.ModeCreate), testContext(), lister, store, nil)
	ctx := context.Background()

	_, err := tr.RunTick(ctx)
	require.NoError(t, err)

	event, err := tr.RunTick(ctx)
	require.NoError(t, err, "a detail failure must not fail the tick")
	require.NotNil(t, event)
	require.Len(t, event.Items, 1)
	assert.Equal(t, "b", event.Items[0].URI)
	assert.Empty(t, event.Items[0].Attachments)
}

func TestStateKeyOverride(t *testing.T) {
	cfg := driveConfig(model.ModeCreate)
	tr := New(cfg, testContext(), &fakeLister{}, newMemStore(), nil)
	assert.Equal(t, "prod/billing/invoices", tr.StateKey())

	cfg.StateKey = "custom-key"
	tr = New(cfg, testContext(), &fakeLister{}, newMemStore(), nil)
	assert.Equal(t, "custom-key", tr.StateKey())
}
