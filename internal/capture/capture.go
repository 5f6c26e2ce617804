// Package capture drives the photo-to-inventory confirmation workflow: one
// draft per session, advanced by transport events until the user commits or
// cancels. Remote effects go through the Inventory, Analyzer and ImageCache
// boundaries so the state machine itself stays testable.
package capture

import (
	"context"
	"fmt"
	"log/slog"

	"snapshelf/internal/classify"
	"snapshelf/internal/domain"
	"snapshelf/internal/locations"
	"snapshelf/internal/sessions"
)

// State names one node of the capture state machine. The transient analyzing
// and committing values are persisted so a session stored externally stays
// observable if the process dies mid-flight; committing accepts a retried
// confirm, and a draftless session always presents as awaiting_photo.
type State string

const (
	StateAwaitingPhoto          State = "awaiting_photo"
	StateAnalyzing              State = "analyzing"
	StateConfirming             State = "confirming"
	StateEditingName            State = "editing_name"
	StateEditingDescription     State = "editing_description"
	StateSelectingLocation      State = "selecting_location"
	StateAwaitingReanalysisHint State = "awaiting_reanalysis_hint"
	StateCommitting             State = "committing"
)

// Code classifies the outcome of one workflow event. Transports branch on
// this closed set instead of error types.
type Code string

const (
	CodeOK                 Code = "ok"
	CodeNoLocations        Code = "no_locations"
	CodeInvalidImage       Code = "invalid_image"
	CodeServiceUnavailable Code = "service_unavailable"
	CodeRemoteRejected     Code = "remote_rejected"
	CodeNoActiveDraft      Code = "no_active_draft"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnknownLocation    Code = "unknown_location"
	CodeDraftInProgress    Code = "draft_in_progress"

	// CodePhotoUploadFailed is a success with a warning: the item exists but
	// its photo could not be attached.
	CodePhotoUploadFailed Code = "photo_upload_failed"
)

// Draft field names accepted by the edit entry points.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldLocation    = "location"
)

// Photo is one submitted capture with its optional per-message overrides.
type Photo struct {
	Data     []byte
	Caption  string
	Language string
	Model    string
}

// Result is the render-agnostic outcome of one event: the state the session
// is now in plus whatever that state needs rendered. The draft and location
// slice are snapshots; mutating them does not touch the stored session.
type Result struct {
	State     State             `json:"state"`
	Code      Code              `json:"code"`
	Detail    string            `json:"detail,omitempty"`
	Draft     *domain.Draft     `json:"draft,omitempty"`
	Locations []domain.Location `json:"locations,omitempty"`
	Item      *domain.Item      `json:"item,omitempty"`
}

// Inventory is the slice of the remote item store the workflow drives.
type Inventory interface {
	ListLocations(ctx context.Context) []domain.Location
	CreateItem(ctx context.Context, item domain.NewItem) (*domain.Item, error)
	LastError() string
}

// Analyzer proposes item fields for a photo. Implementations never fail; a
// degraded placeholder result stands in when the model is unusable.
type Analyzer interface {
	Analyze(ctx context.Context, req classify.Request) classify.Result
}

// ImageCache keeps the captured photo on disk while its draft is pending.
type ImageCache interface {
	Save(sessionID, mimeType string, data []byte) (string, error)
	Load(path string) ([]byte, error)
	Remove(path string) error
}

// Config tunes capture behavior. Zero values fall back to package defaults.
type Config struct {
	FilterMode    locations.FilterMode
	Marker        string
	Language      string
	Model         string
	MaxImageBytes int64
	MaxImageDim   int
	DownscaleDim  int
}

// Workflow owns the per-session state machine. Events for one session are
// serialized by a per-key lock; distinct sessions proceed in parallel.
type Workflow struct {
	store     sessions.Store
	inventory Inventory
	analyzer  Analyzer
	images    ImageCache
	cfg       Config
	logger    *slog.Logger
	locks     *keyLocks
}

func New(store sessions.Store, inventory Inventory, analyzer Analyzer, images ImageCache, cfg Config, logger *slog.Logger) *Workflow {
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.FilterMode == "" {
		cfg.FilterMode = locations.FilterMarker
	}
	return &Workflow{
		store:     store,
		inventory: inventory,
		analyzer:  analyzer,
		images:    images,
		cfg:       cfg,
		logger:    logger,
		locks:     newKeyLocks(),
	}
}

// loadSession fetches the stored record, substituting a fresh awaiting_photo
// record for unknown ids. A record without a draft is normalized to
// awaiting_photo so a crash between the analyzing write and the draft write
// cannot strand a session.
func (w *Workflow) loadSession(ctx context.Context, sid string) (*sessions.Record, error) {
	rec, err := w.store.Get(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sid, err)
	}
	if rec == nil {
		rec = &sessions.Record{ID: sid}
	}
	if rec.Draft == nil {
		rec.State = string(StateAwaitingPhoto)
	}
	return rec, nil
}

func (w *Workflow) saveSession(ctx context.Context, rec *sessions.Record) error {
	if err := w.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", rec.ID, err)
	}
	return nil
}

// resultFor snapshots the session into a Result so callers never share the
// stored draft.
func resultFor(rec *sessions.Record, code Code) *Result {
	res := &Result{State: State(rec.State), Code: code, Draft: rec.Draft.Clone()}
	if res.Draft != nil {
		res.Locations = res.Draft.AllowedLocations
	}
	return res
}

// confirmable reports whether a state accepts confirm-card events.
// committing is included so a session persisted mid-commit can retry.
func confirmable(s State) bool {
	return s == StateConfirming || s == StateCommitting
}
