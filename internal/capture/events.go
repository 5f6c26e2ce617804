package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"snapshelf/internal/classify"
	"snapshelf/internal/domain"
	"snapshelf/internal/imaging"
	"snapshelf/internal/locations"
	"snapshelf/internal/retry"
)

// OnPhotoReceived runs the capture pipeline for one photo: validate, fetch
// and filter the allowed locations, cache the image, classify it, resolve
// the suggested location, and park the draft in confirming. A failed
// validation leaves no trace; a photo sent while a draft is pending is
// rejected so the pending draft cannot be lost by accident.
func (w *Workflow) OnPhotoReceived(ctx context.Context, sid string, photo Photo) (*Result, error) {
	lock := w.locks.acquire(sid)
	defer w.locks.release(sid, lock)

	rec, err := w.loadSession(ctx, sid)
	if err != nil {
		return nil, err
	}
	if rec.Draft != nil {
		return resultFor(rec, CodeDraftInProgress), nil
	}

	info, err := imaging.Validate(photo.Data, imaging.Limits{
		MaxBytes:     w.cfg.MaxImageBytes,
		MaxDimension: w.cfg.MaxImageDim,
	})
	if err != nil {
		w.logger.Warn("rejected photo", "session", sid, "error", err)
		return &Result{State: StateAwaitingPhoto, Code: CodeInvalidImage, Detail: err.Error()}, nil
	}

	all := w.inventory.ListLocations(ctx)
	allowed := locations.FilterAllowed(all, w.cfg.FilterMode, w.cfg.Marker)
	if len(allowed) == 0 {
		w.logger.Warn("no allowed locations for capture", "session", sid, "fetched", len(all))
		res := &Result{State: StateAwaitingPhoto, Code: CodeNoLocations}
		if len(all) == 0 {
			res.Detail = w.inventory.LastError()
		}
		return res, nil
	}

	rec.State = string(StateAnalyzing)
	if err := w.saveSession(ctx, rec); err != nil {
		return nil, err
	}

	data, mimeType, err := imaging.Downscale(photo.Data, w.cfg.DownscaleDim)
	if err != nil {
		// Validate accepted the bytes, so send them as-is.
		data, mimeType = photo.Data, info.MIME
	}

	path, err := w.images.Save(sid, mimeType, data)
	if err != nil {
		rec.State = string(StateAwaitingPhoto)
		if perr := w.saveSession(ctx, rec); perr != nil {
			w.logger.Error("failed to reset session after cache failure", "session", sid, "error", perr)
		}
		return nil, fmt.Errorf("failed to cache photo for session %s: %w", sid, err)
	}

	language := photo.Language
	if language == "" {
		language = w.cfg.Language
	}
	model := photo.Model
	if model == "" {
		model = w.cfg.Model
	}

	proposal := w.analyzer.Analyze(ctx, classify.Request{
		Image:     data,
		MIMEType:  mimeType,
		Locations: allowed,
		Language:  language,
		Model:     model,
		Caption:   photo.Caption,
	})

	loc, err := locations.ResolveWithFallback(allowed, proposal.SuggestedLocation)
	if err != nil {
		// Unreachable while allowed is non-empty; clean up all the same.
		w.removeImage(sid, path)
		rec.State = string(StateAwaitingPhoto)
		if perr := w.saveSession(ctx, rec); perr != nil {
			return nil, perr
		}
		return &Result{State: StateAwaitingPhoto, Code: CodeNoLocations}, nil
	}

	rec.Draft = &domain.Draft{
		Name:             domain.TruncateName(proposal.Name),
		Description:      domain.TruncateDescription(proposal.Description),
		LocationID:       loc.ID,
		LocationName:     loc.Name,
		ImagePath:        path,
		ImageMIME:        mimeType,
		Caption:          photo.Caption,
		Language:         language,
		Model:            model,
		AllowedLocations: allowed,
		CreatedAt:        time.Now().UTC(),
	}
	rec.State = string(StateConfirming)
	if err := w.saveSession(ctx, rec); err != nil {
		w.removeImage(sid, path)
		return nil, err
	}

	w.logger.Info("draft ready",
		"session", sid,
		"name", rec.Draft.Name,
		"location", loc.Name,
		"degraded", proposal.Degraded,
	)
	return resultFor(rec, CodeOK), nil
}

// OnEditRequested moves a confirming session into the prompt state for one
// draft field.
func (w *Workflow) OnEditRequested(ctx context.Context, sid, field string) (*Result, error) {
	lock := w.locks.acquire(sid)
	defer w.locks.release(sid, lock)

	rec, err := w.loadSession(ctx, sid)
	if err != nil {
		return nil, err
	}
	if rec.Draft == nil {
		return resultFor(rec, CodeNoActiveDraft), nil
	}
	if !confirmable(State(rec.State)) {
		return resultFor(rec, CodeInvalidInput), nil
	}

	var next State
	switch field {
	case FieldName:
		next = StateEditingName
	case FieldDescription:
		next = StateEditingDescription
	case FieldLocation:
		next = StateSelectingLocation
	default:
		return resultFor(rec, CodeInvalidInput), nil
	}

	rec.State = string(next)
	if err := w.saveSession(ctx, rec); err != nil {
		return nil, err
	}
	return resultFor(rec, CodeOK), nil
}

// OnFieldEditSubmitted applies a new value to one draft field and returns to
// confirming. Values are trimmed and truncated to the draft limits; empty
// input is rejected without changing state. Accepted from the matching
// editing state or straight from confirming.
func (w *Workflow) OnFieldEditSubmitted(ctx context.Context, sid, field, value string) (*Result, error) {
	lock := w.locks.acquire(sid)
	defer w.locks.release(sid, lock)

	rec, err := w.loadSession(ctx, sid)
	if err != nil {
		return nil, err
	}
	if rec.Draft == nil {
		return resultFor(rec, CodeNoActiveDraft), nil
	}

	state := State(rec.State)
	value = strings.TrimSpace(value)

	switch field {
	case FieldName:
		if state != StateEditingName && !confirmable(state) {
			return resultFor(rec, CodeInvalidInput), nil
		}
		if value == "" {
			return resultFor(rec, CodeInvalidInput), nil
		}
		rec.Draft.Name = domain.TruncateName(value)
	case FieldDescription:
		if state != StateEditingDescription && !confirmable(state) {
			return resultFor(rec, CodeInvalidInput), nil
		}
		if value == "" {
			return resultFor(rec, CodeInvalidInput), nil
		}
		rec.Draft.Description = domain.TruncateDescription(value)
	default:
		return resultFor(rec, CodeInvalidInput), nil
	}

	rec.State = string(StateConfirming)
	if err := w.saveSession(ctx, rec); err != nil {
		return nil, err
	}
	return resultFor(rec, CodeOK), nil
}

// OnLocationChosen files the draft into one of the locations captured when
// the draft was created. The snapshot, not a fresh fetch, is authoritative:
// the choice list must not shift under the user mid-session.
func (w *Workflow) OnLocationChosen(ctx context.Context, sid, locationID string) (*Result, error) {
	lock := w.locks.acquire(sid)
	defer w.locks.release(sid, lock)

	rec, err := w.loadSession(ctx, sid)
	if err != nil {
		return nil, err
	}
	if rec.Draft == nil {
		return resultFor(rec, CodeNoActiveDraft), nil
	}
	state := State(rec.State)
	if state != StateSelectingLocation && !confirmable(state) {
		return resultFor(rec, CodeInvalidInput), nil
	}

	var chosen *domain.Location
	for i := range rec.Draft.AllowedLocations {
		if rec.Draft.AllowedLocations[i].ID == locationID {
			chosen = &rec.Draft.AllowedLocations[i]
			break
		}
	}
	if chosen == nil {
		return resultFor(rec, CodeUnknownLocation), nil
	}

	rec.Draft.LocationID = chosen.ID
	rec.Draft.LocationName = chosen.Name
	rec.State = string(StateConfirming)
	if err := w.saveSession(ctx, rec); err != nil {
		return nil, err
	}
	return resultFor(rec, CodeOK), nil
}

// OnReanalysisRequested reruns classification over the draft's cached image.
// From confirming with no hint it first asks for one; with a hint (or from
// the hint prompt, where empty means "no guidance") it re-classifies the
// existing draft in place. A second draft is never created.
func (w *Workflow) OnReanalysisRequested(ctx context.Context, sid, hint string) (*Result, error) {
	lock := w.locks.acquire(sid)
	defer w.locks.release(sid, lock)

	rec, err := w.loadSession(ctx, sid)
	if err != nil {
		return nil, err
	}
	if rec.Draft == nil {
		return resultFor(rec, CodeNoActiveDraft), nil
	}

	state := State(rec.State)
	hint = strings.TrimSpace(hint)

	if confirmable(state) && hint == "" {
		rec.State = string(StateAwaitingReanalysisHint)
		if err := w.saveSession(ctx, rec); err != nil {
			return nil, err
		}
		return resultFor(rec, CodeOK), nil
	}
	if state != StateAwaitingReanalysisHint && !confirmable(state) {
		return resultFor(rec, CodeInvalidInput), nil
	}

	if hint == "" {
		hint = fmt.Sprintf("The previous suggestion (%q) was rejected. Propose a materially different name and description.", rec.Draft.Name)
	}

	data, err := w.images.Load(rec.Draft.ImagePath)
	if err != nil {
		w.logger.Warn("cached photo unavailable for reanalysis", "session", sid, "error", err)
		return resultFor(rec, CodeInvalidImage), nil
	}

	proposal := w.analyzer.Analyze(ctx, classify.Request{
		Image:     data,
		MIMEType:  rec.Draft.ImageMIME,
		Locations: rec.Draft.AllowedLocations,
		Language:  rec.Draft.Language,
		Model:     rec.Draft.Model,
		Caption:   rec.Draft.Caption,
		Hint:      hint,
	})

	loc, err := locations.ResolveWithFallback(rec.Draft.AllowedLocations, proposal.SuggestedLocation)
	if err != nil {
		return resultFor(rec, CodeNoLocations), nil
	}

	rec.Draft.Name = domain.TruncateName(proposal.Name)
	rec.Draft.Description = domain.TruncateDescription(proposal.Description)
	rec.Draft.LocationID = loc.ID
	rec.Draft.LocationName = loc.Name
	rec.State = string(StateConfirming)
	if err := w.saveSession(ctx, rec); err != nil {
		return nil, err
	}

	w.logger.Info("draft reanalyzed",
		"session", sid,
		"name", rec.Draft.Name,
		"degraded", proposal.Degraded,
	)
	return resultFor(rec, CodeOK), nil
}

// OnBack abandons the current prompt and re-presents the confirm card
// without touching the draft.
func (w *Workflow) OnBack(ctx context.Context, sid string) (*Result, error) {
	lock := w.locks.acquire(sid)
	defer w.locks.release(sid, lock)

	rec, err := w.loadSession(ctx, sid)
	if err != nil {
		return nil, err
	}
	if rec.Draft == nil {
		return resultFor(rec, CodeNoActiveDraft), nil
	}

	switch State(rec.State) {
	case StateEditingName, StateEditingDescription, StateSelectingLocation, StateAwaitingReanalysisHint:
		rec.State = string(StateConfirming)
		if err := w.saveSession(ctx, rec); err != nil {
			return nil, err
		}
	}
	return resultFor(rec, CodeOK), nil
}

// OnConfirm commits the draft to the remote store. A hard failure leaves the
// draft intact in confirming so confirm can simply be retried; a photo
// upload failure after a successful create is a warning, never a rollback.
func (w *Workflow) OnConfirm(ctx context.Context, sid string) (*Result, error) {
	lock := w.locks.acquire(sid)
	defer w.locks.release(sid, lock)

	rec, err := w.loadSession(ctx, sid)
	if err != nil {
		return nil, err
	}
	if rec.Draft == nil {
		return resultFor(rec, CodeNoActiveDraft), nil
	}
	if !confirmable(State(rec.State)) {
		return resultFor(rec, CodeInvalidInput), nil
	}

	rec.State = string(StateCommitting)
	if err := w.saveSession(ctx, rec); err != nil {
		return nil, err
	}

	draft := rec.Draft
	item, err := w.inventory.CreateItem(ctx, domain.NewItem{
		Name:        draft.Name,
		Description: draft.Description,
		LocationID:  draft.LocationID,
		PhotoPath:   draft.ImagePath,
	})
	if err != nil {
		code := CodeRemoteRejected
		if retry.IsTransient(err) {
			code = CodeServiceUnavailable
		}
		rec.State = string(StateConfirming)
		if perr := w.saveSession(ctx, rec); perr != nil {
			return nil, perr
		}
		w.logger.Error("commit failed", "session", sid, "code", code, "error", err)
		res := resultFor(rec, code)
		res.Detail = w.inventory.LastError()
		return res, nil
	}

	w.removeImage(sid, draft.ImagePath)
	if derr := w.store.Delete(ctx, sid); derr != nil {
		w.logger.Error("failed to clear committed session", "session", sid, "error", derr)
	}

	code := CodeOK
	if item.PhotoUploadFailed {
		code = CodePhotoUploadFailed
	}
	w.logger.Info("item committed",
		"session", sid,
		"item_id", item.ID,
		"location", draft.LocationName,
		"photo_upload_failed", item.PhotoUploadFailed,
	)
	return &Result{State: StateAwaitingPhoto, Code: code, Item: item}, nil
}

// OnCancel discards the session unconditionally: cached image removed,
// session deleted, back to awaiting a photo.
func (w *Workflow) OnCancel(ctx context.Context, sid string) (*Result, error) {
	lock := w.locks.acquire(sid)
	defer w.locks.release(sid, lock)

	rec, err := w.loadSession(ctx, sid)
	if err != nil {
		return nil, err
	}
	if rec.Draft != nil {
		w.removeImage(sid, rec.Draft.ImagePath)
	}
	if err := w.store.Delete(ctx, sid); err != nil {
		return nil, fmt.Errorf("failed to delete session %s: %w", sid, err)
	}
	return &Result{State: StateAwaitingPhoto, Code: CodeOK}, nil
}

// Snapshot returns the session's current state without advancing it.
func (w *Workflow) Snapshot(ctx context.Context, sid string) (*Result, error) {
	rec, err := w.loadSession(ctx, sid)
	if err != nil {
		return nil, err
	}
	return resultFor(rec, CodeOK), nil
}

// removeImage deletes a cached draft image; failures are logged, not
// propagated, since cleanup must never mask the event outcome.
func (w *Workflow) removeImage(sid, path string) {
	if path == "" {
		return
	}
	if err := w.images.Remove(path); err != nil {
		w.logger.Warn("failed to remove cached photo", "session", sid, "path", path, "error", err)
	}
}
