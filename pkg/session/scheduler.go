package session

import (
	"context"
	"time"

	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/mapper"
)

// scheduleSaveLocked marks the session dirty, surfaces "saving"
// immediately, and arms (or re-arms) the debounce timer. If a save is
// already in flight it only sets the pending flag: the drain after
// completion picks the edit up. Saves are never scheduled before hydration.
func (s *Store) scheduleSaveLocked() {
	if s.closed || !s.hydrated {
		return
	}
	s.dirty = true
	s.saveState = domain.SaveSaving
	s.saveErr = nil
	if s.hooks.OnSaveScheduled != nil {
		s.hooks.OnSaveScheduled(&domain.SaveEvent{Graph: s.name, Version: s.baseline.Version})
	}
	if s.inFlight {
		s.pending = true
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(s.debounce, s.flush)
}

// flush fires when the debounce window elapses. It builds the payload from
// the current model, clears dirty and launches exactly one save request.
func (s *Store) flush() {
	s.mu.Lock()
	s.timer = nil
	if s.closed || s.inFlight || !s.dirty {
		s.mu.Unlock()
		return
	}
	doc, err := s.buildPayloadLocked()
	if err != nil {
		// Programming error (metadata missing). dirty stays set; nothing
		// is sent, nothing is silently dropped.
		s.saveState = domain.SaveError
		s.saveErr = err
		s.logger.Error("refusing to save inconsistent model", "graph", s.name, "err", err)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.publish(snap)
		return
	}
	s.dirty = false
	s.inFlight = true
	if s.hooks.OnSaveStart != nil {
		s.hooks.OnSaveStart(&domain.SaveEvent{Graph: doc.Name, Version: doc.Version})
	}
	s.mu.Unlock()

	go s.runSave(doc)
}

// RetrySave restarts the save cycle after a failure without waiting for the
// next mutation. No-op unless there is unsaved content.
func (s *Store) RetrySave() {
	s.mu.Lock()
	if s.closed || !s.dirty || s.inFlight {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.saveState = domain.SaveSaving
	s.saveErr = nil
	s.mu.Unlock()
	s.flush()
}

// runSave performs save requests until the model is clean. At most one
// request is ever outstanding; the loop is the drain.
func (s *Store) runSave(doc *domain.Document) {
	for doc != nil {
		start := s.clock.Now()
		baseline, err := s.gateway.SaveGraph(context.Background(), doc)
		doc = s.completeSave(baseline, err, start)
	}
}

// completeSave applies the result of one save request and returns the next
// payload when dirty/pending accumulated during the flight.
func (s *Store) completeSave(accepted *domain.Baseline, err error, started time.Time) *domain.Document {
	duration := s.clock.Now().Sub(started)

	s.mu.Lock()
	if s.closed {
		// Session torn down while the request was out: discard the result.
		s.mu.Unlock()
		return nil
	}
	s.inFlight = false

	if err != nil {
		// Restore dirty so the content is not silently lost. No retry
		// timer: the next mutation or an explicit RetrySave restarts the
		// cycle.
		s.dirty = true
		s.pending = false
		s.saveState = domain.SaveError
		s.saveErr = err
		if s.hooks.OnSaveResult != nil {
			s.hooks.OnSaveResult(&domain.SaveEvent{
				Graph:    s.name,
				Version:  s.baseline.Version,
				Outcome:  domain.SaveOutcomeFailure,
				Duration: duration,
				Err:      err,
			})
		}
		s.logger.Warn("graph save failed", "graph", s.name, "err", err)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.publish(snap)
		return nil
	}

	s.baseline = domain.Baseline{
		Name:    accepted.Name,
		Version: accepted.Version,
		Edges:   append([]domain.Edge(nil), accepted.Edges...),
	}
	if s.hooks.OnSaveResult != nil {
		s.hooks.OnSaveResult(&domain.SaveEvent{
			Graph:    accepted.Name,
			Version:  accepted.Version,
			Outcome:  domain.SaveOutcomeSuccess,
			Duration: duration,
		})
	}

	if s.dirty || s.pending {
		// Edits landed during the flight: drain immediately, no debounce.
		s.pending = false
		next, buildErr := s.buildPayloadLocked()
		if buildErr != nil {
			s.saveState = domain.SaveError
			s.saveErr = buildErr
			s.logger.Error("refusing to save inconsistent model", "graph", s.name, "err", buildErr)
			snap := s.snapshotLocked()
			s.mu.Unlock()
			s.publish(snap)
			return nil
		}
		s.dirty = false
		s.inFlight = true
		if s.hooks.OnSaveStart != nil {
			s.hooks.OnSaveStart(&domain.SaveEvent{Graph: next.Name, Version: next.Version})
		}
		s.mu.Unlock()
		return next
	}

	// Edges baseline adopted; with no pending edits the live list can take
	// server-assigned identifiers as well.
	s.edges = append([]domain.Edge(nil), accepted.Edges...)
	s.saveState = domain.SaveSaved
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	s.logger.Debug("graph saved", "graph", accepted.Name, "version", accepted.Version)
	return nil
}

// buildPayloadLocked reconstructs the persisted document from live nodes,
// shadow metadata and the maintained edge list, anchored on the baseline
// version. The live name wins so renames persist.
func (s *Store) buildPayloadLocked() (*domain.Document, error) {
	anchor := s.baseline
	anchor.Name = s.name
	return mapper.BuildSaveDocument(anchor, s.nodes, s.metadata, s.edges)
}
