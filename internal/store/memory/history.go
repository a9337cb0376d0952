package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/history"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
)

type weighted struct {
	weight int
	tick   int64
}

// History is the history repository view of a Store.
type History struct{ s *Store }

// History returns the history repository.
func (s *Store) History() *History { return &History{s: s} }

func (h *History) Increment(_ context.Context, kind history.Kind, userID, key string, weight, maxKeys int) error {
	byUser, ok := h.s.weights[kind]
	if !ok {
		return apperrors.Invalid("unknown history kind %q", kind)
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	entries := byUser[userID]
	if entries == nil {
		entries = make(map[string]*weighted)
		byUser[userID] = entries
	}
	h.s.tick++
	if w, ok := entries[key]; ok {
		w.weight += weight
		w.tick = h.s.tick
	} else {
		entries[key] = &weighted{weight: weight, tick: h.s.tick}
	}
	if maxKeys > 0 && len(entries) > maxKeys {
		evict(entries, maxKeys)
	}
	return nil
}

// evict drops the lightest entries, least recently updated first, until
// keep remain.
func evict(entries map[string]*weighted, keep int) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		wa, wb := entries[a], entries[b]
		if c := cmp.Compare(wa.weight, wb.weight); c != 0 {
			return c
		}
		return cmp.Compare(wa.tick, wb.tick)
	})
	for _, k := range keys[:len(keys)-keep] {
		delete(entries, k)
	}
}

func (h *History) Weights(_ context.Context, kind history.Kind, userID string) (map[string]int, error) {
	byUser, ok := h.s.weights[kind]
	if !ok {
		return nil, apperrors.Invalid("unknown history kind %q", kind)
	}
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	out := make(map[string]int, len(byUser[userID]))
	for k, w := range byUser[userID] {
		out[k] = w.weight
	}
	return out, nil
}

var _ history.Repository = (*History)(nil)
