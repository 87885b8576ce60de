// Package catalog keeps the user's locally registered raw materials. The
// list is loaded from and saved to whatever Persistence the host injects.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/feedopt/feedopt/pkg/formulation"
)

// RawMaterial is one locally registered ingredient.
type RawMaterial struct {
	Name        string             `json:"nome"`
	CostPerUnit float64            `json:"custo"`
	Nutrients   map[string]float64 `json:"nutrientes"`
}

// Persistence loads and saves the whole material list.
type Persistence interface {
	LoadMaterials(ctx context.Context) ([]RawMaterial, error)
	SaveMaterials(ctx context.Context, materials []RawMaterial) error
}

// Locker runs fn while holding a lock shared by every process writing the
// persisted list.
type Locker func(fn func() error) error

var (
	ErrNameRequired = errors.New("material name is required")
	ErrInvalidCost  = errors.New("material cost must be a non-negative number")
	ErrNotFound     = errors.New("material not found")
)

// Store is the in-memory list plus its persistence hooks. It is safe for
// concurrent use. Add and Remove re-read the persisted list before changing
// it, so writers in other processes are not overwritten.
type Store struct {
	mu        sync.RWMutex
	p         Persistence
	lock      Locker
	materials []RawMaterial
}

// NewStore returns an empty store. Call Load to read persisted materials.
func NewStore(p Persistence) *Store {
	return &Store{p: p}
}

// SetLocker makes Add and Remove run their read-modify-write cycle under l.
func (s *Store) SetLocker(l Locker) {
	s.mu.Lock()
	s.lock = l
	s.mu.Unlock()
}

// Load replaces the in-memory list with the persisted one.
func (s *Store) Load(ctx context.Context) error {
	if s.p == nil {
		return nil
	}
	ms, err := s.p.LoadMaterials(ctx)
	if err != nil {
		return fmt.Errorf("load materials: %w", err)
	}
	s.mu.Lock()
	s.materials = ms
	s.mu.Unlock()
	return nil
}

// Add registers m, replacing any material with the same name, and saves.
func (s *Store) Add(ctx context.Context, m RawMaterial) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return ErrNameRequired
	}
	if m.CostPerUnit < 0 || math.IsNaN(m.CostPerUnit) || math.IsInf(m.CostPerUnit, 0) {
		return ErrInvalidCost
	}
	if m.Nutrients == nil {
		m.Nutrients = map[string]float64{}
	}

	return s.mutate(ctx, func(cur []RawMaterial) ([]RawMaterial, error) {
		next := make([]RawMaterial, 0, len(cur)+1)
		replaced := false
		for _, c := range cur {
			if c.Name == m.Name {
				next = append(next, m)
				replaced = true
				continue
			}
			next = append(next, c)
		}
		if !replaced {
			next = append(next, m)
		}
		return next, nil
	})
}

// Remove deletes the named material and saves.
func (s *Store) Remove(ctx context.Context, name string) error {
	return s.mutate(ctx, func(cur []RawMaterial) ([]RawMaterial, error) {
		next := make([]RawMaterial, 0, len(cur))
		for _, c := range cur {
			if c.Name != name {
				next = append(next, c)
			}
		}
		if len(next) == len(cur) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return next, nil
	})
}

// List returns a copy of the materials in registration order.
func (s *Store) List() []RawMaterial {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RawMaterial, len(s.materials))
	copy(out, s.materials)
	return out
}

// Extras returns the materials the remote catalog does not know, in the
// shape the optimization request carries them.
func (s *Store) Extras(vocab formulation.Vocabulary) map[string]formulation.ExtraMaterial {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]formulation.ExtraMaterial)
	for _, m := range s.materials {
		if vocab.Contains(formulation.KindMaterial, m.Name) {
			continue
		}
		nutrients := make(map[string]float64, len(m.Nutrients))
		for k, v := range m.Nutrients {
			nutrients[k] = v
		}
		out[m.Name] = formulation.ExtraMaterial{CostPerUnit: m.CostPerUnit, Nutrients: nutrients}
	}
	return out
}

// Merge returns remote extended with the local material names and the
// nutrients they declare, so constraints can target them too.
func (s *Store) Merge(remote formulation.Vocabulary) formulation.Vocabulary {
	out := formulation.Vocabulary{
		Materials: append([]string{}, remote.Materials...),
		Nutrients: append([]string{}, remote.Nutrients...),
	}
	for _, m := range s.List() {
		if !out.Contains(formulation.KindMaterial, m.Name) {
			out.Materials = append(out.Materials, m.Name)
		}
	}
	for _, n := range s.NutrientNames() {
		if !out.Contains(formulation.KindNutrient, n) {
			out.Nutrients = append(out.Nutrients, n)
		}
	}
	return out
}

// NutrientNames lists every nutrient used by any registered material.
func (s *Store) NutrientNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var names []string
	for _, m := range s.materials {
		for k := range m.Nutrients {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	return names
}

// mutate applies change to the freshest copy of the list and saves the
// result, under the Locker when one is set.
func (s *Store) mutate(ctx context.Context, change func(cur []RawMaterial) ([]RawMaterial, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := func() error {
		cur := s.materials
		if s.p != nil {
			ms, err := s.p.LoadMaterials(ctx)
			if err != nil {
				return fmt.Errorf("load materials: %w", err)
			}
			cur = ms
		}
		next, err := change(cur)
		if err != nil {
			s.materials = cur
			return err
		}
		if s.p != nil {
			if err := s.p.SaveMaterials(ctx, next); err != nil {
				return fmt.Errorf("save materials: %w", err)
			}
		}
		s.materials = next
		return nil
	}
	if s.lock != nil {
		return s.lock(run)
	}
	return run()
}
