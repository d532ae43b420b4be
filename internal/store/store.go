package store

import (
	"sort"
	"sync"

	"github.com/example/annotation-sync/internal/types"
)

// Store is the identity-indexed annotation store for one track. It reflects
// only server-confirmed state: the track's reconciler is its single writer,
// while UI collaborators read concurrently.
type Store struct {
	mu       sync.RWMutex
	track    types.TrackID
	features map[types.FeatureID]types.Feature
}

// New constructs an empty store for a track.
func New(track types.TrackID) *Store {
	return &Store{track: track, features: make(map[types.FeatureID]types.Feature)}
}

// Track returns the track this store partitions.
func (s *Store) Track() types.TrackID { return s.track }

// Len returns the number of features held, sub-features included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.features)
}

// Get looks a feature up by id.
func (s *Store) Get(id types.FeatureID) (types.Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.features[id]
	if !ok {
		return types.Feature{}, false
	}
	return f.Clone(), true
}

// Contains reports whether an entry with id exists.
func (s *Store) Contains(id types.FeatureID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.features[id]
	return ok
}

// Insert adds f only if no entry with the same id exists. It reports whether
// the feature was inserted.
func (s *Store) Insert(f types.Feature) bool {
	return s.InsertTree([]types.Feature{f})
}

// InsertTree adds a flattened feature tree whose first element is the root.
// Nothing is written when the root id is already present.
func (s *Store) InsertTree(nodes []types.Feature) bool {
	if len(nodes) == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.features[nodes[0].ID]; exists {
		return false
	}
	s.putLocked(nodes)
	return true
}

// Replace overwrites the entry for f.ID, inserting it when absent.
func (s *Store) Replace(f types.Feature) {
	s.ReplaceTree([]types.Feature{f})
}

// ReplaceTree drops the existing subtree rooted at nodes[0].ID and writes the
// incoming tree in its place. No field of the previous entry survives.
func (s *Store) ReplaceTree(nodes []types.Feature) {
	if len(nodes) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	root := nodes[0].ID
	if old, ok := s.features[root]; ok {
		s.deleteSubtreeLocked(old.ID)
		if old.ParentID != nodes[0].ParentID {
			s.unlinkLocked(old.ParentID, root)
		}
	}
	s.putLocked(nodes)
}

// Delete removes the entry for id together with its descendants. Deleting an
// unknown id is a no-op and reports false.
func (s *Store) Delete(id types.FeatureID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.features[id]
	if !ok {
		return false
	}
	s.deleteSubtreeLocked(id)
	s.unlinkLocked(f.ParentID, id)
	return true
}

// Parent returns the owning feature of id when both are present.
func (s *Store) Parent(id types.FeatureID) (types.Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.features[id]
	if !ok || f.ParentID == "" {
		return types.Feature{}, false
	}
	p, ok := s.features[f.ParentID]
	if !ok {
		return types.Feature{}, false
	}
	return p.Clone(), true
}

// Children returns the sub-features of id in their declared order.
func (s *Store) Children(id types.FeatureID) []types.Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.features[id]
	if !ok {
		return nil
	}
	out := make([]types.Feature, 0, len(f.Children))
	for _, childID := range f.Children {
		if child, ok := s.features[childID]; ok {
			out = append(out, child.Clone())
		}
	}
	return out
}

// Root ascends parent links from id to its top-level ancestor. When a parent
// is missing from the store the highest present feature is returned.
func (s *Store) Root(id types.FeatureID) (types.Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.features[id]
	if !ok {
		return types.Feature{}, false
	}
	seen := map[types.FeatureID]struct{}{f.ID: {}}
	for f.ParentID != "" {
		p, ok := s.features[f.ParentID]
		if !ok {
			break
		}
		if _, loop := seen[p.ID]; loop {
			break
		}
		seen[p.ID] = struct{}{}
		f = p
	}
	return f.Clone(), true
}

// Roots returns every top-level feature ordered by location, then id. A
// feature whose parent is not stored, such as a transcript naming an unloaded
// gene, is top-level.
func (s *Store) Roots() []types.Feature {
	s.mu.RLock()
	out := make([]types.Feature, 0, len(s.features))
	for _, f := range s.features {
		if _, owned := s.features[f.ParentID]; f.ParentID == "" || !owned {
			out = append(out, f.Clone())
		}
	}
	s.mu.RUnlock()

	sortFeatures(out)
	return out
}

// Snapshot returns every stored feature ordered by location, then id.
func (s *Store) Snapshot() []types.Feature {
	s.mu.RLock()
	out := make([]types.Feature, 0, len(s.features))
	for _, f := range s.features {
		out = append(out, f.Clone())
	}
	s.mu.RUnlock()

	sortFeatures(out)
	return out
}

func (s *Store) putLocked(nodes []types.Feature) {
	for _, n := range nodes {
		s.features[n.ID] = n.Clone()
	}
	root := nodes[0]
	if root.ParentID == "" {
		return
	}
	if parent, ok := s.features[root.ParentID]; ok {
		for _, c := range parent.Children {
			if c == root.ID {
				return
			}
		}
		parent.Children = append(append([]types.FeatureID(nil), parent.Children...), root.ID)
		s.features[parent.ID] = parent
	}
}

func (s *Store) deleteSubtreeLocked(id types.FeatureID) {
	f, ok := s.features[id]
	if !ok {
		return
	}
	delete(s.features, id)
	for _, c := range f.Children {
		if child, ok := s.features[c]; ok && child.ParentID == id {
			s.deleteSubtreeLocked(c)
		}
	}
}

func (s *Store) unlinkLocked(parentID, childID types.FeatureID) {
	if parentID == "" {
		return
	}
	parent, ok := s.features[parentID]
	if !ok {
		return
	}
	kept := make([]types.FeatureID, 0, len(parent.Children))
	for _, c := range parent.Children {
		if c != childID {
			kept = append(kept, c)
		}
	}
	parent.Children = kept
	s.features[parentID] = parent
}

func sortFeatures(features []types.Feature) {
	sort.SliceStable(features, func(i, j int) bool {
		a, b := features[i], features[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.ID < b.ID
	})
}
