package convert

import (
	"sync/atomic"
)

// Snapshot is the observation an agent's controller last acted on.
type Snapshot struct {
	Version uint64
	Step    int
	*Observation
}

// SnapshotStore keeps the latest published snapshot per agent. Publishing
// replaces a snapshot wholesale, so readers never see a partial write.
type SnapshotStore struct {
	slots   []atomic.Pointer[Snapshot]
	version atomic.Uint64
}

func NewSnapshotStore(agents int) *SnapshotStore {
	return &SnapshotStore{slots: make([]atomic.Pointer[Snapshot], agents)}
}

func (s *SnapshotStore) Agents() int { return len(s.slots) }

// Publish stores obs as agent's latest snapshot. Observations for agents
// outside the store are ignored and return nil.
func (s *SnapshotStore) Publish(step int, obs *Observation) *Snapshot {
	if obs == nil || obs.Agent < 0 || obs.Agent >= len(s.slots) {
		return nil
	}
	snap := &Snapshot{Version: s.version.Add(1), Step: step, Observation: obs}
	s.slots[obs.Agent].Store(snap)
	return snap
}

// PublishAll publishes a batch in agent order.
func (s *SnapshotStore) PublishAll(step int, obs []*Observation) {
	for _, o := range obs {
		s.Publish(step, o)
	}
}

// Latest returns agent's last snapshot, or nil if none was published.
func (s *SnapshotStore) Latest(agent int) *Snapshot {
	if agent < 0 || agent >= len(s.slots) {
		return nil
	}
	return s.slots[agent].Load()
}

// Reset drops every snapshot, e.g. at episode start.
func (s *SnapshotStore) Reset() {
	for i := range s.slots {
		s.slots[i].Store(nil)
	}
}
