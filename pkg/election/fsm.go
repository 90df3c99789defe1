// Copyright 2025 Takhin Data, Inc.

package election

import (
	"encoding/json"
	"io"

	"github.com/hashicorp/raft"
)

// fsm is a near-trivial raft.FSM. The partition service never replicates
// its partition table or migration history through Raft: a newly elected
// master reconciles state by fetching it from the rest of the cluster
// (FetchPartitionStateOperation), not by reading a Raft log. Raft here
// exists for exactly one purpose, electing a single master, so its FSM
// has no domain commands to apply.
type fsm struct{}

func newFSM() *fsm {
	return &fsm{}
}

// Apply is never expected to receive entries in normal operation; a
// no-op command type is accepted so raft.Raft.Apply keeps working for
// cluster-membership changes proposed through the Raft API itself, which
// route through AddVoter/RemoveServer rather than fsm.Apply.
func (f *fsm) Apply(log *raft.Log) interface{} {
	return nil
}

func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{}, nil
}

func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var discard struct{}
	return json.NewDecoder(rc).Decode(&discard)
}

type fsmSnapshot struct{}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(struct{}{}); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
