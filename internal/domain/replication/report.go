package replication

import "time"

// PeerPresence is one peer's answer to a replication probe.
type PeerPresence struct {
	PeerID     string        `json:"peer_id"`
	Present    bool          `json:"present"`
	MetadataID string        `json:"metadata_id,omitempty"`
	Status     string        `json:"status,omitempty"`
	Latency    time.Duration `json:"-"`
	LatencyMS  int64         `json:"latency_ms"`
	Error      string        `json:"error,omitempty"`
}

// Report aggregates a replication probe across peers.
type Report struct {
	AssociatedID string         `json:"associated_id"`
	Peers        []PeerPresence `json:"peers"`
	CheckedAt    time.Time      `json:"checked_at"`
}

// Present returns the ids of peers holding the record.
func (r Report) Present() []string {
	var out []string
	for _, p := range r.Peers {
		if p.Present {
			out = append(out, p.PeerID)
		}
	}
	return out
}

// Absent returns the ids of peers that answered without the record.
func (r Report) Absent() []string {
	var out []string
	for _, p := range r.Peers {
		if !p.Present && p.Error == "" {
			out = append(out, p.PeerID)
		}
	}
	return out
}

// Unreachable returns the ids of peers that failed to answer.
func (r Report) Unreachable() []string {
	var out []string
	for _, p := range r.Peers {
		if p.Error != "" {
			out = append(out, p.PeerID)
		}
	}
	return out
}

// FullyReplicated reports whether every probed peer holds the same record id.
func (r Report) FullyReplicated() bool {
	if len(r.Peers) == 0 {
		return false
	}
	id := r.Peers[0].MetadataID
	for _, p := range r.Peers {
		if !p.Present || p.MetadataID != id {
			return false
		}
	}
	return true
}

// SchemaReport compares the mirror's columns with the expected field list.
type SchemaReport struct {
	Expected []string `json:"expected"`
	Actual   []string `json:"actual"`
	Missing  []string `json:"missing"`
	Extra    []string `json:"extra,omitempty"`
}

// OK reports whether no expected field is missing.
func (s SchemaReport) OK() bool { return len(s.Missing) == 0 }
