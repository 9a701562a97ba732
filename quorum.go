package nodemanager

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
)

type voteEntry struct {
	body  []byte
	votes int
}

// voteTally counts identical answers by their canonical encoding and remembers the order
// in which each distinct answer was first seen.
type voteTally struct {
	index   map[uint64][]int
	entries []voteEntry
}

func newVoteTally() *voteTally {
	return &voteTally{index: make(map[uint64][]int)}
}

// add records one vote for body and returns the votes body has now.
func (t *voteTally) add(body []byte) int {
	h := xxhash.Sum64(body)
	for _, i := range t.index[h] {
		if bytes.Equal(t.entries[i].body, body) {
			t.entries[i].votes++
			return t.entries[i].votes
		}
	}
	t.index[h] = append(t.index[h], len(t.entries))
	t.entries = append(t.entries, voteEntry{body: body, votes: 1})
	return 1
}

// best returns the answer with the most votes. Ties go to the answer seen first.
func (t *voteTally) best() (voteEntry, bool) {
	if len(t.entries) == 0 {
		return voteEntry{}, false
	}
	best := t.entries[0]
	for _, e := range t.entries[1:] {
		if e.votes > best.votes {
			best = e
		}
	}
	return best, true
}

// requiredVotes is threshold percent of minQuorumSize, rounded to the nearest vote. Rounding
// down means the accepted share can fall below the literal percentage: at 60% of four nodes,
// two agreeing votes (50%) are enough.
func requiredVotes(minQuorumSize, threshold int) int {
	return (minQuorumSize*threshold + 50) / 100
}

// resolveVotes picks the answer to return. When enforce is set the answer also needs
// enough votes to meet the quorum threshold.
func (m *NodeManager) resolveVotes(tally *voteTally, enforce bool, lastErr error) ([]byte, error) {
	best, ok := tally.best()
	if !ok {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, &NodeError{Message: noResultMessage}
	}
	if !enforce {
		return best.body, nil
	}

	if best.votes >= requiredVotes(m.pool.minQuorumSize, m.pool.quorumThreshold) {
		quorumOutcomeMetric.WithLabelValues("reached").Add(1)
		return best.body, nil
	}
	quorumOutcomeMetric.WithLabelValues("threshold_not_met").Add(1)
	goLogger.Warnw("quorum not reached", "votes", best.votes, "answers", len(tally.entries),
		"minQuorumSize", m.pool.minQuorumSize, "threshold", m.pool.quorumThreshold)
	return nil, &QuorumThresholdError{QuorumSize: best.votes, MinimumThreshold: m.pool.minQuorumSize}
}
