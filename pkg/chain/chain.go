// Package chain implements the continuity chain that binds an ordered
// sequence of segments together: each link folds the previous link's value
// into the next segment's hash, so truncating, reordering, or splicing
// segments changes every link from that point forward. The pairwise-fold
// shape follows the teacher's merkle hashPair (pkg/merkle/merkle.go),
// generalized from a balanced binary tree to a flat running chain since
// segments here arrive and must verify in strict sequence rather than as
// an unordered leaf set.
package chain

import (
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/primitives"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
)

// Link is one entry in a recorded chain: the hash of the segment's own
// content and the continuity value it claims to produce when folded onto
// its predecessor.
type Link struct {
	SegmentHash    []byte
	ContinuityHash []byte
}

// Genesis is the seed value the first segment's link is computed against.
// It doubles as a domain separator so a chain link can never be mistaken
// for a bare segment hash.
var Genesis = primitives.GenesisSeed

// SegmentHash hashes a single segment's plaintext chunk bytes.
func SegmentHash(data []byte) []byte {
	sum := primitives.Blake3(data)
	return sum[:]
}

// Next folds prev (the previous link, or Genesis for the first segment)
// and segmentHash into the next link: BLAKE3(prev || segmentHash).
func Next(prev, segmentHash []byte) []byte {
	buf := make([]byte, 0, len(prev)+len(segmentHash))
	buf = append(buf, prev...)
	buf = append(buf, segmentHash...)
	sum := primitives.Blake3(buf)
	return sum[:]
}

// BuildChain computes the full sequence of links for an ordered list of
// segment hashes, starting from Genesis. links[i] is the chain value after
// folding in segments[0..i].
func BuildChain(segmentHashes [][]byte) [][]byte {
	links := make([][]byte, len(segmentHashes))
	prev := Genesis
	for i, h := range segmentHashes {
		prev = Next(prev, h)
		links[i] = prev
	}
	return links
}

// FinalLink returns the chain value after folding in all of segmentHashes,
// i.e. the value a manifest binds to as its continuity commitment.
func FinalLink(segmentHashes [][]byte) []byte {
	prev := Genesis
	for _, h := range segmentHashes {
		prev = Next(prev, h)
	}
	return prev
}

// Verify recomputes the chain from segmentHashes and reports whether it
// terminates at expectedFinal. Any missing, reordered, or substituted
// segment changes every link from that point on and fails this check.
func Verify(segmentHashes [][]byte, expectedFinal []byte) bool {
	got := FinalLink(segmentHashes)
	return primitives.ConstantTimeCompare(got, expectedFinal)
}

// VerifyRecorded walks a manifest's recorded per-segment continuity hashes,
// recomputing each from its predecessor and comparing it to the value the
// manifest claims. A swap surfaces at the first differing index; a gap
// surfaces at the first skipped index. A removed final segment is not
// detected here: the remaining prefix is itself a valid chain, so
// truncation shows only against an expected final link (see Verify).
// An empty chain is rejected outright.
func VerifyRecorded(links []Link) *trustedgeerr.ChainError {
	if len(links) == 0 {
		return trustedgeerr.NewChainError(trustedgeerr.ChainEmpty)
	}
	prev := Genesis
	for i, link := range links {
		want := Next(prev, link.SegmentHash)
		if !primitives.ConstantTimeCompare(want, link.ContinuityHash) {
			return trustedgeerr.NewChainOutOfOrder(i)
		}
		prev = link.ContinuityHash
	}
	return nil
}
