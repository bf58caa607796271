// HiCLift: a high-performance tool for converting chromatin contact data
// between genome assemblies and between contact-data formats.
// Copyright (c) 2024-2026 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/vhfsantos/HiCLift/blob/master/LICENSE.txt>.

package chain

import (
	"fmt"
	"sort"
)

// A MalformedChain error reports a chain file whose contents are
// inconsistent with the UCSC chain format, for example block lengths
// that do not add up to the declared chain extents. It is fatal and
// aborts a run before any record is processed.
type MalformedChain struct {
	Path string
	Line int
	Msg  string
}

func (e *MalformedChain) Error() string {
	return fmt.Sprintf("malformed chain file %v, line %v: %v", e.Path, e.Line, e.Msg)
}

// Kind distinguishes the possible outcomes of a lift.
type Kind int

// Lift outcomes.
const (
	// Unmapped means no chain block covers the queried coordinates.
	Unmapped Kind = iota
	// Mapped means exactly one chain block covers the queried coordinates.
	Mapped
	// Ambiguous means more than one chain covers the queried
	// coordinates, which can happen with duplication-aware chains.
	Ambiguous
)

// A Target is a lifted interval in the target assembly, in forward
// coordinates. Reversed is true when the chain block maps the source
// interval to the opposite orientation.
type Target struct {
	Chrom    string
	Start    int64
	End      int64
	Reversed bool
}

// A Result is the outcome of lifting an interval or position. Targets
// holds one entry when Kind is Mapped, and all candidate targets
// sorted by (chrom, start) when Kind is Ambiguous.
type Result struct {
	Kind    Kind
	Targets []Target
}

// A block is one ungapped alignment between a source interval
// [tStart, tEnd) and a target interval of the same length starting at
// qStart. For reversed chains, qStart is a coordinate on the reversed
// target strand; Lift converts back to forward coordinates.
type block struct {
	tStart, tEnd int64
	qChrom       string
	qSize        int64
	qStart       int64
	qReversed    bool
}

// chromBlocks holds all blocks with the same source chromosome from
// all chains in the file, sorted by tStart. Blocks of a single chain
// never overlap, but blocks of different chains may; maxLen bounds how
// far Lift has to scan back from the binary search position.
type chromBlocks struct {
	blocks []block
	maxLen int64
}

// A ChainMap is the in-memory form of a UCSC chain file, indexed by
// source chromosome for point and interval lookup. It is immutable
// after Load and can be shared by any number of goroutines.
type ChainMap struct {
	chroms map[string]*chromBlocks
}

// covering returns all blocks that fully contain [start, end), in
// ascending tStart order.
func (cb *chromBlocks) covering(start, end int64) []block {
	blocks := cb.blocks
	i := sort.Search(len(blocks), func(i int) bool { return blocks[i].tStart > start })
	var hits []block
	for j := i - 1; j >= 0 && blocks[j].tStart+cb.maxLen > start; j-- {
		if b := blocks[j]; start >= b.tStart && end <= b.tEnd {
			hits = append(hits, b)
		}
	}
	for left, right := 0, len(hits)-1; left < right; left, right = left+1, right-1 {
		hits[left], hits[right] = hits[right], hits[left]
	}
	return hits
}

func (b block) target(start, end int64) Target {
	if b.qReversed {
		return Target{
			Chrom:    b.qChrom,
			Start:    b.qSize - (b.qStart + (end - b.tStart)),
			End:      b.qSize - (b.qStart + (start - b.tStart)),
			Reversed: true,
		}
	}
	return Target{
		Chrom: b.qChrom,
		Start: b.qStart + (start - b.tStart),
		End:   b.qStart + (end - b.tStart),
	}
}

// LiftInterval lifts the half-open, 0-based interval [start, end) on
// the given source chromosome. An interval is Mapped only when it lies
// fully inside a single chain block, so that the mapping is a pure
// affine offset; intervals that fall in a gap or straddle a block
// boundary are Unmapped.
func (m *ChainMap) LiftInterval(chrom string, start, end int64) Result {
	cb := m.chroms[chrom]
	if cb == nil {
		return Result{Kind: Unmapped}
	}
	hits := cb.covering(start, end)
	switch len(hits) {
	case 0:
		return Result{Kind: Unmapped}
	case 1:
		return Result{Kind: Mapped, Targets: []Target{hits[0].target(start, end)}}
	}
	targets := make([]Target, 0, len(hits))
	for _, b := range hits {
		targets = append(targets, b.target(start, end))
	}
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].Chrom != targets[j].Chrom {
			return targets[i].Chrom < targets[j].Chrom
		}
		return targets[i].Start < targets[j].Start
	})
	return Result{Kind: Ambiguous, Targets: targets}
}

// Lift lifts a single 0-based position by treating it as a zero-width
// interval of length 1. The lifted position is Targets[0].Start.
func (m *ChainMap) Lift(chrom string, pos int64) Result {
	return m.LiftInterval(chrom, pos, pos+1)
}

// HasChrom reports whether any chain maps from the given source
// chromosome.
func (m *ChainMap) HasChrom(chrom string) bool {
	return m.chroms[chrom] != nil
}
