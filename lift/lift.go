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

// Package lift maps individual contact records between genome
// assemblies and normalizes them to upper-triangle orientation.
package lift

import (
	"log"
	"sync/atomic"

	"github.com/vhfsantos/HiCLift/chain"
	"github.com/vhfsantos/HiCLift/genome"
	"github.com/vhfsantos/HiCLift/pairs"
)

// Stats counts the fates of the records that pass through a run.
// Workers tally into batch-local instances and merge them, so the
// shared instance sees one atomic add per counter per batch.
type Stats struct {
	Read         int64
	Written      int64
	Malformed    int64
	Unmapped     int64
	Ambiguous    int64
	UnknownChrom int64
}

// Merge atomically adds the counters of a batch-local tally.
func (s *Stats) Merge(batch *Stats) {
	atomic.AddInt64(&s.Read, batch.Read)
	atomic.AddInt64(&s.Written, batch.Written)
	atomic.AddInt64(&s.Malformed, batch.Malformed)
	atomic.AddInt64(&s.Unmapped, batch.Unmapped)
	atomic.AddInt64(&s.Ambiguous, batch.Ambiguous)
	atomic.AddInt64(&s.UnknownChrom, batch.UnknownChrom)
}

// Dropped returns the number of records read but not written.
func (s *Stats) Dropped() int64 {
	return s.Read - s.Written
}

// Log writes the run summary to the active logger.
func (s *Stats) Log() {
	log.Printf("Records read: %v.", s.Read)
	log.Printf("Records written: %v.", s.Written)
	log.Printf("Records dropped: %v (%v malformed, %v unmapped, %v ambiguous, %v on unknown chromosomes).",
		s.Dropped(), s.Malformed, s.Unmapped, s.Ambiguous, s.UnknownChrom)
}

// A Lifter maps contact records onto a destination assembly using a
// chain map. Both endpoints of a record must map uniquely for the
// record to survive.
type Lifter struct {
	Chains *chain.ChainMap
	Out    *genome.Assembly
}

func flipStrand(strand byte) byte {
	switch strand {
	case '+':
		return '-'
	case '-':
		return '+'
	}
	return strand
}

func (l *Lifter) liftPosition(chrom string, pos int64, strand byte, stats *Stats) (string, int64, byte, bool) {
	result := l.Chains.Lift(chrom, pos-1)
	switch result.Kind {
	case chain.Unmapped:
		if !l.Chains.HasChrom(chrom) {
			stats.UnknownChrom++
		} else {
			stats.Unmapped++
		}
		return "", 0, 0, false
	case chain.Ambiguous:
		stats.Ambiguous++
		return "", 0, 0, false
	}
	target := result.Targets[0]
	if target.Reversed {
		strand = flipStrand(strand)
	}
	return target.Chrom, target.Start + 1, strand, true
}

// LiftRecord maps both endpoints of a record in place and reorients
// the result. It returns false, with the reason counted in stats, if
// the record must be dropped.
func (l *Lifter) LiftRecord(r *pairs.Record, stats *Stats) bool {
	chrom1, pos1, strand1, ok := l.liftPosition(r.Chrom1, r.Pos1, r.Strand1, stats)
	if !ok {
		return false
	}
	chrom2, pos2, strand2, ok := l.liftPosition(r.Chrom2, r.Pos2, r.Strand2, stats)
	if !ok {
		return false
	}
	r.Chrom1, r.Pos1, r.Strand1 = chrom1, pos1, strand1
	r.Chrom2, r.Pos2, r.Strand2 = chrom2, pos2, strand2
	return Orient(r, l.Out, stats)
}

// Orient rewrites the chromosome names of a record to their canonical
// spelling in the assembly and flips the record if its endpoints are
// out of upper-triangle order. Records on chromosomes absent from the
// assembly are dropped and counted.
func Orient(r *pairs.Record, asm *genome.Assembly, stats *Stats) bool {
	rank1, canonical1, err := asm.Rank(r.Chrom1)
	if err != nil {
		stats.UnknownChrom++
		return false
	}
	rank2, canonical2, err := asm.Rank(r.Chrom2)
	if err != nil {
		stats.UnknownChrom++
		return false
	}
	r.Chrom1, r.Chrom2 = canonical1, canonical2
	if rank1 > rank2 || (rank1 == rank2 && r.Pos1 > r.Pos2) {
		r.Flip()
	}
	return true
}
