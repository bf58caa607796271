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

package lift

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vhfsantos/HiCLift/chain"
	"github.com/vhfsantos/HiCLift/genome"
	"github.com/vhfsantos/HiCLift/pairs"
)

func testAssembly(t *testing.T, listing string) *genome.Assembly {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.chrom.sizes")
	if err := os.WriteFile(path, []byte(listing), 0666); err != nil {
		t.Fatal(err)
	}
	assembly, err := genome.ReadAssembly(path)
	if err != nil {
		t.Fatal(err)
	}
	return assembly
}

func testChains(t *testing.T, contents string) *chain.ChainMap {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.chain")
	if err := os.WriteFile(path, []byte(contents), 0666); err != nil {
		t.Fatal(err)
	}
	chains, err := chain.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return chains
}

func TestOrient(t *testing.T) {
	assembly := testAssembly(t, "chr1\t1000\nchr2\t800\n")
	var stats Stats

	r := &pairs.Record{Chrom1: "chr2", Pos1: 100, Strand1: '+', Chrom2: "chr1", Pos2: 200, Strand2: '-'}
	if !Orient(r, assembly, &stats) {
		t.Fatal("record on known chromosomes dropped")
	}
	if r.Chrom1 != "chr1" || r.Pos1 != 200 || r.Strand1 != '-' {
		t.Error("record with out-of-order chromosomes not flipped:", r)
	}

	// Same chromosome, positions out of order.
	r = &pairs.Record{Chrom1: "chr1", Pos1: 300, Chrom2: "chr1", Pos2: 100}
	Orient(r, assembly, &stats)
	if r.Pos1 != 100 || r.Pos2 != 300 {
		t.Error("intra-chromosomal record not flipped:", r)
	}

	// Bare names are rewritten to the canonical spelling.
	r = &pairs.Record{Chrom1: "1", Pos1: 100, Chrom2: "2", Pos2: 200}
	Orient(r, assembly, &stats)
	if r.Chrom1 != "chr1" || r.Chrom2 != "chr2" {
		t.Error("chromosome names not canonicalized:", r)
	}
	if stats.UnknownChrom != 0 {
		t.Error("unexpected unknown chromosome count")
	}
}

func TestOrientIdempotent(t *testing.T) {
	assembly := testAssembly(t, "chr1\t1000\nchr2\t800\n")
	var stats Stats
	r := &pairs.Record{Chrom1: "chr2", Pos1: 100, Strand1: '+', Chrom2: "chr1", Pos2: 200, Strand2: '-'}
	Orient(r, assembly, &stats)
	first := *r
	Orient(r, assembly, &stats)
	if r.Chrom1 != first.Chrom1 || r.Pos1 != first.Pos1 || r.Strand1 != first.Strand1 ||
		r.Chrom2 != first.Chrom2 || r.Pos2 != first.Pos2 || r.Strand2 != first.Strand2 {
		t.Error("orient is not idempotent:", first, *r)
	}
}

func TestOrientUnknownChrom(t *testing.T) {
	assembly := testAssembly(t, "chr1\t1000\n")
	var stats Stats
	r := &pairs.Record{Chrom1: "chr1", Pos1: 100, Chrom2: "chrUn_gl000220", Pos2: 200}
	if Orient(r, assembly, &stats) {
		t.Error("record on an unknown chromosome kept")
	}
	if stats.UnknownChrom != 1 {
		t.Error("unknown chromosome not counted")
	}
}

func TestLiftRecord(t *testing.T) {
	// chrA maps onto chr1 with an offset of 400 in [100, 150),
	// and reversed onto chr2 in [200, 250).
	chains := testChains(t,
		"chain 1000 chrA 1000 + 100 150 chr1 2000 + 500 550 1\n50\n\n"+
			"chain 900 chrA 1000 + 200 250 chr2 2000 - 300 350 2\n50\n")
	assembly := testAssembly(t, "chr1\t2000\nchr2\t2000\n")
	lifter := &Lifter{Chains: chains, Out: assembly}
	var stats Stats

	r := &pairs.Record{ID: "r1", Chrom1: "chrA", Pos1: 110, Strand1: '+', Chrom2: "chrA", Pos2: 130, Strand2: '-', Count: 1}
	if !lifter.LiftRecord(r, &stats) {
		t.Fatal("fully mapped record dropped")
	}
	if r.Chrom1 != "chr1" || r.Pos1 != 510 || r.Strand1 != '+' {
		t.Error("first endpoint lifted incorrectly:", r)
	}
	if r.Chrom2 != "chr1" || r.Pos2 != 530 || r.Strand2 != '-' {
		t.Error("second endpoint lifted incorrectly:", r)
	}

	// An endpoint on a reversed chain gets its strand flipped.
	r = &pairs.Record{Chrom1: "chrA", Pos1: 110, Strand1: '+', Chrom2: "chrA", Pos2: 201, Strand2: '+'}
	if !lifter.LiftRecord(r, &stats) {
		t.Fatal("record on a reversed chain dropped")
	}
	if r.Chrom2 != "chr2" || r.Strand2 != '-' {
		t.Error("reversed endpoint not strand-flipped:", r)
	}
	// 0-based source 200 maps to reversed 300, forward 2000-301=1699;
	// 1-based output, so source 201 lifts to 1700.
	if r.Pos2 != 1700 {
		t.Error("reversed endpoint lifted incorrectly:", r.Pos2)
	}
}

func TestLiftRecordDrops(t *testing.T) {
	chains := testChains(t, "chain 1000 chrA 1000 + 100 150 chr1 2000 + 500 550 1\n50\n")
	assembly := testAssembly(t, "chr1\t2000\n")
	lifter := &Lifter{Chains: chains, Out: assembly}
	var stats Stats

	// Second endpoint falls outside every chain block.
	r := &pairs.Record{Chrom1: "chrA", Pos1: 110, Chrom2: "chrA", Pos2: 500}
	if lifter.LiftRecord(r, &stats) {
		t.Error("record with an unmapped endpoint kept")
	}
	if stats.Unmapped != 1 {
		t.Error("unmapped endpoint not counted")
	}

	// First endpoint is on a chromosome no chain maps from.
	r = &pairs.Record{Chrom1: "chrZ", Pos1: 110, Chrom2: "chrA", Pos2: 120}
	if lifter.LiftRecord(r, &stats) {
		t.Error("record on an unknown source chromosome kept")
	}
	if stats.UnknownChrom != 1 {
		t.Error("unknown source chromosome not counted")
	}
}

func TestStatsMerge(t *testing.T) {
	var total, batch Stats
	batch.Read, batch.Written, batch.Malformed = 10, 8, 2
	total.Merge(&batch)
	total.Merge(&batch)
	if total.Read != 20 || total.Written != 16 || total.Malformed != 4 {
		t.Error("stats merged incorrectly:", total)
	}
	if total.Dropped() != 4 {
		t.Error("dropped count incorrect:", total.Dropped())
	}
}
