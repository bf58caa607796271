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

// Package binner aggregates contact records into sparse
// multi-resolution contact matrices, spilling sorted chunks to disk
// when a memory budget is exceeded.
package binner

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/exascience/pargo/parallel"
	psort "github.com/exascience/pargo/sort"
	"github.com/vhfsantos/HiCLift/genome"
	"github.com/vhfsantos/HiCLift/matrix"
	"github.com/vhfsantos/HiCLift/pairs"
	"github.com/willf/bitset"
)

type pixel struct {
	bin1, bin2 int64
	count      float64
}

const pixelBytes = 24

type pixelSorter []pixel

func pixelLess(p, q pixel) bool {
	if p.bin1 != q.bin1 {
		return p.bin1 < q.bin1
	}
	return p.bin2 < q.bin2
}

func (s pixelSorter) SequentialSort(i, j int) {
	part := s[i:j]
	sort.Slice(part, func(i, j int) bool {
		return pixelLess(part[i], part[j])
	})
}

func (s pixelSorter) NewTemp() psort.StableSorter {
	return pixelSorter(make([]pixel, len(s)))
}

func (s pixelSorter) Len() int {
	return len(s)
}

func (s pixelSorter) Less(i, j int) bool {
	return pixelLess(s[i], s[j])
}

func (s pixelSorter) Assign(source psort.StableSorter) func(i, j, len int) {
	dst, src := s, source.(pixelSorter)
	return func(i, j, len int) {
		copy(dst[i:i+len], src[j:j+len])
	}
}

// aggregate sums runs of equal (bin1, bin2) keys in a sorted slice.
// The result shares memory with the argument.
func aggregate(pixels []pixel) []pixel {
	out := pixels[:0]
	for _, px := range pixels {
		if n := len(out); n > 0 && out[n-1].bin1 == px.bin1 && out[n-1].bin2 == px.bin2 {
			out[n-1].count += px.count
		} else {
			out = append(out, px)
		}
	}
	return out
}

// A Binner accumulates finest-resolution pixels partitioned by the
// first chromosome of each pair. Partitions own disjoint ascending
// bin1 ranges, so merged partitions concatenate into one globally
// sorted pixels table. Add is sequential; sorting, spilling, and
// merging run in parallel. Coarser resolutions are derived from the
// finest staging files afterwards.
type Binner struct {
	assembly    *genome.Assembly
	resolutions []int64
	stagingDir  string
	threads     int

	nchrom     int
	offsets    []int64
	maxPixels  int64
	buffered   int64
	partitions [][]pixel
	live       *bitset.BitSet
	spills     []*spillFile
}

// New creates a Binner. The resolutions must be ascending and every
// resolution must be a multiple of the finest, so that coarser
// matrices can be derived exactly from finer ones. The memory budget
// bounds the pixel buffers, not total process memory.
func New(assembly *genome.Assembly, resolutions []int64, stagingDir string, memory int64, threads int) (*Binner, error) {
	if len(resolutions) == 0 {
		return nil, fmt.Errorf("no resolutions given")
	}
	for i, resolution := range resolutions {
		if resolution <= 0 {
			return nil, fmt.Errorf("invalid resolution %v", resolution)
		}
		if i > 0 && resolution <= resolutions[i-1] {
			return nil, fmt.Errorf("resolutions must be strictly ascending")
		}
		if resolution%resolutions[0] != 0 {
			return nil, fmt.Errorf("resolution %v is not a multiple of the finest resolution %v", resolution, resolutions[0])
		}
	}
	maxPixels := memory / pixelBytes
	if maxPixels < 1 {
		maxPixels = 1
	}
	nchrom := assembly.Count()
	return &Binner{
		assembly:    assembly,
		resolutions: resolutions,
		stagingDir:  stagingDir,
		threads:     threads,
		nchrom:      nchrom,
		offsets:     matrix.BinOffsets(assembly, resolutions[0]),
		maxPixels:   maxPixels,
		partitions:  make([][]pixel, nchrom),
		live:        bitset.New(uint(nchrom)),
	}, nil
}

// Add buffers one contact record. The record must already be oriented,
// with canonical chromosome names. A record without an explicit count
// contributes 1.
func (b *Binner) Add(r *pairs.Record) error {
	finest := b.resolutions[0]
	rank1 := b.assembly.MustRank(r.Chrom1)
	rank2 := b.assembly.MustRank(r.Chrom2)
	count := r.Count
	if count == 0 {
		count = 1
	}
	px := pixel{
		bin1:  b.offsets[rank1] + (r.Pos1-1)/finest,
		bin2:  b.offsets[rank2] + (r.Pos2-1)/finest,
		count: count,
	}
	b.partitions[rank1] = append(b.partitions[rank1], px)
	b.live.Set(uint(rank1))
	b.buffered++
	if b.buffered >= b.maxPixels {
		return b.spill()
	}
	return nil
}

// sortPartition sorts and aggregates one partition buffer in place.
func (b *Binner) sortPartition(p int) {
	psort.StableSort(pixelSorter(b.partitions[p]))
	b.partitions[p] = aggregate(b.partitions[p])
}

// Finalize sorts and merges everything buffered and spilled, writes
// the finest-resolution staging files, and derives the coarser
// resolutions. The Binner cannot be used afterwards.
func (b *Binner) Finalize() error {
	for _, p := range b.livePartitions() {
		b.sortPartition(p)
	}
	if err := b.mergePartitions(); err != nil {
		return err
	}
	for _, spill := range b.spills {
		if err := os.Remove(spill.path); err != nil {
			return err
		}
	}
	for _, resolution := range b.resolutions {
		if err := matrix.WriteBins(b.stagingDir, b.assembly, resolution); err != nil {
			return err
		}
	}
	for i := 1; i < len(b.resolutions); i++ {
		coarse := b.resolutions[i]
		if err := b.derive(b.finerDivisor(coarse), coarse); err != nil {
			return err
		}
	}
	return nil
}

// finerDivisor returns the closest finer resolution that divides
// coarse. The finest resolution always qualifies.
func (b *Binner) finerDivisor(coarse int64) int64 {
	finer := b.resolutions[0]
	for _, resolution := range b.resolutions {
		if resolution < coarse && coarse%resolution == 0 {
			finer = resolution
		}
	}
	return finer
}

func (b *Binner) livePartitions() []int {
	var live []int
	for p, ok := b.live.NextSet(0); ok; p, ok = b.live.NextSet(p + 1) {
		live = append(live, int(p))
	}
	return live
}

func (b *Binner) partFile(p int) string {
	return filepath.Join(b.stagingDir, fmt.Sprintf("part-%v.txt", p))
}

// mergePartitions merges the buffered and spilled chunks of every live
// partition into per-partition pixel files, in parallel, and
// concatenates them in partition order into the finest pixels table.
// Partitions are keyed by the first chromosome, so their bin1 ranges
// are disjoint and ascending, and the concatenation is globally sorted
// by (bin1, bin2).
func (b *Binner) mergePartitions() (err error) {
	live := b.livePartitions()
	var firstErr error
	var mutex sync.Mutex
	parallel.Range(0, len(live), b.threads, func(low, high int) {
		for i := low; i < high; i++ {
			if merr := b.mergePartition(live[i]); merr != nil {
				mutex.Lock()
				if firstErr == nil {
					firstErr = merr
				}
				mutex.Unlock()
			}
		}
	})
	if firstErr != nil {
		return firstErr
	}
	out, err := os.Create(matrix.PixelsFile(b.stagingDir, b.resolutions[0]))
	if err != nil {
		return err
	}
	defer func() {
		if nerr := out.Close(); err == nil {
			err = nerr
		}
	}()
	for _, p := range live {
		part, err := os.Open(b.partFile(p))
		if err != nil {
			return err
		}
		_, err = io.Copy(out, part)
		if nerr := part.Close(); err == nil {
			err = nerr
		}
		if err != nil {
			return err
		}
		if err := os.Remove(b.partFile(p)); err != nil {
			return err
		}
	}
	return nil
}

// mergePartition performs a k-way merge of one partition's in-memory
// buffer and its spilled segments, summing equal keys, and writes the
// result as text pixel lines.
func (b *Binner) mergePartition(p int) (err error) {
	var sources []pixelSource
	if len(b.partitions[p]) > 0 {
		sources = append(sources, &memSource{pixels: b.partitions[p]})
	}
	for _, spill := range b.spills {
		if segment, ok := spill.segments[p]; ok {
			source, serr := spill.openSegment(segment)
			if serr != nil {
				return serr
			}
			sources = append(sources, source)
		}
	}
	defer func() {
		for _, source := range sources {
			if nerr := source.close(); err == nil {
				err = nerr
			}
		}
	}()
	file, err := os.Create(b.partFile(p))
	if err != nil {
		return err
	}
	defer func() {
		if nerr := file.Close(); err == nil {
			err = nerr
		}
	}()
	out := bufio.NewWriter(file)
	if err := mergeSources(sources, out); err != nil {
		return err
	}
	b.partitions[p] = nil
	return out.Flush()
}

func mergeSources(sources []pixelSource, out *bufio.Writer) error {
	heads := make([]pixel, len(sources))
	alive := make([]bool, len(sources))
	for i, source := range sources {
		px, ok, err := source.next()
		if err != nil {
			return err
		}
		heads[i], alive[i] = px, ok
	}
	var current pixel
	haveCurrent := false
	var buf []byte
	flush := func(px pixel) error {
		buf = matrix.AppendPixelLine(buf[:0], px.bin1, px.bin2, px.count)
		_, err := out.Write(buf)
		return err
	}
	for {
		min := -1
		for i := range sources {
			if alive[i] && (min < 0 || pixelLess(heads[i], heads[min])) {
				min = i
			}
		}
		if min < 0 {
			break
		}
		px := heads[min]
		next, ok, err := sources[min].next()
		if err != nil {
			return err
		}
		heads[min], alive[min] = next, ok
		if haveCurrent && current.bin1 == px.bin1 && current.bin2 == px.bin2 {
			current.count += px.count
		} else {
			if haveCurrent {
				if err := flush(current); err != nil {
					return err
				}
			}
			current, haveCurrent = px, true
		}
	}
	if haveCurrent {
		return flush(current)
	}
	return nil
}
