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

package binner

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// A spill file holds the sorted, aggregated pixels of every partition
// that was non-empty when a memory budget overflow forced a spill,
// as fixed-width binary triples. The segments index records where each
// partition's run lives in the file.
type segment struct {
	offset int64
	n      int64
}

type spillFile struct {
	path     string
	segments map[int]segment
}

func encodePixel(buf *[pixelBytes]byte, px pixel) {
	binary.LittleEndian.PutUint64(buf[0:], uint64(px.bin1))
	binary.LittleEndian.PutUint64(buf[8:], uint64(px.bin2))
	binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(px.count))
}

func decodePixel(buf *[pixelBytes]byte) pixel {
	return pixel{
		bin1:  int64(binary.LittleEndian.Uint64(buf[0:])),
		bin2:  int64(binary.LittleEndian.Uint64(buf[8:])),
		count: math.Float64frombits(binary.LittleEndian.Uint64(buf[16:])),
	}
}

// spill sorts every live partition buffer, writes the buffers to a new
// spill file, and resets them.
func (b *Binner) spill() (err error) {
	spill := &spillFile{
		path:     filepath.Join(b.stagingDir, fmt.Sprintf("spill-%v.bin", len(b.spills))),
		segments: make(map[int]segment),
	}
	file, err := os.Create(spill.path)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := file.Close(); err == nil {
			err = nerr
		}
	}()
	out := bufio.NewWriter(file)
	var offset int64
	var buf [pixelBytes]byte
	for _, p := range b.livePartitions() {
		if len(b.partitions[p]) == 0 {
			continue
		}
		b.sortPartition(p)
		pixels := b.partitions[p]
		spill.segments[p] = segment{offset: offset, n: int64(len(pixels))}
		for _, px := range pixels {
			encodePixel(&buf, px)
			if _, err := out.Write(buf[:]); err != nil {
				return err
			}
		}
		offset += int64(len(pixels)) * pixelBytes
		b.partitions[p] = b.partitions[p][:0]
	}
	b.buffered = 0
	b.spills = append(b.spills, spill)
	return out.Flush()
}

// A pixelSource yields the sorted, aggregated pixels of one partition
// chunk during the merge phase.
type pixelSource interface {
	next() (pixel, bool, error)
	close() error
}

type memSource struct {
	pixels []pixel
	index  int
}

func (s *memSource) next() (pixel, bool, error) {
	if s.index >= len(s.pixels) {
		return pixel{}, false, nil
	}
	px := s.pixels[s.index]
	s.index++
	return px, true, nil
}

func (s *memSource) close() error {
	return nil
}

type segmentSource struct {
	file      *os.File
	reader    *bufio.Reader
	remaining int64
}

func (f *spillFile) openSegment(seg segment) (*segmentSource, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	if _, err := file.Seek(seg.offset, io.SeekStart); err != nil {
		_ = file.Close()
		return nil, err
	}
	return &segmentSource{
		file:      file,
		reader:    bufio.NewReader(file),
		remaining: seg.n,
	}, nil
}

func (s *segmentSource) next() (pixel, bool, error) {
	if s.remaining == 0 {
		return pixel{}, false, nil
	}
	var buf [pixelBytes]byte
	if _, err := io.ReadFull(s.reader, buf[:]); err != nil {
		return pixel{}, false, err
	}
	s.remaining--
	return decodePixel(&buf), true, nil
}

func (s *segmentSource) close() error {
	return s.file.Close()
}
