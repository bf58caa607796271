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
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// chainHeader is the parsed first line of one chain. See
// https://genome.ucsc.edu/goldenPath/help/chain.html
type chainHeader struct {
	tName        string
	tSize        int64
	tStart, tEnd int64
	qName        string
	qSize        int64
	qStart, qEnd int64
	qReversed    bool
}

func parseChainHeader(path string, line int, fields []string) (chainHeader, *MalformedChain) {
	var hdr chainHeader
	if len(fields) < 12 || len(fields) > 13 {
		return hdr, &MalformedChain{path, line, "chain header does not have 12 or 13 fields"}
	}
	ints := make([]int64, 0, 6)
	for _, i := range []int{3, 5, 6, 8, 10, 11} {
		value, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil || value < 0 {
			return hdr, &MalformedChain{path, line, "invalid coordinate " + fields[i]}
		}
		ints = append(ints, value)
	}
	hdr.tName = fields[2]
	hdr.tSize, hdr.tStart, hdr.tEnd = ints[0], ints[1], ints[2]
	hdr.qName = fields[7]
	hdr.qSize, hdr.qStart, hdr.qEnd = ints[3], ints[4], ints[5]
	if fields[4] != "+" {
		return hdr, &MalformedChain{path, line, "source strand must be +, got " + fields[4]}
	}
	switch fields[9] {
	case "+":
	case "-":
		hdr.qReversed = true
	default:
		return hdr, &MalformedChain{path, line, "invalid target strand " + fields[9]}
	}
	if hdr.tStart >= hdr.tEnd || hdr.tEnd > hdr.tSize ||
		hdr.qStart >= hdr.qEnd || hdr.qEnd > hdr.qSize {
		return hdr, &MalformedChain{path, line, "chain extents outside chromosome bounds"}
	}
	return hdr, nil
}

// Load reads a UCSC chain file, plain or gzip-compressed, and builds
// the per-chromosome block index used by Lift. It fails with a
// MalformedChain error when block lengths are inconsistent with the
// declared chain extents.
func Load(path string) (*ChainMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var reader io.Reader = bufio.NewReader(file)
	if filepath.Ext(path) == ".gz" {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}

	m := &ChainMap{chroms: make(map[string]*chromBlocks)}
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(nil, 1<<20)

	var (
		inChain bool
		hdr     chainHeader
		t, q    int64
		line    int
	)
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if fields[0] == "chain" {
			if inChain {
				return nil, &MalformedChain{path, line, "chain header before previous chain was closed"}
			}
			h, perr := parseChainHeader(path, line, fields)
			if perr != nil {
				return nil, perr
			}
			hdr = h
			t, q = hdr.tStart, hdr.qStart
			m.addChainStart(hdr)
			inChain = true
			continue
		}
		if !inChain {
			return nil, &MalformedChain{path, line, "alignment data line outside of a chain"}
		}
		if len(fields) != 1 && len(fields) != 3 {
			return nil, &MalformedChain{path, line, "alignment data line does not have 1 or 3 fields"}
		}
		size, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil || size <= 0 {
			return nil, &MalformedChain{path, line, "invalid block size " + fields[0]}
		}
		m.addBlock(hdr, t, q, size)
		t += size
		q += size
		if len(fields) == 3 {
			dt, err1 := strconv.ParseInt(fields[1], 10, 64)
			dq, err2 := strconv.ParseInt(fields[2], 10, 64)
			if err1 != nil || err2 != nil || dt < 0 || dq < 0 {
				return nil, &MalformedChain{path, line, "invalid block gaps"}
			}
			t += dt
			q += dq
		} else {
			// Last block of the chain: the declared extents must be
			// fully consumed.
			if t != hdr.tEnd || q != hdr.qEnd {
				return nil, &MalformedChain{path, line, "block lengths inconsistent with chain extents"}
			}
			inChain = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if inChain {
		return nil, &MalformedChain{path, line, "truncated chain"}
	}
	m.finalize()
	return m, nil
}

func (m *ChainMap) addChainStart(hdr chainHeader) {
	if m.chroms[hdr.tName] == nil {
		m.chroms[hdr.tName] = &chromBlocks{}
	}
}

func (m *ChainMap) addBlock(hdr chainHeader, t, q, size int64) {
	cb := m.chroms[hdr.tName]
	cb.blocks = append(cb.blocks, block{
		tStart:    t,
		tEnd:      t + size,
		qChrom:    hdr.qName,
		qSize:     hdr.qSize,
		qStart:    q,
		qReversed: hdr.qReversed,
	})
	if size > cb.maxLen {
		cb.maxLen = size
	}
}

func (m *ChainMap) finalize() {
	for _, cb := range m.chroms {
		sort.SliceStable(cb.blocks, func(i, j int) bool {
			return cb.blocks[i].tStart < cb.blocks[j].tStart
		})
	}
}
