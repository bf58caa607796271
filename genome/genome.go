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

// Package genome canonicalizes chromosome names and defines the total
// chromosome order of a target assembly, built from a UCSC-style
// chrom.sizes listing.
package genome

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// An UnknownChromosome error reports a chromosome name that cannot be
// resolved against the assembly's chrom.sizes listing. It is raised
// lazily, per record, and is never fatal to a run by itself: callers
// count it and drop the record.
type UnknownChromosome struct {
	Name string
}

func (e *UnknownChromosome) Error() string {
	return fmt.Sprintf("unknown chromosome %v", e.Name)
}

// A Chromosome is one entry of a chrom.sizes listing.
type Chromosome struct {
	Name string
	Size int64
}

// An Assembly is the ordered chromosome listing of one genome
// assembly. The listing's file order defines the ranks used to orient
// contact pairs; the mapping from canonical name to rank is injective.
// An Assembly is immutable after ReadAssembly and can be shared by any
// number of goroutines.
type Assembly struct {
	Chromosomes []Chromosome
	ranks       map[string]int
}

// ReadAssembly parses a chrom.sizes file: one chromosome per line,
// name and size separated by a tab, in the assembly's declared
// chromosome order.
func ReadAssembly(path string) (*Assembly, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	assembly := &Assembly{ranks: make(map[string]int)}
	scanner := bufio.NewScanner(bufio.NewReader(file))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("invalid chrom.sizes line %v in %v", line, path)
		}
		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("invalid chromosome size %v on line %v in %v", fields[1], line, path)
		}
		if _, found := assembly.ranks[fields[0]]; found {
			return nil, fmt.Errorf("duplicate chromosome %v on line %v in %v", fields[0], line, path)
		}
		assembly.ranks[fields[0]] = len(assembly.Chromosomes)
		assembly.Chromosomes = append(assembly.Chromosomes, Chromosome{Name: fields[0], Size: size})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(assembly.Chromosomes) == 0 {
		return nil, fmt.Errorf("empty chrom.sizes file %v", path)
	}
	return assembly, nil
}

// aliases returns the candidate spellings for a chromosome name, most
// specific first. Input conventions differ on the "chr" prefix and on
// the mitochondrial name (MT versus chrM).
func aliases(name string) [3]string {
	var c [3]string
	c[0] = name
	if strings.HasPrefix(name, "chr") {
		c[1] = name[3:]
		if name == "chrM" {
			c[2] = "MT"
		}
	} else {
		c[1] = "chr" + name
		if name == "MT" {
			c[2] = "chrM"
		}
	}
	return c
}

// Rank resolves the given chromosome name against the listing and
// returns its rank together with the canonical name used by this
// assembly. Unresolvable names yield an UnknownChromosome error.
func (assembly *Assembly) Rank(name string) (rank int, canonical string, err error) {
	for _, candidate := range aliases(name) {
		if candidate == "" {
			break
		}
		if rank, found := assembly.ranks[candidate]; found {
			return rank, candidate, nil
		}
	}
	return 0, "", &UnknownChromosome{Name: name}
}

// MustRank is Rank for chromosome names that are already canonical,
// for example names produced by Rank itself earlier in a pipeline.
// It panics on unknown names, which indicates a program bug.
func (assembly *Assembly) MustRank(name string) int {
	rank, found := assembly.ranks[name]
	if !found {
		panic(fmt.Sprintf("chromosome %v not canonical for this assembly", name))
	}
	return rank
}

// Count returns the number of chromosomes in the listing.
func (assembly *Assembly) Count() int {
	return len(assembly.Chromosomes)
}
