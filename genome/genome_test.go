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

package genome

import (
	"os"
	"path/filepath"
	"testing"
)

func readAssemblyString(t *testing.T, contents string) (*Assembly, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.chrom.sizes")
	if err := os.WriteFile(path, []byte(contents), 0666); err != nil {
		t.Fatal(err)
	}
	return ReadAssembly(path)
}

func TestReadAssembly(t *testing.T) {
	assembly, err := readAssemblyString(t, "chr1\t1000\nchr2\t800\nchrM\t16571\n")
	if err != nil {
		t.Fatal(err)
	}
	if assembly.Count() != 3 {
		t.Fatal("wrong chromosome count")
	}
	if assembly.Chromosomes[1].Name != "chr2" || assembly.Chromosomes[1].Size != 800 {
		t.Error("chromosome listing parsed incorrectly")
	}
	if _, err := readAssemblyString(t, "chr1\t1000\nchr1\t800\n"); err == nil {
		t.Error("duplicate chromosome accepted")
	}
	if _, err := readAssemblyString(t, "\n\n"); err == nil {
		t.Error("empty listing accepted")
	}
	if _, err := readAssemblyString(t, "chr1\tbig\n"); err == nil {
		t.Error("unparsable size accepted")
	}
}

func TestRankAliases(t *testing.T) {
	assembly, err := readAssemblyString(t, "chr1\t1000\nchr2\t800\nchrM\t16571\n")
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []struct {
		name      string
		rank      int
		canonical string
	}{
		{"chr2", 1, "chr2"},
		{"2", 1, "chr2"},
		{"MT", 2, "chrM"},
		{"chrM", 2, "chrM"},
	} {
		rank, canonical, err := assembly.Rank(c.name)
		if err != nil {
			t.Fatal(err)
		}
		if rank != c.rank || canonical != c.canonical {
			t.Error("wrong resolution for", c.name, ":", rank, canonical)
		}
	}
	if _, _, err := assembly.Rank("chr7"); err == nil {
		t.Error("unknown chromosome resolved")
	} else if _, ok := err.(*UnknownChromosome); !ok {
		t.Error("unknown chromosome failed with the wrong error type:", err)
	}
}

func TestRankBareNames(t *testing.T) {
	assembly, err := readAssemblyString(t, "1\t1000\nMT\t16571\n")
	if err != nil {
		t.Fatal(err)
	}
	if rank, canonical, err := assembly.Rank("chr1"); err != nil || rank != 0 || canonical != "1" {
		t.Error("chr-prefixed name not resolved against bare listing")
	}
	if rank, canonical, err := assembly.Rank("chrM"); err != nil || rank != 1 || canonical != "MT" {
		t.Error("chrM not resolved against MT listing")
	}
}
