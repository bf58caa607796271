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

package pairs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseRecord(t *testing.T) {
	r, err := ParseRecord("read1\tchr1\t100\tchr2\t200\t+\t-")
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != "read1" || r.Chrom1 != "chr1" || r.Pos1 != 100 ||
		r.Chrom2 != "chr2" || r.Pos2 != 200 || r.Strand1 != '+' || r.Strand2 != '-' {
		t.Error("record parsed incorrectly:", r)
	}
	if r.Count != 1 {
		t.Error("record count not 1")
	}
	r, err = ParseRecord("read1\tchr1\t100\tchr2\t200\t+\t-\tUU\t60")
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Aux) != 2 || r.Aux[0] != "UU" {
		t.Error("auxiliary columns parsed incorrectly:", r.Aux)
	}
	for _, line := range []string{
		"read1\tchr1\t100\tchr2",
		"read1\tchr1\tabc\tchr2\t200\t+\t-",
		"read1\tchr1\t100\tchr2\t200\tx\t-",
		"read1\tchr1\t0\tchr2\t200\t+\t-",
	} {
		if _, err := ParseRecord(line); err == nil {
			t.Error("malformed record accepted:", line)
		} else if _, ok := err.(*RecordError); !ok {
			t.Error("malformed record failed with the wrong error type:", err)
		}
	}
}

func TestParseHiCProRecord(t *testing.T) {
	// allValidPairs puts the strand right after each position.
	r, err := ParseHiCProRecord("read1\tchr1\t100\t+\tchr2\t200\t-\t250\tHIC_chr1_5\tHIC_chr2_8")
	if err != nil {
		t.Fatal(err)
	}
	if r.Chrom1 != "chr1" || r.Pos1 != 100 || r.Strand1 != '+' ||
		r.Chrom2 != "chr2" || r.Pos2 != 200 || r.Strand2 != '-' {
		t.Error("record parsed incorrectly:", r)
	}
	if r.Frag1 != "HIC_chr1_5" || r.Frag2 != "HIC_chr2_8" {
		t.Error("fragment columns parsed incorrectly:", r.Frag1, r.Frag2)
	}
	r, err = ParseHiCProRecord("read1\tchr1\t100\t+\tchr2\t200\t-")
	if err != nil {
		t.Fatal(err)
	}
	if r.Frag1 != "" || r.Frag2 != "" || len(r.Aux) != 0 {
		t.Error("bare record grew extra columns:", r)
	}
}

func TestFlip(t *testing.T) {
	r, err := ParseHiCProRecord("read1\tchr2\t200\t-\tchr1\t100\t+\t250\tfragA\tfragB")
	if err != nil {
		t.Fatal(err)
	}
	r.Flip()
	if r.Chrom1 != "chr1" || r.Pos1 != 100 || r.Strand1 != '+' || r.Frag1 != "fragB" {
		t.Error("flip did not swap endpoints:", r)
	}
	if r.Chrom2 != "chr2" || r.Pos2 != 200 || r.Strand2 != '-' || r.Frag2 != "fragA" {
		t.Error("flip did not swap endpoints:", r)
	}
	aux := r.Aux[0]
	r.Flip()
	if r.Chrom1 != "chr2" || r.Aux[0] != aux {
		t.Error("double flip did not restore the record")
	}
}

const testHeader = "## pairs format v1.0\n" +
	"#sorted: chr1-chr2-pos1-pos2\n" +
	"#shape: upper triangle\n" +
	"#genome_assembly: hg19\n" +
	"#chromsize: chr1 1000\n" +
	"#chromsize: chr2 800\n" +
	"#mycustomtag preserved as is\n" +
	"#columns: readID chrom1 pos1 chrom2 pos2 strand1 strand2\n"

func TestParseHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pairs")
	contents := testHeader + "read1\tchr1\t100\tchr2\t200\t+\t-\n"
	if err := os.WriteFile(path, []byte(contents), 0666); err != nil {
		t.Fatal(err)
	}
	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	hdr, err := f.ParseHeader()
	if err != nil {
		t.Fatal(err)
	}
	if hdr.Fields.Get("genome_assembly", "") != "hg19" {
		t.Error("genome_assembly field lost")
	}
	if len(hdr.ChromSizes) != 2 || hdr.ChromSizes[1].Size != 800 {
		t.Error("chromsize lines parsed incorrectly:", hdr.ChromSizes)
	}
	if len(hdr.Misc) != 1 || hdr.Misc[0] != "#mycustomtag preserved as is" {
		t.Error("unknown header line not preserved:", hdr.Misc)
	}
	if len(hdr.Columns) != 7 {
		t.Error("columns line parsed incorrectly:", hdr.Columns)
	}
	// The reader must now be positioned at the first record.
	line, err := f.Reader().ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(line, "read1\t") {
		t.Error("header parsing consumed record data:", line)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.pairs")
	if err := os.WriteFile(inPath, []byte(testHeader), 0666); err != nil {
		t.Fatal(err)
	}
	in, err := Open(inPath)
	if err != nil {
		t.Fatal(err)
	}
	hdr, err := in.ParseHeader()
	if err != nil {
		t.Fatal(err)
	}
	if err := in.Close(); err != nil {
		t.Fatal(err)
	}
	outPath := filepath.Join(dir, "out.pairs")
	out, err := Create(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := out.FormatHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	written, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(written) != testHeader {
		t.Errorf("header did not survive a round trip:\n%s", written)
	}
}

func TestFormatRecord(t *testing.T) {
	r, err := ParseRecord("read1\tchr1\t100\tchr2\t200\t+\t-\tUU")
	if err != nil {
		t.Fatal(err)
	}
	if line := string(FormatRecord(r, nil)); line != "read1\tchr1\t100\tchr2\t200\t+\t-\tUU\n" {
		t.Error("record formatted incorrectly:", line)
	}
	r.Frag1, r.Frag2 = "f1", "f2"
	r.Aux = nil
	if line := string(FormatRecord(r, nil)); line != "read1\tchr1\t100\tchr2\t200\t+\t-\tf1\tf2\n" {
		t.Error("fragment columns formatted incorrectly:", line)
	}
}

func TestGzipRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pairs.gz")
	out, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	hdr := NewHeader()
	hdr.Fields["genome_assembly"] = "hg38"
	hdr.Columns = DefaultColumns
	if err := out.FormatHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := out.Write([]byte("read1\tchr1\t100\tchr1\t200\t+\t-\n")); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	in, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	hdr2, err := in.ParseHeader()
	if err != nil {
		t.Fatal(err)
	}
	if hdr2.Fields.Get("genome_assembly", "") != "hg38" {
		t.Error("header lost through gzip")
	}
	line, err := in.Reader().ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "read1\tchr1\t100\tchr1\t200\t+\t-\n" {
		t.Error("record lost through gzip:", line)
	}
}
