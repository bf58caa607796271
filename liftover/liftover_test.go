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

package liftover

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vhfsantos/HiCLift/matrix"
	"github.com/vhfsantos/HiCLift/pairs"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0666))
	return path
}

// The test assemblies: srcA maps onto dst with a +400 offset on chrX
// in [0, 500), leaving [500, 1000) unmapped.
const (
	srcChromSizes = "chrX\t1000\nchrY\t600\n"
	dstChromSizes = "chr1\t2000\nchr2\t600\n"
	testChain     = "chain 1000 chrX 1000 + 0 500 chr1 2000 + 400 900 1\n500\n\n" +
		"chain 900 chrY 600 + 0 600 chr2 600 + 0 600 2\n600\n"
)

func baseOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		OutputPrefix:         filepath.Join(dir, "out"),
		InputFormat:          FormatPairs,
		OutputFormat:         FormatPairs,
		OutChromSizes:        writeFile(t, dir, "dst.chrom.sizes", dstChromSizes),
		InAssembly:           "srcA",
		OutAssembly:          "dstB",
		ChainFile:            writeFile(t, dir, "test.chain", testChain),
		TmpDir:               dir,
		Memory:               1 << 24,
		BinnerThreads:        2,
		MaxMalformedFraction: 0.05,
	}
}

func readPairsOutput(t *testing.T, path string) (*pairs.Header, []string) {
	t.Helper()
	f, err := pairs.Open(path)
	require.NoError(t, err)
	defer f.Close()
	hdr, err := f.ParseHeader()
	require.NoError(t, err)
	var records []string
	for {
		line, err := f.Reader().ReadString('\n')
		if line != "" {
			records = append(records, strings.TrimRight(line, "\n"))
		}
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	return hdr, records
}

func TestRunNoOp(t *testing.T) {
	opts := baseOptions(t)
	opts.InputPath = writeFile(t, t.TempDir(), "in.pairs",
		"## pairs format v1.0\nread1\tchrX\t100\tchrX\t200\t+\t-\n")
	opts.OutAssembly = opts.InAssembly
	opts.ChainFile = ""
	stats, err := Run(opts)
	require.NoError(t, err)
	assert.Zero(t, stats.Read)
	_, err = os.Stat(OutputPath(opts))
	assert.True(t, os.IsNotExist(err), "no-op run wrote an output file")
}

func TestRunPairsLiftover(t *testing.T) {
	opts := baseOptions(t)
	opts.InputPath = writeFile(t, t.TempDir(), "in.pairs",
		"## pairs format v1.0\n"+
			"#genome_assembly: srcA\n"+
			"#mytag kept verbatim\n"+
			"#columns: readID chrom1 pos1 chrom2 pos2 strand1 strand2\n"+
			// maps to chr1:500 / chr1:600
			"read1\tchrX\t100\tchrX\t200\t+\t-\n"+
			// second endpoint beyond the chain, dropped
			"read2\tchrX\t100\tchrX\t700\t+\t+\n"+
			// unknown source chromosome, dropped
			"read3\tchrM\t100\tchrX\t200\t+\t+\n"+
			// out of order against the destination ranks, flipped
			"read4\tchrY\t50\tchrX\t100\t+\t-\n")

	stats, err := Run(opts)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Read)
	assert.Equal(t, int64(2), stats.Written)
	assert.Equal(t, int64(1), stats.Unmapped)
	assert.Equal(t, int64(1), stats.UnknownChrom)

	hdr, records := readPairsOutput(t, OutputPath(opts))
	assert.Equal(t, "dstB", hdr.Fields.Get("genome_assembly", ""))
	assert.Equal(t, "none", hdr.Fields.Get("sorted", ""))
	require.Len(t, hdr.ChromSizes, 2)
	assert.Equal(t, "chr1", hdr.ChromSizes[0].Name)
	assert.Contains(t, hdr.Misc, "#mytag kept verbatim")
	require.Equal(t, []string{
		"read1\tchr1\t500\tchr1\t600\t+\t-",
		"read4\tchr1\t500\tchr2\t50\t-\t+",
	}, records)
}

func TestRunPureReformatHiCPro(t *testing.T) {
	opts := baseOptions(t)
	dir := t.TempDir()
	opts.InputPath = writeFile(t, dir, "in.allValidPairs",
		"read1\tchr2\t50\t+\tchr1\t100\t-\t150\tfragA\tfragB\n")
	opts.InputFormat = FormatHiCPro
	opts.InAssembly = opts.OutAssembly
	opts.ChainFile = ""

	stats, err := Run(opts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Written)

	_, records := readPairsOutput(t, OutputPath(opts))
	// Flipped against the destination ranks, fragments follow their
	// endpoints, the shared size column stays put.
	require.Equal(t, []string{"read1\tchr1\t100\tchr2\t50\t-\t+\tfragB\tfragA\t150"}, records)
}

// A fakeEncoder reads the staged pixels during Encode, before the
// orchestrator removes the staging directory. It keeps the keys in
// file order so tests can check the tables are globally sorted.
type fakeEncoder struct {
	job    matrix.EncodeJob
	pixels map[int64]map[[2]int64]float64
	keys   map[int64][][2]int64
	coords map[int64][]matrix.BinCoord
}

func (e *fakeEncoder) Encode(job matrix.EncodeJob) error {
	e.job = job
	e.pixels = make(map[int64]map[[2]int64]float64)
	e.keys = make(map[int64][][2]int64)
	e.coords = make(map[int64][]matrix.BinCoord)
	for _, resolution := range job.Resolutions {
		pixels := make(map[[2]int64]float64)
		var keys [][2]int64
		err := matrix.EachPixel(job.StagingDir, resolution, func(bin1, bin2 int64, count float64) error {
			pixels[[2]int64{bin1, bin2}] = count
			keys = append(keys, [2]int64{bin1, bin2})
			return nil
		})
		if err != nil {
			return err
		}
		e.pixels[resolution] = pixels
		e.keys[resolution] = keys
		coords, err := matrix.ReadBinCoords(job.StagingDir, resolution)
		if err != nil {
			return err
		}
		e.coords[resolution] = coords
	}
	return nil
}

func assertSortedKeys(t *testing.T, keys [][2]int64) {
	t.Helper()
	for i := 1; i < len(keys); i++ {
		p, q := keys[i-1], keys[i]
		assert.True(t, p[0] < q[0] || (p[0] == q[0] && p[1] < q[1]),
			"pixels out of order: %v before %v", p, q)
	}
}

func TestRunPairsToCool(t *testing.T) {
	opts := baseOptions(t)
	opts.InputPath = writeFile(t, t.TempDir(), "in.pairs",
		"## pairs format v1.0\n"+
			"read1\tchrX\t100\tchrX\t200\t+\t-\n"+ // chr1:500 x chr1:600
			"read2\tchrX\t50\tchrX\t150\t+\t-\n"+ // chr1:450 x chr1:550, same bins
			"read3\tchrY\t50\tchrY\t50\t+\t-\n"+ // chr2:50 x chr2:50
			"read4\tchrX\t150\tchrX\t180\t+\t-\n"+ // chr1:550 x chr1:580
			"read5\tchrX\t100\tchrY\t50\t+\t+\n") // trans: chr1:500 x chr2:50
	opts.OutputFormat = FormatCool
	opts.Resolutions = []int64{100, 200}
	encoder := &fakeEncoder{}
	opts.Encoder = encoder

	stats, err := Run(opts)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Written)

	assert.Equal(t, opts.OutputPrefix+".mcool", encoder.job.OutPath)
	assert.Equal(t, opts.OutChromSizes, encoder.job.ChromSizesPath)

	// chr1 has 20 bins at resolution 100; chr2 bins follow. The trans
	// pixel (4, 20) must interleave between the cis rows 4 and 5.
	require.Equal(t, map[[2]int64]float64{
		{4, 5}:   2,
		{4, 20}:  1,
		{5, 5}:   1,
		{20, 20}: 1,
	}, encoder.pixels[100])
	require.Equal(t, map[[2]int64]float64{
		{2, 2}:   3,
		{2, 10}:  1,
		{10, 10}: 1,
	}, encoder.pixels[200])
	assertSortedKeys(t, encoder.keys[100])
	assertSortedKeys(t, encoder.keys[200])
	require.Len(t, encoder.coords[100], 26)

	// Staging is cleaned up after encoding.
	_, err = os.Stat(encoder.job.StagingDir)
	assert.True(t, os.IsNotExist(err), "staging directory survived the run")
}

// A fakeDecoder yields a fixed set of bin-pair rows.
type fakeDecoder struct {
	rows []matrix.Row
}

func (d *fakeDecoder) Rows(emit func(matrix.Row) error) error {
	for _, row := range d.rows {
		if err := emit(row); err != nil {
			return err
		}
	}
	return nil
}

func TestRunCoolerToPairs(t *testing.T) {
	opts := baseOptions(t)
	opts.InputPath = "unused.cool"
	opts.InputFormat = FormatCooler
	opts.InAssembly = opts.OutAssembly
	opts.ChainFile = ""
	opts.Resolutions = []int64{100}
	opts.Decoder = &fakeDecoder{rows: []matrix.Row{
		{Chrom1: "chr1", Start1: 400, Chrom2: "chr1", Start2: 600, Count: 3},
		{Chrom1: "chr2", Start1: 0, Chrom2: "chr2", Start2: 100, Count: 1.5},
	}}

	stats, err := Run(opts)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Written)

	_, records := readPairsOutput(t, OutputPath(opts))
	// Rows are projected to bin midpoints with unknown strands.
	require.Equal(t, []string{
		".\tchr1\t451\tchr1\t651\t.\t.",
		".\tchr2\t51\tchr2\t151\t.\t.",
	}, records)
}

func TestRunMalformedTolerance(t *testing.T) {
	var b strings.Builder
	b.WriteString("## pairs format v1.0\n")
	for i := 0; i < 10000; i++ {
		fmt.Fprintf(&b, "read%v\tchrX\t%v\tchrX\t%v\t+\t-\n", i, i%400+1, i%400+50)
	}
	for i := 0; i < 600; i++ {
		b.WriteString("broken line\n")
	}
	opts := baseOptions(t)
	opts.InputPath = writeFile(t, t.TempDir(), "in.pairs", b.String())

	_, err := Run(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestOutputPath(t *testing.T) {
	opts := Options{OutputPrefix: "x", OutputFormat: FormatCool, Resolutions: []int64{10}}
	assert.Equal(t, "x.cool", OutputPath(opts))
	opts.Resolutions = []int64{10, 20}
	assert.Equal(t, "x.mcool", OutputPath(opts))
	opts.OutputFormat = FormatHic
	assert.Equal(t, "x.hic", OutputPath(opts))
	opts.OutputFormat = FormatPairs
	assert.Equal(t, "x.pairs.gz", OutputPath(opts))
}

func TestValidate(t *testing.T) {
	opts := baseOptions(t)
	opts.InputFormat = "bogus"
	_, err := Run(opts)
	assert.Error(t, err)

	opts = baseOptions(t)
	opts.OutputFormat = FormatCool
	opts.Resolutions = nil
	_, err = Run(opts)
	assert.Error(t, err)

	opts = baseOptions(t)
	opts.ChainFile = ""
	_, err = Run(opts)
	assert.Error(t, err)
}
