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

// Package liftover orchestrates a conversion run: it decides between
// the no-op, pure-reformat, and full-liftover paths, wires the input,
// lifting, and output stages into a pargo pipeline, and owns the
// staging directory lifecycle.
package liftover

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/vhfsantos/HiCLift/chain"
	"github.com/vhfsantos/HiCLift/genome"
	"github.com/vhfsantos/HiCLift/lift"
	"github.com/vhfsantos/HiCLift/matrix"
	"github.com/vhfsantos/HiCLift/pairs"
)

// The supported input and output formats.
const (
	FormatPairs  = "pairs"
	FormatHiCPro = "hic-pro"
	FormatCooler = "cooler"
	FormatJuicer = "juicer"
	FormatCool   = "cool"
	FormatHic    = "hic"
)

// ValidInputFormat tells whether a string names a supported input
// format.
func ValidInputFormat(format string) bool {
	switch format {
	case FormatPairs, FormatHiCPro, FormatCooler, FormatJuicer:
		return true
	}
	return false
}

// ValidOutputFormat tells whether a string names a supported output
// format.
func ValidOutputFormat(format string) bool {
	switch format {
	case FormatPairs, FormatCool, FormatHic:
		return true
	}
	return false
}

// Options configures a conversion run. Decoder and Encoder override
// the default exec-based container codecs, primarily for tests.
type Options struct {
	InputPath     string
	OutputPrefix  string
	InputFormat   string
	OutputFormat  string
	OutChromSizes string
	InChromSizes  string
	InAssembly    string
	OutAssembly   string
	ChainFile     string
	Resolutions   []int64
	TmpDir        string
	Memory        int64
	BinnerThreads int

	// MaxMalformedFraction is the tolerated fraction of malformed
	// input records before the run fails.
	MaxMalformedFraction float64

	Decoder matrix.Decoder
	Encoder matrix.Encoder
}

// OutputPath returns the file the given options write to.
func OutputPath(opts Options) string {
	switch opts.OutputFormat {
	case FormatCool:
		if len(opts.Resolutions) > 1 {
			return opts.OutputPrefix + ".mcool"
		}
		return opts.OutputPrefix + ".cool"
	case FormatHic:
		return opts.OutputPrefix + ".hic"
	}
	return opts.OutputPrefix + ".pairs.gz"
}

func matrixInput(format string) bool {
	return format == FormatCooler || format == FormatJuicer
}

func matrixOutput(format string) bool {
	return format == FormatCool || format == FormatHic
}

// isNoOp tells whether the requested conversion would reproduce the
// input unchanged. Deriving additional cool resolutions is work even
// when assembly and container kind match.
func isNoOp(opts Options) bool {
	if opts.InAssembly != opts.OutAssembly {
		return false
	}
	switch {
	case opts.InputFormat == FormatPairs && opts.OutputFormat == FormatPairs:
		return true
	case opts.InputFormat == FormatJuicer && opts.OutputFormat == FormatHic:
		return true
	case opts.InputFormat == FormatCooler && opts.OutputFormat == FormatCool:
		return len(opts.Resolutions) <= 1
	}
	return false
}

func validate(opts Options) error {
	if !ValidInputFormat(opts.InputFormat) {
		return fmt.Errorf("invalid input format %v", opts.InputFormat)
	}
	if !ValidOutputFormat(opts.OutputFormat) {
		return fmt.Errorf("invalid output format %v", opts.OutputFormat)
	}
	if opts.InAssembly == "" || opts.OutAssembly == "" {
		return fmt.Errorf("source and destination assembly names are required")
	}
	if (matrixInput(opts.InputFormat) || matrixOutput(opts.OutputFormat)) && len(opts.Resolutions) == 0 {
		return fmt.Errorf("matrix formats require at least one resolution")
	}
	if opts.InAssembly != opts.OutAssembly && opts.ChainFile == "" {
		return fmt.Errorf("converting from %v to %v requires a chain file", opts.InAssembly, opts.OutAssembly)
	}
	return nil
}

// Run executes one conversion and returns the record tallies.
func Run(opts Options) (*lift.Stats, error) {
	stats := &lift.Stats{}
	if err := validate(opts); err != nil {
		return stats, err
	}
	if isNoOp(opts) {
		log.Printf("Input %v is already %v in assembly %v; nothing to do.",
			opts.InputPath, opts.InputFormat, opts.InAssembly)
		return stats, nil
	}
	outAsm, err := genome.ReadAssembly(opts.OutChromSizes)
	if err != nil {
		return stats, err
	}
	var lifter *lift.Lifter
	if opts.InAssembly != opts.OutAssembly {
		chains, err := chain.Load(opts.ChainFile)
		if err != nil {
			return stats, err
		}
		lifter = &lift.Lifter{Chains: chains, Out: outAsm}
		log.Printf("Lifting %v from %v to %v.", opts.InputPath, opts.InAssembly, opts.OutAssembly)
	} else {
		log.Printf("Converting %v from %v to %v within assembly %v.",
			opts.InputPath, opts.InputFormat, opts.OutputFormat, opts.InAssembly)
	}
	if matrixOutput(opts.OutputFormat) {
		err = runToMatrix(opts, outAsm, lifter, stats)
	} else {
		err = runToPairs(opts, outAsm, lifter, stats)
	}
	if err != nil {
		return stats, err
	}
	stats.Log()
	return stats, nil
}

// Zoomify derives additional resolutions for an existing cooler
// matrix within one assembly. It is the cooler-to-cool reformat path
// of Run with the assembly pinned.
func Zoomify(opts Options) (*lift.Stats, error) {
	opts.InputFormat = FormatCooler
	opts.OutputFormat = FormatCool
	opts.InAssembly = opts.OutAssembly
	opts.ChainFile = ""
	return Run(opts)
}

// outputHeader builds the pairs header for the destination assembly,
// carrying over the fields, columns, and unknown annotations of the
// input header when there is one. Record order is not preserved in
// general, so the sorted field is always reset.
func outputHeader(in *pairs.Header, asm *genome.Assembly, assemblyName string) *pairs.Header {
	hdr := pairs.NewHeader()
	if in != nil {
		for key, value := range in.Fields {
			hdr.Fields[key] = value
		}
		hdr.Columns = in.Columns
		hdr.Misc = in.Misc
	}
	if len(hdr.Columns) == 0 {
		hdr.Columns = pairs.DefaultColumns
	}
	hdr.Fields["genome_assembly"] = assemblyName
	hdr.Fields["sorted"] = "none"
	hdr.ChromSizes = asm.Chromosomes
	return hdr
}

// stagingDir creates a uniquely named staging directory under the
// configured temp dir.
func stagingDir(opts Options) (string, error) {
	tmpDir := opts.TmpDir
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	dir := filepath.Join(tmpDir, "hiclift-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
