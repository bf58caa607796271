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
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"

	"github.com/exascience/pargo/pipeline"
	"github.com/vhfsantos/HiCLift/binner"
	"github.com/vhfsantos/HiCLift/genome"
	"github.com/vhfsantos/HiCLift/lift"
	"github.com/vhfsantos/HiCLift/matrix"
	"github.com/vhfsantos/HiCLift/pairs"
)

const (
	minBatchSize = 512
	maxBatchSize = 262144

	rowBatchSize = 4096

	// The malformed tolerance is only checked once this many records
	// have been read, so that a bad leading record cannot fail a run
	// on its own.
	toleranceMinRecords = 10000
)

// An input bundles a pipeline source with the filter that turns its
// batches into contact records.
type input struct {
	source interface{}
	filter pipeline.Filter
	header *pairs.Header
	text   bool
	close  func() error
}

// openInput prepares the source and parse stage for the configured
// input format. Text formats stream line batches through
// pipeline.NewScanner; container formats stream bin-pair row batches
// from a decoder goroutine.
func openInput(opts Options, outAsm *genome.Assembly, lifter *lift.Lifter, stats *lift.Stats) (*input, error) {
	switch opts.InputFormat {
	case FormatPairs:
		file, err := pairs.Open(opts.InputPath)
		if err != nil {
			return nil, err
		}
		hdr, err := file.ParseHeader()
		if err != nil {
			_ = file.Close()
			return nil, err
		}
		return &input{
			source: pipeline.NewScanner(file.Reader()),
			filter: parseRecords(pairs.ParseRecord, lifter, outAsm, opts.MaxMalformedFraction, stats),
			header: hdr,
			text:   true,
			close:  file.Close,
		}, nil
	case FormatHiCPro:
		file, err := pairs.Open(opts.InputPath)
		if err != nil {
			return nil, err
		}
		return &input{
			source: pipeline.NewScanner(file.Reader()),
			filter: parseRecords(pairs.ParseHiCProRecord, lifter, outAsm, opts.MaxMalformedFraction, stats),
			text:   true,
			close:  file.Close,
		}, nil
	case FormatCooler:
		decoder := opts.Decoder
		if decoder == nil {
			decoder = &matrix.CoolerDecoder{Path: opts.InputPath}
		}
		return &input{
			source: newRowSource(decoder),
			filter: projectRows(opts.Resolutions[0], lifter, outAsm, stats),
		}, nil
	case FormatJuicer:
		decoder := opts.Decoder
		if decoder == nil {
			srcAsm := outAsm
			if opts.InChromSizes != "" {
				var err error
				if srcAsm, err = genome.ReadAssembly(opts.InChromSizes); err != nil {
					return nil, err
				}
			} else if lifter != nil {
				return nil, fmt.Errorf("juicer input in assembly %v requires the source chromosome sizes", opts.InAssembly)
			}
			decoder = &matrix.StrawDecoder{
				Path:       opts.InputPath,
				Resolution: opts.Resolutions[0],
				Assembly:   srcAsm,
			}
		}
		return &input{
			source: newRowSource(decoder),
			filter: projectRows(opts.Resolutions[0], lifter, outAsm, stats),
		}, nil
	}
	return nil, fmt.Errorf("invalid input format %v", opts.InputFormat)
}

// parseRecords returns the parallel stage that parses line batches
// into records, lifts or orients them, and keeps the tallies. The
// malformed tolerance is enforced here against the running totals.
func parseRecords(parse func(string) (*pairs.Record, error), lifter *lift.Lifter, asm *genome.Assembly, tolerance float64, stats *lift.Stats) pipeline.Filter {
	return func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			lines := data.([]string)
			records := make([]*pairs.Record, 0, len(lines))
			var batch lift.Stats
			for _, line := range lines {
				if line == "" {
					continue
				}
				batch.Read++
				r, err := parse(line)
				if err != nil {
					batch.Malformed++
					continue
				}
				if lifter != nil {
					if !lifter.LiftRecord(r, &batch) {
						continue
					}
				} else if !lift.Orient(r, asm, &batch) {
					continue
				}
				batch.Written++
				records = append(records, r)
			}
			stats.Merge(&batch)
			read := atomic.LoadInt64(&stats.Read)
			malformed := atomic.LoadInt64(&stats.Malformed)
			if read >= toleranceMinRecords && float64(malformed) > tolerance*float64(read) {
				p.SetErr(fmt.Errorf("%v of %v records are malformed, more than the tolerated fraction %v", malformed, read, tolerance))
			}
			return records
		}
		return
	}
}

// projectRows returns the parallel stage that projects bin-pair rows
// from a container at its base resolution onto records at bin
// midpoints.
func projectRows(resolution int64, lifter *lift.Lifter, asm *genome.Assembly, stats *lift.Stats) pipeline.Filter {
	return func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			rows := data.([]matrix.Row)
			records := make([]*pairs.Record, 0, len(rows))
			var batch lift.Stats
			for _, row := range rows {
				batch.Read++
				r := matrix.RecordFromRow(row, resolution)
				if lifter != nil {
					if !lifter.LiftRecord(r, &batch) {
						continue
					}
				} else if !lift.Orient(r, asm, &batch) {
					continue
				}
				batch.Written++
				records = append(records, r)
			}
			stats.Merge(&batch)
			return records
		}
		return
	}
}

// writeRecords returns the ordered sink stage that formats records to
// a pairs output file.
func writeRecords(out *pairs.OutputFile) pipeline.Filter {
	return func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		var buf []byte
		receiver = func(_ int, data interface{}) interface{} {
			for _, r := range data.([]*pairs.Record) {
				buf = pairs.FormatRecord(r, buf[:0])
				if _, err := out.Write(buf); err != nil {
					p.SetErr(fmt.Errorf("%v, while writing pairs records to output", err))
					return nil
				}
			}
			return nil
		}
		return
	}
}

// binRecords returns the sequential sink stage that feeds records to
// the binner.
func binRecords(b *binner.Binner) pipeline.Filter {
	return func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			for _, r := range data.([]*pairs.Record) {
				if err := b.Add(r); err != nil {
					p.SetErr(fmt.Errorf("%v, while binning records", err))
					return nil
				}
			}
			return nil
		}
		return
	}
}

func runToPairs(opts Options, outAsm *genome.Assembly, lifter *lift.Lifter, stats *lift.Stats) (err error) {
	in, err := openInput(opts, outAsm, lifter, stats)
	if err != nil {
		return err
	}
	if in.close != nil {
		defer func() {
			if nerr := in.close(); err == nil {
				err = nerr
			}
		}()
	}
	out, err := pairs.Create(OutputPath(opts))
	if err != nil {
		return err
	}
	defer func() {
		if nerr := out.Close(); err == nil {
			err = nerr
		}
	}()
	if err := out.FormatHeader(outputHeader(in.header, outAsm, opts.OutAssembly)); err != nil {
		return err
	}
	var p pipeline.Pipeline
	p.Source(in.source)
	if in.text {
		p.SetVariableBatchSize(minBatchSize, maxBatchSize)
	}
	p.Add(
		pipeline.LimitedPar(0, in.filter),
		pipeline.StrictOrd(writeRecords(out)),
	)
	p.Run()
	return p.Err()
}

func runToMatrix(opts Options, outAsm *genome.Assembly, lifter *lift.Lifter, stats *lift.Stats) (err error) {
	staging, err := stagingDir(opts)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := os.RemoveAll(staging); nerr != nil {
			log.Printf("Could not remove staging directory %v: %v.", staging, nerr)
		}
	}()
	bnr, err := binner.New(outAsm, opts.Resolutions, staging, opts.Memory, opts.BinnerThreads)
	if err != nil {
		return err
	}
	in, err := openInput(opts, outAsm, lifter, stats)
	if err != nil {
		return err
	}
	if in.close != nil {
		defer func() {
			if nerr := in.close(); err == nil {
				err = nerr
			}
		}()
	}
	var p pipeline.Pipeline
	p.Source(in.source)
	if in.text {
		p.SetVariableBatchSize(minBatchSize, maxBatchSize)
	}
	p.Add(
		pipeline.LimitedPar(0, in.filter),
		pipeline.Seq(binRecords(bnr)),
	)
	p.Run()
	if err := p.Err(); err != nil {
		return err
	}
	if err := bnr.Finalize(); err != nil {
		return err
	}
	encoder := opts.Encoder
	if encoder == nil {
		if opts.OutputFormat == FormatHic {
			encoder = &matrix.JuicerEncoder{}
		} else {
			encoder = &matrix.CoolerEncoder{}
		}
	}
	return encoder.Encode(matrix.EncodeJob{
		StagingDir:     staging,
		ChromSizesPath: opts.OutChromSizes,
		Resolutions:    opts.Resolutions,
		OutPath:        OutputPath(opts),
	})
}

// A rowSource adapts a matrix.Decoder to the pargo pipeline source
// interface. A goroutine drains the decoder into row batches; the
// decoder's error is published before the batch channel closes.
type rowSource struct {
	decoder matrix.Decoder
	batches chan []matrix.Row
	data    []matrix.Row
	err     error
}

func newRowSource(decoder matrix.Decoder) *rowSource {
	return &rowSource{decoder: decoder}
}

// Err implements the method of the pipeline.Source interface.
func (s *rowSource) Err() error {
	return s.err
}

// Prepare implements the method of the pipeline.Source interface.
func (s *rowSource) Prepare(ctx context.Context) int {
	s.batches = make(chan []matrix.Row, 2)
	go func() {
		defer close(s.batches)
		batch := make([]matrix.Row, 0, rowBatchSize)
		err := s.decoder.Rows(func(row matrix.Row) error {
			batch = append(batch, row)
			if len(batch) == rowBatchSize {
				select {
				case s.batches <- batch:
				case <-ctx.Done():
					return ctx.Err()
				}
				batch = make([]matrix.Row, 0, rowBatchSize)
			}
			return nil
		})
		if err == nil && len(batch) > 0 {
			select {
			case s.batches <- batch:
			case <-ctx.Done():
				err = ctx.Err()
			}
		}
		s.err = err
	}()
	return -1
}

// Fetch implements the method of the pipeline.Source interface.
func (s *rowSource) Fetch(int) int {
	batch, ok := <-s.batches
	if !ok {
		s.data = nil
		return 0
	}
	s.data = batch
	return len(batch)
}

// Data implements the method of the pipeline.Source interface.
func (s *rowSource) Data() interface{} {
	return s.data
}
