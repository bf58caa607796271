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

package matrix

import (
	"bufio"
	"bytes"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vhfsantos/HiCLift/genome"
	"github.com/vhfsantos/HiCLift/pairs"
)

// The default external tools for the matrix container formats.
const (
	CoolerTool = "cooler"
	StrawTool  = "straw"
	JuicerTool = "juicer_tools"
)

// A CoolerDecoder streams the pixels of a .cool file (or one
// resolution of a .mcool file, addressed with the usual ::resolutions
// URI syntax) by running cooler dump.
type CoolerDecoder struct {
	Path string
	Tool string
}

// Rows implements the Decoder interface.
func (d *CoolerDecoder) Rows(emit func(Row) error) error {
	tool := d.Tool
	if tool == "" {
		tool = CoolerTool
	}
	cmd := exec.Command(tool, "dump", "--join", "--no-balance", d.Path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	scanner := bufio.NewScanner(bufio.NewReader(outPipe))
	scanner.Buffer(nil, 1<<20)
	var sc pairs.StringScanner
	for scanner.Scan() {
		sc.Reset(scanner.Text())
		var row Row
		row.Chrom1 = sc.ParseString()
		row.Start1 = sc.ParseInt()
		sc.ParseInt() // end1
		row.Chrom2 = sc.ParseString()
		row.Start2 = sc.ParseInt()
		sc.ParseInt() // end2
		row.Count = sc.ParseFloat()
		if err := sc.Err(); err != nil {
			return fmt.Errorf("%v, in cooler dump output %q", err, scanner.Text())
		}
		if err := emit(row); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%v, while running %v dump on %v: %v", err, tool, d.Path, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// A StrawDecoder streams the base-resolution pixels of a juicer .hic
// file by running straw once per chromosome pair of the source
// assembly. Chromosome pairs absent from the container are skipped.
type StrawDecoder struct {
	Path       string
	Tool       string
	Resolution int64
	Assembly   *genome.Assembly
}

// Rows implements the Decoder interface.
func (d *StrawDecoder) Rows(emit func(Row) error) error {
	tool := d.Tool
	if tool == "" {
		tool = StrawTool
	}
	chroms := d.Assembly.Chromosomes
	for i := 0; i < len(chroms); i++ {
		for j := i; j < len(chroms); j++ {
			err := d.dumpPair(tool, chroms[i].Name, chroms[j].Name, emit)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *StrawDecoder) dumpPair(tool, chrom1, chrom2 string, emit func(Row) error) error {
	cmd := exec.Command(tool, "observed", "NONE", d.Path, chrom1, chrom2, "BP", strconv.FormatInt(d.Resolution, 10))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	scanner := bufio.NewScanner(bufio.NewReader(outPipe))
	var sc pairs.StringScanner
	for scanner.Scan() {
		sc.Reset(scanner.Text())
		var row Row
		row.Chrom1 = chrom1
		row.Chrom2 = chrom2
		row.Start1 = sc.ParseInt()
		row.Start2 = sc.ParseInt()
		row.Count = sc.ParseFloat()
		if err := sc.Err(); err != nil {
			return fmt.Errorf("%v, in straw output %q", err, scanner.Text())
		}
		if err := emit(row); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if err := cmd.Wait(); err != nil {
		// straw reports chromosome pairs without any contacts, or
		// chromosomes absent from the container, as failures.
		log.Printf("Skipping %v/%v: %v", chrom1, chrom2, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// A CoolerEncoder materializes a .cool (single resolution) or .mcool
// (multiple resolutions) container by running cooler load on the
// binner's staging files.
type CoolerEncoder struct {
	Tool string
}

// Encode implements the Encoder interface.
func (e *CoolerEncoder) Encode(job EncodeJob) error {
	tool := e.Tool
	if tool == "" {
		tool = CoolerTool
	}
	for _, resolution := range job.Resolutions {
		uri := job.OutPath
		if len(job.Resolutions) > 1 {
			uri = fmt.Sprintf("%v::resolutions/%v", job.OutPath, resolution)
		}
		bins := fmt.Sprintf("%v:%v", job.ChromSizesPath, resolution)
		cmd := exec.Command(tool, "load", "-f", "coo", bins, PixelsFile(job.StagingDir, resolution), uri)
		if err := runTool(cmd); err != nil {
			return err
		}
	}
	return nil
}

// A JuicerEncoder materializes a .hic container by converting the
// finest-resolution staging pixels to juicer short format and running
// juicer_tools pre with the full resolution list.
type JuicerEncoder struct {
	Tool string
}

// Encode implements the Encoder interface.
func (e *JuicerEncoder) Encode(job EncodeJob) error {
	tool := e.Tool
	if tool == "" {
		tool = JuicerTool
	}
	finest := job.Resolutions[0]
	short := filepath.Join(job.StagingDir, "short.txt")
	if err := writeShortForm(job.StagingDir, finest, short); err != nil {
		return err
	}
	resolutions := make([]string, len(job.Resolutions))
	for i, resolution := range job.Resolutions {
		resolutions[i] = strconv.FormatInt(resolution, 10)
	}
	cmd := exec.Command(tool, "pre", "-r", strings.Join(resolutions, ","), short, job.OutPath, job.ChromSizesPath)
	return runTool(cmd)
}

// writeShortForm renders the finest-resolution pixels as juicer
// "short with score" lines, placing each endpoint at its bin start.
func writeShortForm(dir string, resolution int64, path string) (err error) {
	coords, err := ReadBinCoords(dir, resolution)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := file.Close(); err == nil {
			err = nerr
		}
	}()
	out := bufio.NewWriter(file)
	var buf []byte
	err = EachPixel(dir, resolution, func(bin1, bin2 int64, count float64) error {
		c1, c2 := coords[bin1], coords[bin2]
		buf = buf[:0]
		buf = append(buf, "0\t"...)
		buf = append(buf, c1.Chrom...)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, c1.Start, 10)
		buf = append(buf, "\t0\t0\t"...)
		buf = append(buf, c2.Chrom...)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, c2.Start, 10)
		buf = append(buf, "\t1\t"...)
		buf = append(buf, FormatCount(count)...)
		buf = append(buf, '\n')
		_, werr := out.Write(buf)
		return werr
	})
	if err != nil {
		return err
	}
	return out.Flush()
}

func runTool(cmd *exec.Cmd) error {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%v, while running %v: %v", err, strings.Join(cmd.Args, " "), strings.TrimSpace(stderr.String()))
	}
	return nil
}
