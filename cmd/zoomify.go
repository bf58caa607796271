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

package cmd

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/vhfsantos/HiCLift/liftover"
)

// ZoomifyHelp is the help string for this command.
const ZoomifyHelp = "\nzoomify parameters:\n" +
	"hiclift zoomify cool-file output-prefix\n" +
	"--out-assembly name\n" +
	"--out-chromsizes file\n" +
	"--resolutions nr[,nr...]\n" +
	"[--tmpdir path]\n" +
	"[--memory nr[K|M|G|T]]\n" +
	"[--nr-of-threads nr]\n" +
	"[--binner-threads nr]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// Zoomify parses the command line for the zoomify command, which
// derives coarser resolutions for an existing cooler matrix.
func Zoomify() error {
	var (
		outAssembly, outChromSizes string
		resolutionList             string
		tmpDir, memory             string
		nrOfThreads, binnerThreads int
		timed                      bool
		profile, logPath           string
	)
	var flags flag.FlagSet
	flags.StringVar(&outAssembly, "out-assembly", "", "name of the genome assembly")
	flags.StringVar(&outChromSizes, "out-chromsizes", "", "chromosome sizes file of the assembly")
	flags.StringVar(&resolutionList, "resolutions", "", "comma-separated matrix resolutions, finest first")
	flags.StringVar(&tmpDir, "tmpdir", "", "directory for staging files")
	flags.StringVar(&memory, "memory", "4G", "memory budget for binning buffers")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.IntVar(&binnerThreads, "binner-threads", 0, "number of binner merge threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, ZoomifyHelp)

	input := getFilename(os.Args[2], ZoomifyHelp)
	output := getFilename(os.Args[3], ZoomifyHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if outAssembly == "" {
		sanityChecksFailed = true
		log.Println("Error: The --out-assembly name is required.")
	}
	if !checkExist("--out-chromsizes", outChromSizes) {
		sanityChecksFailed = true
	}
	resolutions, err := parseResolutions(resolutionList)
	if err != nil {
		sanityChecksFailed = true
		log.Printf("Error: %v.\n", err)
	}
	if len(resolutions) < 2 {
		sanityChecksFailed = true
		log.Println("Error: Zoomify requires at least two resolutions, finest first.")
	}
	memoryBudget, err := parseMemory(memory)
	if err != nil {
		sanityChecksFailed = true
		log.Printf("Error: %v.\n", err)
	}
	if nrOfThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
	}
	if binnerThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid binner-threads: ", binnerThreads)
	}

	opts := liftover.Options{
		InputPath:     input,
		OutputPrefix:  output,
		OutChromSizes: outChromSizes,
		OutAssembly:   outAssembly,
		Resolutions:   resolutions,
		TmpDir:        tmpDir,
		Memory:        memoryBudget,
		BinnerThreads: binnerThreads,
	}

	if !sanityChecksFailed && !checkCreate("", output+".mcool") {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, ZoomifyHelp)
		os.Exit(1)
	}

	// building and output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " zoomify ", input, " ", output,
		" --out-assembly ", outAssembly,
		" --out-chromsizes ", outChromSizes,
		" --resolutions ", resolutionList,
	)
	if tmpDir != "" {
		fmt.Fprint(&command, " --tmpdir ", tmpDir)
	}
	fmt.Fprint(&command, " --memory ", memory)
	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
		fmt.Fprint(&command, " --nr-of-threads ", nrOfThreads)
	}
	if binnerThreads > 0 {
		fmt.Fprint(&command, " --binner-threads ", binnerThreads)
	} else {
		opts.BinnerThreads = runtime.GOMAXPROCS(0)
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}
	if profile != "" {
		fmt.Fprint(&command, " --profile ", profile)
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	var runErr error
	timedRun(timed, profile, "Deriving coarser resolutions.", 1, func() {
		_, runErr = liftover.Zoomify(opts)
	})
	return runErr
}
