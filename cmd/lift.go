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

// LiftHelp is the help string for this command.
const LiftHelp = "\nlift parameters:\n" +
	"hiclift lift (contact-file | /dev/stdin) output-prefix\n" +
	"--in-assembly name\n" +
	"--out-assembly name\n" +
	"--out-chromsizes file\n" +
	"[--chain-file file]\n" +
	"[--input-format [pairs | hic-pro | cooler | juicer]]\n" +
	"[--output-format [pairs | cool | hic]]\n" +
	"[--in-chromsizes file]\n" +
	"[--resolutions nr[,nr...]]\n" +
	"[--tmpdir path]\n" +
	"[--memory nr[K|M|G|T]]\n" +
	"[--max-malformed-fraction nr]\n" +
	"[--nr-of-threads nr]\n" +
	"[--binner-threads nr]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// Lift parses the command line for the lift command and runs one
// conversion.
func Lift() error {
	var (
		inputFormat, outputFormat   string
		inAssembly, outAssembly     string
		outChromSizes, inChromSizes string
		chainFile, resolutionList   string
		tmpDir, memory              string
		maxMalformedFraction        float64
		nrOfThreads, binnerThreads  int
		timed                       bool
		profile, logPath            string
	)
	var flags flag.FlagSet
	flags.StringVar(&inputFormat, "input-format", "pairs", "format of the input file")
	flags.StringVar(&outputFormat, "output-format", "pairs", "format of the output file")
	flags.StringVar(&inAssembly, "in-assembly", "", "name of the source genome assembly")
	flags.StringVar(&outAssembly, "out-assembly", "", "name of the destination genome assembly")
	flags.StringVar(&outChromSizes, "out-chromsizes", "", "chromosome sizes file of the destination assembly")
	flags.StringVar(&inChromSizes, "in-chromsizes", "", "chromosome sizes file of the source assembly (juicer input only)")
	flags.StringVar(&chainFile, "chain-file", "", "UCSC chain file from the source to the destination assembly")
	flags.StringVar(&resolutionList, "resolutions", "", "comma-separated matrix resolutions, finest first")
	flags.StringVar(&tmpDir, "tmpdir", "", "directory for staging files")
	flags.StringVar(&memory, "memory", "4G", "memory budget for binning buffers")
	flags.Float64Var(&maxMalformedFraction, "max-malformed-fraction", 0.05, "tolerated fraction of malformed input records")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.IntVar(&binnerThreads, "binner-threads", 0, "number of binner merge threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, LiftHelp)

	input := getFilename(os.Args[2], LiftHelp)
	output := getFilename(os.Args[3], LiftHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if !liftover.ValidInputFormat(inputFormat) {
		sanityChecksFailed = true
		log.Printf("Error: Invalid input format %v.\n", inputFormat)
	}
	if !liftover.ValidOutputFormat(outputFormat) {
		sanityChecksFailed = true
		log.Printf("Error: Invalid output format %v.\n", outputFormat)
	}
	if inAssembly == "" || outAssembly == "" {
		sanityChecksFailed = true
		log.Println("Error: The --in-assembly and --out-assembly names are required.")
	}
	if !checkExist("--out-chromsizes", outChromSizes) {
		sanityChecksFailed = true
	}
	if inChromSizes != "" && !checkExist("--in-chromsizes", inChromSizes) {
		sanityChecksFailed = true
	}
	if inAssembly != outAssembly {
		if chainFile == "" {
			sanityChecksFailed = true
			log.Println("Error: Converting between assemblies requires the --chain-file option.")
		} else if !checkExist("--chain-file", chainFile) {
			sanityChecksFailed = true
		}
	}
	resolutions, err := parseResolutions(resolutionList)
	if err != nil {
		sanityChecksFailed = true
		log.Printf("Error: %v.\n", err)
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
		InputPath:            input,
		OutputPrefix:         output,
		InputFormat:          inputFormat,
		OutputFormat:         outputFormat,
		OutChromSizes:        outChromSizes,
		InChromSizes:         inChromSizes,
		InAssembly:           inAssembly,
		OutAssembly:          outAssembly,
		ChainFile:            chainFile,
		Resolutions:          resolutions,
		TmpDir:               tmpDir,
		Memory:               memoryBudget,
		BinnerThreads:        binnerThreads,
		MaxMalformedFraction: maxMalformedFraction,
	}

	if !sanityChecksFailed && !checkCreate("", liftover.OutputPath(opts)) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, LiftHelp)
		os.Exit(1)
	}

	// building and output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " lift ", input, " ", output,
		" --input-format ", inputFormat,
		" --output-format ", outputFormat,
		" --in-assembly ", inAssembly,
		" --out-assembly ", outAssembly,
		" --out-chromsizes ", outChromSizes,
	)
	if inChromSizes != "" {
		fmt.Fprint(&command, " --in-chromsizes ", inChromSizes)
	}
	if chainFile != "" {
		fmt.Fprint(&command, " --chain-file ", chainFile)
	}
	if resolutionList != "" {
		fmt.Fprint(&command, " --resolutions ", resolutionList)
	}
	if tmpDir != "" {
		fmt.Fprint(&command, " --tmpdir ", tmpDir)
	}
	fmt.Fprint(&command, " --memory ", memory)
	fmt.Fprint(&command, " --max-malformed-fraction ", maxMalformedFraction)
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
	timedRun(timed, profile, "Converting contact data.", 1, func() {
		_, runErr = liftover.Run(opts)
	})
	return runErr
}
