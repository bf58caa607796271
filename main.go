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

// HiCLift is a high-performance tool for converting chromatin contact
// data between genome assemblies and between contact-data formats.
//
// Please see https://github.com/vhfsantos/HiCLift for a documentation
// of the tool.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/vhfsantos/HiCLift/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: lift, zoomify")
	fmt.Fprint(os.Stderr, "\n", cmd.LiftHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.ZoomifyHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage, "\n")
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "lift":
		err = cmd.Lift()
	case "zoomify":
		err = cmd.Zoomify()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command: ", os.Args[1])
		fmt.Fprint(os.Stderr, cmd.HelpMessage, "\n")
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}
