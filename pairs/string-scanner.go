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
	"fmt"
	"strconv"
)

/*
A scanner to scan/parse ASCII strings representing lines in
tab-delimited contact-pair files.

The zero StringScanner is valid and empty.
*/
type StringScanner struct {
	index int
	data  string
	err   error
}

// Err returns the error that occurred during scanning/parsing.
func (sc *StringScanner) Err() error {
	return sc.err
}

// Reset resets the scanner, and initializes it with the given string.
func (sc *StringScanner) Reset(s string) {
	sc.index = 0
	sc.data = s
	sc.err = nil
}

// Len returns the number of ASCII characters that still need to be
// scanned/parsed. Returns 0 if Err() would return a non-nil value.
func (sc *StringScanner) Len() int {
	if sc.err != nil {
		return 0
	}
	return len(sc.data) - sc.index
}

func (sc *StringScanner) readUntilTab() string {
	start := sc.index
	for end := sc.index; end < len(sc.data); end++ {
		if sc.data[end] == '\t' {
			sc.index = end + 1
			return sc.data[start:end]
		}
	}
	sc.index = len(sc.data)
	return sc.data[start:]
}

// ParseString returns the next tab-delimited field.
func (sc *StringScanner) ParseString() string {
	if sc.err != nil {
		return ""
	}
	if sc.index >= len(sc.data) {
		sc.err = fmt.Errorf("missing field at position %v", sc.index)
		return ""
	}
	return sc.readUntilTab()
}

// ParseInt parses the next tab-delimited field as a base-10 integer.
func (sc *StringScanner) ParseInt() int64 {
	value := sc.ParseString()
	if sc.err != nil {
		return 0
	}
	val, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		sc.err = err
	}
	return val
}

// ParseFloat parses the next tab-delimited field as a float. Contact
// counts in matrix dumps may be balanced and therefore fractional.
func (sc *StringScanner) ParseFloat() float64 {
	value := sc.ParseString()
	if sc.err != nil {
		return 0
	}
	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		sc.err = err
	}
	return val
}

// ParseStrand parses the next tab-delimited field as a strand symbol,
// one of "+", "-", or ".".
func (sc *StringScanner) ParseStrand() byte {
	value := sc.ParseString()
	if sc.err != nil {
		return 0
	}
	if len(value) != 1 || (value[0] != '+' && value[0] != '-' && value[0] != '.') {
		sc.err = fmt.Errorf("invalid strand %v", value)
		return 0
	}
	return value[0]
}

// ParseRest returns all remaining tab-delimited fields, or nil when
// the line is exhausted.
func (sc *StringScanner) ParseRest() []string {
	if sc.err != nil {
		return nil
	}
	var rest []string
	for sc.index < len(sc.data) {
		rest = append(rest, sc.readUntilTab())
	}
	return rest
}
