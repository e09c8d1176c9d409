// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// nwbplay writes synthetic recordings and inspects or replays recorded
// containers.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/OpenPSG/nwb/internal/config"
	"github.com/OpenPSG/nwb/internal/logging"
	"github.com/fatih/color"
)

var (
	errUsage = errors.New("usage")

	heading = color.New(color.FgCyan, color.Bold)
	warning = color.New(color.FgYellow)
	failure = color.New(color.FgRed)
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			failure.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// env is the state shared by every command.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("nwbplay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "path to a TOML or YAML config file")
	if err := fs.Parse(args); err != nil {
		usage()
		return errUsage
	}
	if fs.NArg() < 1 {
		usage()
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("error creating logger: %w", err)
	}
	e := &env{cfg: cfg, logger: logger, out: out}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "synth":
		return e.cmdSynth(rest)
	case "info":
		return e.cmdInfo(rest)
	case "read":
		return e.cmdRead(rest)
	case "events":
		return e.cmdEvents(rest)
	case "help":
		usage()
		return nil
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		return errUsage
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `nwbplay - Write, inspect and replay NWB recordings

Usage: nwbplay [options] <command> [args]

Commands:
  synth <file>    Write a synthetic recording
  info <file>     List the streams, spike series and skipped entries
  read <file>     Print samples of a stream, looping at the end
  events <file>   Print the TTL events of a playback interval
  help            Show this help message

Options:
  -config <path>  Path to a TOML or YAML config file`)
}

// commandFlags parses the flags of a command taking a single file argument.
func commandFlags(name string, args []string, define func(fs *flag.FlagSet)) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if define != nil {
		define(fs)
	}
	if err := fs.Parse(args); err != nil {
		return "", errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: nwbplay %s [flags] <file>\n", name)
		return "", errUsage
	}
	return fs.Arg(0), nil
}
