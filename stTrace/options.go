// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"regexp"
	"strings"

	"github.com/bbnote/sttrace/tracer"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// attachedVerbosity matches "-v50", the short verbose flag with its level
// glued on.
var attachedVerbosity = regexp.MustCompile(`^-v([0-9]+)$`)

func newFlagSet(settings *tracer.Settings, noReset *bool, output io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("st-trace", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.SortFlags = false

	fs.BoolVarP(&settings.ShowHelp, "help", "h", false, "Print this help")
	fs.BoolVarP(&settings.ShowVersion, "version", "V", false, "Print this version")
	fs.IntVarP(&settings.LoggingLevel, "verbose", "v", tracer.DefaultLoggingLevel,
		"Specify a specific verbosity level (0..99), bare -v enables full debug output")
	fs.Lookup("verbose").NoOptDefVal = "100"
	fs.Uint32VarP(&settings.CoreClockMHz, "clock", "c", 0, "Specify a specific system clock in MHz")
	fs.BoolVarP(noReset, "no-reset", "n", false, "Do not reset board on connection")
	fs.StringVarP(&settings.SerialNumber, "serial", "s", "", "Use a specific serial number")
	fs.BoolVarP(&settings.Force, "force", "f", false, "Ignore most initialization errors")

	return fs
}

func normalizeArgs(args []string) []string {
	normalized := make([]string, len(args))

	for i, arg := range args {
		if m := attachedVerbosity.FindStringSubmatch(arg); m != nil {
			arg = "--verbose=" + m[1]
		}

		normalized[i] = arg
	}

	return normalized
}

// parseOptions turns the command line into settings. Unknown flags and
// positional arguments are logged and rejected unless --force is given.
func parseOptions(args []string, output io.Writer, log logrus.FieldLogger) (tracer.Settings, error) {
	args = normalizeArgs(args)

	settings := tracer.DefaultSettings()
	noReset := false

	fs := newFlagSet(&settings, &noReset, output)
	parseErr := fs.Parse(args)

	if parseErr != nil {
		log.Errorf("invalid command line: %v", parseErr)

		// parse again ignoring unknown flags to learn whether we are forced
		settings = tracer.DefaultSettings()
		noReset = false

		fs = newFlagSet(&settings, &noReset, output)
		fs.ParseErrorsWhitelist.UnknownFlags = true

		if err := fs.Parse(args); err != nil {
			return settings, errors.Wrap(tracer.ErrInvalidArgument, err.Error())
		}

		unknown, dropped := unrecognizedFlags(fs, args)

		for _, flag := range unknown {
			log.Errorf("unrecognized option '%s'", flag)
		}

		for _, arg := range dropped {
			log.Errorf("unrecognized argument '%s'", arg)
		}
	}

	settings.ResetBoard = !noReset

	for _, arg := range fs.Args() {
		log.Errorf("unrecognized argument '%s'", arg)
	}

	if (parseErr != nil || fs.NArg() > 0) && !settings.Force {
		return settings, errors.Wrap(tracer.ErrInvalidArgument, "unrecognized command line")
	}

	return settings, nil
}

func isFlagValue(arg string) bool {
	return !strings.HasPrefix(arg, "-")
}

// unrecognizedFlags lists the flags in args that fs does not know, together
// with the bare arguments a whitelisting parse swallows as their values.
func unrecognizedFlags(fs *pflag.FlagSet, args []string) (unknown []string, dropped []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if arg == "--" {
			return
		}

		if len(arg) < 2 || arg[0] != '-' {
			continue
		}

		if arg[1] == '-' {
			name := strings.SplitN(arg[2:], "=", 2)[0]
			hasValue := strings.Contains(arg, "=")

			if flag := fs.Lookup(name); flag == nil {
				unknown = append(unknown, arg)

				if !hasValue && i+1 < len(args) && isFlagValue(args[i+1]) {
					i++
					dropped = append(dropped, args[i])
				}
			} else if flag.NoOptDefVal == "" && !hasValue {
				i++
			}

			continue
		}

		for shorts := arg[1:]; len(shorts) > 0; {
			hasValue := len(shorts) > 2 && shorts[1] == '='
			flag := fs.ShorthandLookup(shorts[:1])

			if flag == nil {
				unknown = append(unknown, "-"+shorts[:1])

				if hasValue {
					break
				}

				if i+1 < len(args) && isFlagValue(args[i+1]) {
					i++
					dropped = append(dropped, args[i])
				}

				shorts = shorts[1:]
				continue
			}

			if flag.NoOptDefVal != "" && !hasValue {
				shorts = shorts[1:]
				continue
			}

			// the value is glued on or is the next argument
			if len(shorts) == 1 {
				i++
			}

			break
		}
	}

	return
}

func usage(output io.Writer) {
	settings := tracer.DefaultSettings()
	noReset := false

	fs := newFlagSet(&settings, &noReset, output)

	io.WriteString(output, "st-trace - usage:\n")
	fs.PrintDefaults()
	io.WriteString(output, "\nExample:\n  st-trace -c72 -s003A00123456789012345678\n")
}
