package main

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/smukkama/pvsite-server/internal/apperr"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// Exit codes by error kind
const (
	exitUnknown       = 1
	exitMalformed     = 2
	exitNotFound      = 3
	exitAuthorization = 4
	exitStorage       = 5
)

func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return apperr.Malformed("output", nil, "unknown output format %q", format)
	}
}

func exitCode(err error) int {
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}

	switch apperr.KindOf(err) {
	case apperr.KindMalformedInput:
		return exitMalformed
	case apperr.KindNotFound:
		return exitNotFound
	case apperr.KindAuthorization:
		return exitAuthorization
	case apperr.KindStorageFailure:
		return exitStorage
	default:
		return exitUnknown
	}
}
