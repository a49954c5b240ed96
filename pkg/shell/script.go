package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"sophys.sh/cli/pkg/magic"
)

var errSourceNotUTF8 = errors.New("source is not UTF-8")

// Runs the lines of a script file, or of the first argument with -c. It
// stops at the first error or at exit, and returns the exit status.
func script(ctx context.Context, fds [3]*os.File, s *session, args []string, cmd bool) int {
	var name, code string
	if cmd {
		name, code = "code from -c", args[0]
	} else {
		name = args[0]
		var err error
		code, err = readFileUTF8(name)
		if err != nil {
			fmt.Fprintf(fds[2], "cannot read script %q: %v\n", name, err)
			return 2
		}
	}

	for i, line := range strings.Split(code, "\n") {
		err := s.eval(ctx, line)
		if errors.Is(err, magic.ErrExit) {
			return 0
		}
		if err != nil {
			fmt.Fprintf(fds[2], "%s, line %d: %v\n", name, i+1, err)
			return 2
		}
	}
	return 0
}

func readFileUTF8(fname string) (string, error) {
	bytes, err := os.ReadFile(fname)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(bytes) {
		return "", errSourceNotUTF8
	}
	return string(bytes), nil
}
