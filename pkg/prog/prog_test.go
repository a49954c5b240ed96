package prog_test

import (
	"os"
	"testing"

	. "sophys.sh/cli/pkg/prog"
	"sophys.sh/cli/pkg/prog/progtest"
)

var (
	Test       = progtest.Test
	ThatSophys = progtest.ThatSophys
)

func TestCommonFlagHandling(t *testing.T) {
	Test(t, testProgram{},
		ThatSophys("-bad-flag").
			ExitsWith(2).
			WritesStderrContaining("flag provided but not defined: -bad-flag\nUsage:"),
		// -h is treated as a bad flag
		ThatSophys("-h").
			ExitsWith(2).
			WritesStderrContaining("flag provided but not defined: -h\nUsage:"),

		ThatSophys("-help").
			WritesStdoutContaining("Usage: sophys-cli [flags] [script]"),
	)
}

func TestSharedFlags(t *testing.T) {
	p := &flagProgram{}
	Test(t, Composite(p, p),
		ThatSophys("-log", "x.log", "-log-level", "debug", "-json").DoesNothing(),
	)
	if p.log == nil || p.log.File != "x.log" || p.log.Level != "debug" {
		t.Errorf("log flags = %+v, want x.log and debug", p.log)
	}
	if p.json == nil || !*p.json {
		t.Errorf("-json was not parsed")
	}
}

func TestNoSuitableSubprogram(t *testing.T) {
	Test(t, testProgram{nextProgram: true},
		ThatSophys().
			ExitsWith(2).
			WritesStderr("internal error: no suitable subprogram\n"),
	)
}

func TestComposite(t *testing.T) {
	Test(t,
		Composite(testProgram{nextProgram: true}, testProgram{writeOut: "program 2"}),
		ThatSophys().WritesStdout("program 2"),
	)
}

func TestComposite_NoSuitableSubprogram(t *testing.T) {
	Test(t,
		Composite(testProgram{nextProgram: true}, testProgram{nextProgram: true}),
		ThatSophys().
			ExitsWith(2).
			WritesStderr("internal error: no suitable subprogram\n"),
	)
}

func TestComposite_PreferEarlierSubprogram(t *testing.T) {
	Test(t,
		Composite(
			testProgram{writeOut: "program 1"}, testProgram{writeOut: "program 2"}),
		ThatSophys().WritesStdout("program 1"),
	)
}

func TestBadUsageError(t *testing.T) {
	Test(t,
		testProgram{returnErr: BadUsage("lorem ipsum")},
		ThatSophys().ExitsWith(2).WritesStderrContaining("lorem ipsum\n"),
	)
}

func TestExitError(t *testing.T) {
	Test(t, testProgram{returnErr: Exit(3)},
		ThatSophys().ExitsWith(3),
	)
}

func TestExitError_0(t *testing.T) {
	Test(t, testProgram{returnErr: Exit(0)},
		ThatSophys().ExitsWith(0),
	)
}

type testProgram struct {
	nextProgram bool
	writeOut    string
	returnErr   error
}

func (p testProgram) RegisterFlags(f *FlagSet) {}

func (p testProgram) Run(fds [3]*os.File, args []string) error {
	if p.nextProgram {
		return ErrNextProgram
	}
	fds[1].WriteString(p.writeOut)
	return p.returnErr
}

// Asks for the shared flags from every instance in a Composite.
type flagProgram struct {
	log  *LogFlags
	json *bool
}

func (p *flagProgram) RegisterFlags(f *FlagSet) {
	p.log = f.Log()
	p.json = f.JSON()
}

func (p *flagProgram) Run(fds [3]*os.File, args []string) error { return nil }
