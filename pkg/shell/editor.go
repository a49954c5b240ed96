package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"sophys.sh/cli/pkg/store/storedefs"
	"sophys.sh/cli/pkg/strutil"
)

// Number of commands loaded from the history database into the line editor.
const historySize = 1000

type editor interface {
	ReadLine(prompt string) (string, error)
}

type minEditor struct {
	in  *bufio.Reader
	out io.Writer
}

func newMinEditor(in *os.File, out io.Writer) *minEditor {
	return &minEditor{bufio.NewReader(in), out}
}

func (ed *minEditor) ReadLine(prompt string) (string, error) {
	fmt.Fprint(ed.out, prompt)
	line, err := ed.in.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	return strutil.ChopLineEnding(line), err
}

// A line editor for terminals. The terminal is only in raw mode while a line
// is being read.
type termEditor struct {
	file *os.File
	t    *term.Terminal
}

func newTermEditor(f *os.File, s *session) *termEditor {
	t := term.NewTerminal(f, "")
	t.History = loadHistory(s)
	complete := completer(s.magics.Names)
	search := &prefixSearch{store: s.env.History}
	t.AutoCompleteCallback = func(line string, pos int, key rune) (string, int, bool) {
		if key == keySearchBack || key == keySearchForward {
			return search.step(line, pos, key)
		}
		search.reset()
		return complete(line, pos, key)
	}
	return &termEditor{f, t}
}

func (ed *termEditor) ReadLine(prompt string) (string, error) {
	fd := int(ed.file.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return "", err
	}
	defer term.Restore(fd, state)
	// A terminal that reports no width keeps the default of 80 columns.
	if w, h, err := term.GetSize(fd); err == nil && w > 0 {
		ed.t.SetSize(w, h)
	}
	ed.t.SetPrompt(prompt)
	return ed.t.ReadLine()
}

// Line editor history seeded from the history database. Index 0 is the most
// recent line.
type history struct {
	lines []string
}

func loadHistory(s *session) *history {
	h := &history{}
	if s.env.History == nil {
		return h
	}
	next, err := s.env.History.NextCmdSeq()
	if err != nil {
		logger.Warn().Err(err).Msg("cannot load history")
		return h
	}
	cmds, err := s.env.History.CmdsWithSeq(max(next-historySize, 0), next)
	if err != nil {
		logger.Warn().Err(err).Msg("cannot load history")
		return h
	}
	for _, cmd := range cmds {
		h.lines = append(h.lines, cmd.Text)
	}
	return h
}

func (h *history) Add(line string) {
	if n := len(h.lines); n > 0 && h.lines[n-1] == line {
		return
	}
	h.lines = append(h.lines, line)
}

func (h *history) Len() int { return len(h.lines) }

func (h *history) At(i int) string { return h.lines[len(h.lines)-1-i] }

const (
	keySearchBack    = 18 // Ctrl-R
	keySearchForward = 19 // Ctrl-S
)

// Searches the history database for commands that start with what was typed
// before the cursor when the search began. Each Ctrl-R replaces the line
// with an older match and each Ctrl-S with a newer one. The line is left as
// is when there are no more matches.
type prefixSearch struct {
	store  storedefs.Store
	prefix string
	// Sequence number of the shown match, or 0 when no search is going on.
	seq int
	// Line shown by the last step. Editing it starts a new search.
	shown string
}

func (ps *prefixSearch) reset() { ps.seq = 0 }

func (ps *prefixSearch) step(line string, pos int, key rune) (string, int, bool) {
	if ps.store == nil {
		return "", 0, false
	}
	if ps.seq == 0 || line != ps.shown {
		next, err := ps.store.NextCmdSeq()
		if err != nil {
			logger.Warn().Err(err).Msg("cannot search history")
			return "", 0, false
		}
		ps.prefix, ps.seq = line[:pos], next
	}
	var (
		cmd storedefs.Cmd
		err error
	)
	if key == keySearchBack {
		cmd, err = ps.store.PrevCmd(ps.seq, ps.prefix)
	} else {
		cmd, err = ps.store.NextCmd(ps.seq+1, ps.prefix)
	}
	if err != nil {
		if !errors.Is(err, storedefs.ErrNoMatchingCmd) {
			logger.Warn().Err(err).Msg("cannot search history")
		}
		ps.shown = line
		return line, pos, true
	}
	ps.seq, ps.shown = cmd.Seq, cmd.Text
	return cmd.Text, len(cmd.Text), true
}

// Returns a callback that completes the command name with the tab key. The
// word is extended to the longest prefix shared by all candidates.
func completer(names func() []string) func(string, int, rune) (string, int, bool) {
	return func(line string, pos int, key rune) (string, int, bool) {
		if key != '\t' || pos != len(line) || strings.ContainsAny(line, " \t") {
			return "", 0, false
		}
		word := strings.TrimPrefix(line, "%")
		var matches []string
		for _, name := range names() {
			if strings.HasPrefix(name, word) {
				matches = append(matches, name)
			}
		}
		if len(matches) == 0 {
			return "", 0, false
		}
		common := matches[0]
		for _, m := range matches[1:] {
			for !strings.HasPrefix(m, common) {
				common = common[:len(common)-1]
			}
		}
		if len(matches) == 1 {
			common += " "
		}
		newLine := line[:len(line)-len(word)] + common
		return newLine, len(newLine), true
	}
}
