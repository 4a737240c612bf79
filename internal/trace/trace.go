// Package trace reads, writes, generates and replays allocation traces.
//
// The file format is the one used by the classic malloc-lab driver: four
// header integers followed by one operation per line.
//
//	<suggested heap size>
//	<number of ids>
//	<number of ops>
//	<weight>
//	a <id> <bytes>
//	r <id> <bytes>
//	f <id>
//
// Blank lines and lines starting with '#' are ignored.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// OpKind identifies a trace operation.
type OpKind byte

const (
	OpAlloc   OpKind = 'a'
	OpRealloc OpKind = 'r'
	OpFree    OpKind = 'f'
)

func (k OpKind) String() string {
	switch k {
	case OpAlloc:
		return "alloc"
	case OpRealloc:
		return "realloc"
	case OpFree:
		return "free"
	default:
		return fmt.Sprintf("OpKind(%q)", byte(k))
	}
}

// Op is one trace line.
type Op struct {
	Kind OpKind
	ID   int
	Size int // unused for OpFree
	Line int // 1-based source line, 0 for generated traces
}

// Trace is a parsed trace file.
type Trace struct {
	Name          string
	SuggestedHeap int
	NumIDs        int
	Weight        int
	Ops           []Op
}

// ParseError reports a malformed trace line.
type ParseError struct {
	Name string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("trace %s:%d: %s", e.Name, e.Line, e.Msg)
}

// ParseFile reads and parses the trace at path.
func ParseFile(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, filepath.Base(path))
}

// Parse reads a trace from r. name labels errors and results.
func Parse(r io.Reader, name string) (*Trace, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	tr := &Trace{Name: name}
	var header []int
	numOps := -1
	line := 0

	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		if len(header) < 4 {
			n, err := strconv.Atoi(text)
			if err != nil || n < 0 {
				return nil, &ParseError{Name: name, Line: line, Msg: fmt.Sprintf("bad header value %q", text)}
			}
			header = append(header, n)
			if len(header) == 4 {
				tr.SuggestedHeap, tr.NumIDs, numOps, tr.Weight = header[0], header[1], header[2], header[3]
				tr.Ops = make([]Op, 0, min(numOps, 1<<16))
			}
			continue
		}

		op, err := parseOp(text)
		if err != nil {
			return nil, &ParseError{Name: name, Line: line, Msg: err.Error()}
		}
		if op.ID >= tr.NumIDs {
			return nil, &ParseError{Name: name, Line: line,
				Msg: fmt.Sprintf("id %d out of range (header declares %d ids)", op.ID, tr.NumIDs)}
		}
		op.Line = line
		tr.Ops = append(tr.Ops, op)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("trace %s: %w", name, err)
	}
	if len(header) < 4 {
		return nil, &ParseError{Name: name, Line: line, Msg: "truncated header"}
	}
	if len(tr.Ops) != numOps {
		return nil, &ParseError{Name: name, Line: line,
			Msg: fmt.Sprintf("header declares %d ops, found %d", numOps, len(tr.Ops))}
	}
	return tr, nil
}

func parseOp(text string) (Op, error) {
	fields := strings.Fields(text)
	if len(fields[0]) != 1 {
		return Op{}, fmt.Errorf("unknown op %q", fields[0])
	}
	op := Op{Kind: OpKind(fields[0][0])}

	want := 3
	switch op.Kind {
	case OpAlloc, OpRealloc:
	case OpFree:
		want = 2
	default:
		return Op{}, fmt.Errorf("unknown op %q", fields[0])
	}
	if len(fields) != want {
		return Op{}, fmt.Errorf("%s: expected %d fields, got %d", op.Kind, want, len(fields))
	}

	id, err := strconv.Atoi(fields[1])
	if err != nil || id < 0 {
		return Op{}, fmt.Errorf("%s: bad id %q", op.Kind, fields[1])
	}
	op.ID = id

	if want == 3 {
		size, err := strconv.Atoi(fields[2])
		if err != nil || size < 0 {
			return Op{}, fmt.Errorf("%s: bad size %q", op.Kind, fields[2])
		}
		op.Size = size
	}
	return op, nil
}

// WriteTo writes the trace in file format.
func (tr *Trace) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	write := func(format string, args ...any) {
		c, _ := fmt.Fprintf(bw, format, args...)
		n += int64(c)
	}

	write("%d\n%d\n%d\n%d\n", tr.SuggestedHeap, tr.NumIDs, len(tr.Ops), tr.Weight)
	for _, op := range tr.Ops {
		if op.Kind == OpFree {
			write("%c %d\n", byte(op.Kind), op.ID)
		} else {
			write("%c %d %d\n", byte(op.Kind), op.ID, op.Size)
		}
	}
	return n, bw.Flush()
}
