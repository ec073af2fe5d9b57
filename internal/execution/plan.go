// Package execution turns analysis settings into a validated execution plan
// for the calculation engine and runs it, either in-process or through a
// generated shell script.
package execution

import (
	"fmt"
	"slices"
)

// ExecutionError reports a plan or engine failure. Status carries the stage
// exit code when one is known.
type ExecutionError struct {
	Stage  string
	Status int
	Msg    string
}

func (e *ExecutionError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("execution failed: stage %s: %s", e.Stage, e.Msg)
	}
	return "execution failed: " + e.Msg
}

// Pipe is a byte stream between two stages. A named pipe has a fifo path
// relative to the run dir; an anonymous pipe connects one stage's stdout to
// another's stdin.
type Pipe struct {
	ID   string
	Path string
}

// Stage is one engine process. Inputs and Outputs name the pipes it consumes
// and produces. A named pipe whose path appears in Args is opened by the
// process itself; any other input or output is wired to stdin or stdout, at
// most one each. OutputFile redirects stdout to a plain file instead.
type Stage struct {
	Name       string
	Args       []string
	Inputs     []string
	Outputs    []string
	OutputFile string
	Background bool
}

// Plan is the full data-flow graph of one run. It is inert: nothing is
// spawned until a Runner executes it or it is serialized to a script, and
// neither happens before Validate passes.
type Plan struct {
	RunDir   string
	RunToken string
	Pipes    []Pipe
	Stages   []Stage
}

func (p *Plan) pipe(id string) (Pipe, bool) {
	for _, pipe := range p.Pipes {
		if pipe.ID == id {
			return pipe, true
		}
	}
	return Pipe{}, false
}

// selfOpened reports whether the stage opens the pipe by path itself rather
// than through a stdio redirect.
func selfOpened(s Stage, pipe Pipe) bool {
	return pipe.Path != "" && slices.Contains(s.Args, pipe.Path)
}

// stdinPipeID returns the input pipe wired to the stage's stdin, or "" when
// every input is self-opened.
func (p *Plan) stdinPipeID(s Stage) (string, error) {
	var id string
	for _, in := range s.Inputs {
		pipe, ok := p.pipe(in)
		if !ok {
			return "", &ExecutionError{Stage: s.Name, Msg: fmt.Sprintf("unknown input pipe %q", in)}
		}
		if selfOpened(s, pipe) {
			continue
		}
		if id != "" {
			return "", &ExecutionError{Stage: s.Name, Msg: "more than one input wired to stdin"}
		}
		id = in
	}
	return id, nil
}

// stdoutPipeID returns the output pipe wired to the stage's stdout, or ""
// when every output is self-opened.
func (p *Plan) stdoutPipeID(s Stage) (string, error) {
	var id string
	for _, out := range s.Outputs {
		pipe, ok := p.pipe(out)
		if !ok {
			return "", &ExecutionError{Stage: s.Name, Msg: fmt.Sprintf("unknown output pipe %q", out)}
		}
		if selfOpened(s, pipe) {
			continue
		}
		if id != "" {
			return "", &ExecutionError{Stage: s.Name, Msg: "more than one output wired to stdout"}
		}
		id = out
	}
	return id, nil
}

// Validate checks the plan's data-flow graph: every pipe has exactly one
// writer and one reader, no stage references an unknown pipe, stdio wiring
// is unambiguous, and the graph is acyclic. A plan that fails validation
// must never be executed.
func (p *Plan) Validate() error {
	byID := map[string]Pipe{}
	for _, pipe := range p.Pipes {
		if pipe.ID == "" {
			return &ExecutionError{Msg: "pipe with empty ID"}
		}
		if _, dup := byID[pipe.ID]; dup {
			return &ExecutionError{Msg: fmt.Sprintf("duplicate pipe %q", pipe.ID)}
		}
		byID[pipe.ID] = pipe
	}

	writers := map[string][]int{}
	readers := map[string][]int{}
	for i, s := range p.Stages {
		if len(s.Args) == 0 {
			return &ExecutionError{Stage: s.Name, Msg: "stage has no command"}
		}
		for _, id := range s.Inputs {
			if _, ok := byID[id]; !ok {
				return &ExecutionError{Stage: s.Name, Msg: fmt.Sprintf("unknown input pipe %q", id)}
			}
			readers[id] = append(readers[id], i)
		}
		for _, id := range s.Outputs {
			if _, ok := byID[id]; !ok {
				return &ExecutionError{Stage: s.Name, Msg: fmt.Sprintf("unknown output pipe %q", id)}
			}
			writers[id] = append(writers[id], i)
		}
		if _, err := p.stdinPipeID(s); err != nil {
			return err
		}
		out, err := p.stdoutPipeID(s)
		if err != nil {
			return err
		}
		if out != "" && s.OutputFile != "" {
			return &ExecutionError{Stage: s.Name, Msg: "stdout wired to both a pipe and an output file"}
		}
	}

	for id := range byID {
		if n := len(writers[id]); n != 1 {
			return &ExecutionError{Msg: fmt.Sprintf("pipe %q has %d writers, want exactly 1", id, n)}
		}
		if n := len(readers[id]); n != 1 {
			return &ExecutionError{Msg: fmt.Sprintf("pipe %q has %d readers, want exactly 1", id, n)}
		}
	}

	return p.checkAcyclic(writers, readers)
}

func (p *Plan) checkAcyclic(writers, readers map[string][]int) error {
	adj := map[int][]int{}
	for id, ws := range writers {
		adj[ws[0]] = append(adj[ws[0]], readers[id][0])
	}

	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(p.Stages))
	var visit func(int) error
	visit = func(i int) error {
		color[i] = gray
		for _, j := range adj[i] {
			switch color[j] {
			case gray:
				return &ExecutionError{Stage: p.Stages[i].Name, Msg: fmt.Sprintf("data-flow cycle through stage %s", p.Stages[j].Name)}
			case white:
				if err := visit(j); err != nil {
					return err
				}
			}
		}
		color[i] = black
		return nil
	}
	for i := range p.Stages {
		if color[i] == white {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	return nil
}
