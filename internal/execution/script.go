package execution

import (
	"fmt"
	"regexp"
	"strings"

	"oasisrun/internal/fsutil"
)

var safeArg = regexp.MustCompile(`^[A-Za-z0-9_./=-]+$`)

func shellQuote(s string) string {
	if safeArg.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// group is a run of stages connected by anonymous pipes, rendered as one
// shell pipeline.
type group struct {
	stages     []Stage
	background bool
}

// pipelineGroups folds anonymous stdout-to-stdin links into pipelines.
// Stage order within a group follows the data flow; group order follows the
// plan's stage order by group head.
func pipelineGroups(p *Plan) []group {
	writerOf := map[string]int{}
	readerOf := map[string]int{}
	for i, s := range p.Stages {
		if id, _ := p.stdoutPipeID(s); id != "" {
			if pipe, _ := p.pipe(id); pipe.Path == "" {
				writerOf[id] = i
			}
		}
		if id, _ := p.stdinPipeID(s); id != "" {
			if pipe, _ := p.pipe(id); pipe.Path == "" {
				readerOf[id] = i
			}
		}
	}
	next := map[int]int{}
	hasPrev := map[int]bool{}
	for id, w := range writerOf {
		if r, ok := readerOf[id]; ok {
			next[w] = r
			hasPrev[r] = true
		}
	}

	var groups []group
	for i, s := range p.Stages {
		if hasPrev[i] {
			continue
		}
		g := group{stages: []Stage{s}, background: s.Background}
		for j, ok := next[i]; ok; j, ok = next[j] {
			g.stages = append(g.stages, p.Stages[j])
		}
		groups = append(groups, g)
	}
	return groups
}

func renderGroup(p *Plan, g group) string {
	segs := make([]string, 0, len(g.stages))
	for _, s := range g.stages {
		args := make([]string, len(s.Args))
		for i, a := range s.Args {
			args[i] = shellQuote(a)
		}
		seg := strings.Join(args, " ")
		if id, _ := p.stdinPipeID(s); id != "" {
			if pipe, _ := p.pipe(id); pipe.Path != "" {
				seg += " < " + shellQuote(pipe.Path)
			}
		}
		if id, _ := p.stdoutPipeID(s); id != "" {
			if pipe, _ := p.pipe(id); pipe.Path != "" {
				seg += " > " + shellQuote(pipe.Path)
			}
		}
		if s.OutputFile != "" {
			seg += " > " + shellQuote(s.OutputFile)
		}
		segs = append(segs, seg)
	}
	return strings.Join(segs, " | ")
}

// BuildScript serializes a validated plan to a standalone bash script.
// Background pipelines are launched with & and their PIDs collected; the
// last foreground pipeline runs in the shell itself; the script's exit code
// is the first non-zero stage status.
func BuildScript(p *Plan) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	b.WriteString("# Generated loss calculation run script.\n\n")
	b.WriteString("set -e\nset -o pipefail\n\n")
	b.WriteString("cd \"$(dirname \"$0\")\"\n\n")
	b.WriteString("mkdir -p fifo output work\n")
	fmt.Fprintf(&b, "rm -f fifo/%s_*\n", p.RunToken)
	for _, pipe := range p.Pipes {
		if pipe.Path != "" {
			fmt.Fprintf(&b, "mkfifo %s\n", shellQuote(pipe.Path))
		}
	}
	b.WriteString("\npids=\"\"\ncode=0\n\n")

	groups := pipelineGroups(p)
	var fg []group
	for _, g := range groups {
		if !g.background {
			fg = append(fg, g)
			continue
		}
		fmt.Fprintf(&b, "%s &\npids=\"$pids $!\"\n", renderGroup(p, g))
	}
	b.WriteString("\n")
	for i, g := range fg {
		if i < len(fg)-1 {
			fmt.Fprintf(&b, "%s &\npids=\"$pids $!\"\n", renderGroup(p, g))
			continue
		}
		fmt.Fprintf(&b, "%s || code=$?\n", renderGroup(p, g))
	}

	b.WriteString("\nfor pid in $pids; do\n\twait \"$pid\" || code=$?\ndone\n\n")
	fmt.Fprintf(&b, "rm -f fifo/%s_*\n\nexit $code\n", p.RunToken)
	return []byte(b.String()), nil
}

// WriteScript writes the plan's script to path, executable, atomically.
func WriteScript(p *Plan, path string) error {
	script, err := BuildScript(p)
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(path, script, 0755)
}
