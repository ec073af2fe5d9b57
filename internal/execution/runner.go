package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"oasisrun/internal/lock"
)

// CommandFactory builds the command for one stage. Tests substitute it to
// stub out the calculation engine.
type CommandFactory func(ctx context.Context, name string, args ...string) *exec.Cmd

// Runner executes a validated plan in-process: it creates the fifos, wires
// the anonymous pipes, and supervises one OS process per stage.
type Runner struct {
	CommandFactory CommandFactory
	Logger         *log.Logger
}

type anonPipe struct {
	r, w *os.File
}

// Execute runs the plan and blocks until every stage has finished. It
// returns the exit status of the first failing stage, or 0. The workspace
// is held under an exclusive run lock for the duration; outputs already
// produced are preserved on failure.
func (r *Runner) Execute(ctx context.Context, plan *Plan) (int, error) {
	if err := plan.Validate(); err != nil {
		return -1, err
	}

	lk := lock.New(filepath.Join(plan.RunDir, "run.lock"))
	if err := lk.TryLock(); err != nil {
		return -1, err
	}
	defer lk.Unlock()

	if err := makeFifos(plan); err != nil {
		return -1, err
	}

	anon := map[string]anonPipe{}
	for _, pipe := range plan.Pipes {
		if pipe.Path != "" {
			continue
		}
		pr, pw, err := os.Pipe()
		if err != nil {
			return -1, fmt.Errorf("create pipe %s: %w", pipe.ID, err)
		}
		anon[pipe.ID] = anonPipe{r: pr, w: pw}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, st := range orderedStages(plan) {
		st := st
		g.Go(func() error {
			return r.runStage(gctx, plan, st, anon)
		})
	}

	// Fifo opens block until the other end arrives. When a stage fails the
	// group context cancels; opening each fifo read-write releases any
	// goroutine still parked in open.
	stop := make(chan struct{})
	go func() {
		select {
		case <-stop:
			return
		case <-gctx.Done():
		}
		for {
			select {
			case <-stop:
				return
			default:
			}
			unblockFifos(plan)
			time.Sleep(10 * time.Millisecond)
		}
	}()

	err := g.Wait()
	close(stop)
	for _, p := range anon {
		p.r.Close()
		p.w.Close()
	}

	if err != nil {
		var ee *ExecutionError
		if errors.As(err, &ee) && ee.Status != 0 {
			return ee.Status, err
		}
		return -1, err
	}
	if r.Logger != nil {
		r.Logger.Printf("run %s completed", plan.RunToken)
	}
	return 0, nil
}

func (r *Runner) runStage(ctx context.Context, plan *Plan, st Stage, anon map[string]anonPipe) error {
	factory := r.CommandFactory
	if factory == nil {
		factory = exec.CommandContext
	}
	cmd := factory(ctx, st.Args[0], st.Args[1:]...)
	cmd.Dir = plan.RunDir
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
	cmd.Stderr = os.Stderr

	var closers []*os.File
	fail := func(err error) error {
		closeAll(closers)
		return err
	}

	if id, _ := plan.stdinPipeID(st); id != "" {
		pipe, _ := plan.pipe(id)
		if pipe.Path == "" {
			cmd.Stdin = anon[id].r
			closers = append(closers, anon[id].r)
		} else {
			f, err := os.OpenFile(filepath.Join(plan.RunDir, pipe.Path), os.O_RDONLY, 0)
			if err != nil {
				return fail(&ExecutionError{Stage: st.Name, Msg: fmt.Sprintf("open %s: %v", pipe.Path, err)})
			}
			if ctx.Err() != nil {
				f.Close()
				return fail(ctx.Err())
			}
			cmd.Stdin = f
			closers = append(closers, f)
		}
	}

	if id, _ := plan.stdoutPipeID(st); id != "" {
		pipe, _ := plan.pipe(id)
		if pipe.Path == "" {
			cmd.Stdout = anon[id].w
			closers = append(closers, anon[id].w)
		} else {
			f, err := os.OpenFile(filepath.Join(plan.RunDir, pipe.Path), os.O_WRONLY, 0)
			if err != nil {
				return fail(&ExecutionError{Stage: st.Name, Msg: fmt.Sprintf("open %s: %v", pipe.Path, err)})
			}
			if ctx.Err() != nil {
				f.Close()
				return fail(ctx.Err())
			}
			cmd.Stdout = f
			closers = append(closers, f)
		}
	} else if st.OutputFile != "" {
		full := filepath.Join(plan.RunDir, st.OutputFile)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return fail(&ExecutionError{Stage: st.Name, Msg: fmt.Sprintf("create output dir: %v", err)})
		}
		f, err := os.Create(full)
		if err != nil {
			return fail(&ExecutionError{Stage: st.Name, Msg: fmt.Sprintf("create %s: %v", st.OutputFile, err)})
		}
		cmd.Stdout = f
		closers = append(closers, f)
	}

	if ctx.Err() != nil {
		return fail(ctx.Err())
	}
	if r.Logger != nil {
		r.Logger.Printf("starting stage %s", st.Name)
	}
	if err := cmd.Start(); err != nil {
		return fail(&ExecutionError{Stage: st.Name, Msg: fmt.Sprintf("start: %v", err)})
	}
	// The child holds its own copies now; keeping ours open would withhold
	// EOF from downstream stages.
	closeAll(closers)

	if err := cmd.Wait(); err != nil {
		status := -1
		var xe *exec.ExitError
		if errors.As(err, &xe) {
			status = xe.ExitCode()
		}
		return &ExecutionError{Stage: st.Name, Status: status, Msg: err.Error()}
	}
	return nil
}

func closeAll(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// orderedStages launches background stages before foreground fan-ins.
func orderedStages(plan *Plan) []Stage {
	out := make([]Stage, 0, len(plan.Stages))
	for _, s := range plan.Stages {
		if s.Background {
			out = append(out, s)
		}
	}
	for _, s := range plan.Stages {
		if !s.Background {
			out = append(out, s)
		}
	}
	return out
}

func makeFifos(plan *Plan) error {
	for _, pipe := range plan.Pipes {
		if pipe.Path == "" {
			continue
		}
		full := filepath.Join(plan.RunDir, pipe.Path)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return fmt.Errorf("create fifo dir: %w", err)
		}
		if err := unix.Mkfifo(full, 0600); err != nil && !errors.Is(err, unix.EEXIST) {
			return &ExecutionError{Msg: fmt.Sprintf("mkfifo %s: %v", pipe.Path, err)}
		}
	}
	return nil
}

// unblockFifos opens each named pipe read-write without blocking and closes
// it again, releasing any opener still waiting for the other end.
func unblockFifos(plan *Plan) {
	for _, pipe := range plan.Pipes {
		if pipe.Path == "" {
			continue
		}
		fd, err := unix.Open(filepath.Join(plan.RunDir, pipe.Path), unix.O_RDWR|unix.O_NONBLOCK, 0)
		if err == nil {
			unix.Close(fd)
		}
	}
}
