package execution

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"oasisrun/internal/model"
)

// Fixed output file names written by the fan-in stages.
const (
	GULOutputFile = "gulcalc.csv"
	ILOutputFile  = "ilcalc.csv"
)

// GeneratePlan builds the data-flow graph for a run split across the given
// number of parallel chains. Each chain samples its share of events
// (eve i P), looks up effective damage (getmodel) and samples ground-up
// losses (gulcalc); per-chain consumers reduce the loss streams to event
// loss tables, and a foreground kat stage per enabled output fans them into
// a single CSV. Fifo names carry a fresh run token so concurrent runs in
// sibling workspaces never collide.
func GeneratePlan(processes int, settings *model.AnalysisSettings, runDir string) (*Plan, error) {
	if processes < 1 {
		return nil, &ExecutionError{Msg: fmt.Sprintf("process count must be at least 1, got %d", processes)}
	}
	if settings == nil {
		return nil, &ExecutionError{Msg: "analysis settings are required"}
	}
	if !settings.GULOutput && !settings.ILOutput {
		return nil, &ExecutionError{Msg: "no loss outputs enabled"}
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	plan := &Plan{RunDir: runDir, RunToken: token}

	fifo := func(kind string, i int) string {
		return filepath.Join("fifo", fmt.Sprintf("%s_%s_P%d", token, kind, i))
	}

	var gulEltIDs, gulEltPaths []string
	var ilEltIDs, ilEltPaths []string

	for i := 1; i <= processes; i++ {
		eveOut := fmt.Sprintf("eve_out_P%d", i)
		modelOut := fmt.Sprintf("getmodel_out_P%d", i)
		plan.Pipes = append(plan.Pipes, Pipe{ID: eveOut}, Pipe{ID: modelOut})

		gulArgs := []string{"gulcalc"}
		if settings.NumberOfSamples > 0 {
			gulArgs = append(gulArgs, fmt.Sprintf("-S%d", settings.NumberOfSamples))
		}
		if settings.GULThreshold > 0 {
			gulArgs = append(gulArgs, fmt.Sprintf("-L%g", settings.GULThreshold))
		}
		var gulOutputs []string

		if settings.GULOutput {
			id := fmt.Sprintf("gul_P%d", i)
			path := fifo("gul", i)
			plan.Pipes = append(plan.Pipes, Pipe{ID: id, Path: path})
			gulArgs = append(gulArgs, "-c", path)
			gulOutputs = append(gulOutputs, id)
		}
		if settings.ILOutput {
			id := fmt.Sprintf("gulitem_P%d", i)
			path := fifo("gulitem", i)
			plan.Pipes = append(plan.Pipes, Pipe{ID: id, Path: path})
			gulArgs = append(gulArgs, "-i", path)
			gulOutputs = append(gulOutputs, id)
		}

		plan.Stages = append(plan.Stages,
			Stage{
				Name:       fmt.Sprintf("eve_P%d", i),
				Args:       []string{"eve", strconv.Itoa(i), strconv.Itoa(processes)},
				Outputs:    []string{eveOut},
				Background: true,
			},
			Stage{
				Name:       fmt.Sprintf("getmodel_P%d", i),
				Args:       []string{"getmodel"},
				Inputs:     []string{eveOut},
				Outputs:    []string{modelOut},
				Background: true,
			},
			Stage{
				Name:       fmt.Sprintf("gulcalc_P%d", i),
				Args:       gulArgs,
				Inputs:     []string{modelOut},
				Outputs:    gulOutputs,
				Background: true,
			},
		)

		if settings.GULOutput {
			sumOut := fmt.Sprintf("gul_summary_out_P%d", i)
			eltID := fmt.Sprintf("gul_elt_P%d", i)
			eltPath := fifo("gul_elt", i)
			plan.Pipes = append(plan.Pipes, Pipe{ID: sumOut}, Pipe{ID: eltID, Path: eltPath})
			plan.Stages = append(plan.Stages,
				Stage{
					Name:       fmt.Sprintf("gul_summarycalc_P%d", i),
					Args:       []string{"summarycalc", "-g"},
					Inputs:     []string{fmt.Sprintf("gul_P%d", i)},
					Outputs:    []string{sumOut},
					Background: true,
				},
				Stage{
					Name:       fmt.Sprintf("gul_eltcalc_P%d", i),
					Args:       []string{"eltcalc"},
					Inputs:     []string{sumOut},
					Outputs:    []string{eltID},
					Background: true,
				},
			)
			gulEltIDs = append(gulEltIDs, eltID)
			gulEltPaths = append(gulEltPaths, eltPath)
		}

		if settings.ILOutput {
			fmOut := fmt.Sprintf("fm_out_P%d", i)
			sumOut := fmt.Sprintf("il_summary_out_P%d", i)
			eltID := fmt.Sprintf("il_elt_P%d", i)
			eltPath := fifo("il_elt", i)
			plan.Pipes = append(plan.Pipes, Pipe{ID: fmOut}, Pipe{ID: sumOut}, Pipe{ID: eltID, Path: eltPath})
			plan.Stages = append(plan.Stages,
				Stage{
					Name:       fmt.Sprintf("fmcalc_P%d", i),
					Args:       []string{"fmcalc"},
					Inputs:     []string{fmt.Sprintf("gulitem_P%d", i)},
					Outputs:    []string{fmOut},
					Background: true,
				},
				Stage{
					Name:       fmt.Sprintf("il_summarycalc_P%d", i),
					Args:       []string{"summarycalc", "-f"},
					Inputs:     []string{fmOut},
					Outputs:    []string{sumOut},
					Background: true,
				},
				Stage{
					Name:       fmt.Sprintf("il_eltcalc_P%d", i),
					Args:       []string{"eltcalc"},
					Inputs:     []string{sumOut},
					Outputs:    []string{eltID},
					Background: true,
				},
			)
			ilEltIDs = append(ilEltIDs, eltID)
			ilEltPaths = append(ilEltPaths, eltPath)
		}
	}

	// Fan-in stages read the elt fifos directly so every stage of the run
	// is concurrent.
	if settings.GULOutput {
		plan.Stages = append(plan.Stages, Stage{
			Name:       "gul_kat",
			Args:       append([]string{"kat"}, gulEltPaths...),
			Inputs:     gulEltIDs,
			OutputFile: filepath.Join("output", GULOutputFile),
		})
	}
	if settings.ILOutput {
		plan.Stages = append(plan.Stages, Stage{
			Name:       "il_kat",
			Args:       append([]string{"kat"}, ilEltPaths...),
			Inputs:     ilEltIDs,
			OutputFile: filepath.Join("output", ILOutputFile),
		})
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}
