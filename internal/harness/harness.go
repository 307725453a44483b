package harness

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/roach88/rulecql/internal/compiler"
	"github.com/roach88/rulecql/internal/modelinfo"
	"github.com/roach88/rulecql/internal/rulegraph"
	"github.com/roach88/rulecql/internal/store"
	"github.com/roach88/rulecql/internal/testutil"
)

// loadModel loads the embedded FHIR model once per process.
var loadModel = sync.OnceValues(modelinfo.LoadFHIR)

// Harness compiles scenario rules with a deterministic run id and records
// them into an isolated store.
type Harness struct {
	store    *store.Store
	compiler *compiler.Compiler
	logger   zerolog.Logger
}

// newCompiler returns a compiler with a fixed run id and a fresh assembler,
// so library names and hashes do not depend on earlier compilations.
func newCompiler(runID string, logger zerolog.Logger) (*compiler.Compiler, error) {
	model, err := loadModel()
	if err != nil {
		return nil, fmt.Errorf("load model info: %w", err)
	}
	return compiler.New(model,
		compiler.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(runID)),
		compiler.WithLogger(logger),
	), nil
}

// RunFixture compiles a rule file with the default fixed run id.
func RunFixture(path string) (*compiler.Result, error) {
	rule, err := rulegraph.LoadRule(path)
	if err != nil {
		return nil, err
	}
	c, err := newCompiler("", zerolog.Nop())
	if err != nil {
		return nil, err
	}
	return c.Compile(rule)
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Load and compile the rule
// 3. Record the compilation
// 4. Evaluate assertions
//
// A compilation error is not a Run error: it is kept on the result for
// compile_error assertions. Run fails only when the scenario cannot execute.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	c, err := newCompiler(scenario.RunID, zerolog.Nop())
	if err != nil {
		return nil, err
	}

	h := &Harness{store: st, compiler: c, logger: zerolog.Nop()}
	return h.run(context.Background(), scenario)
}

func (h *Harness) run(ctx context.Context, scenario *Scenario) (*Result, error) {
	rule, err := rulegraph.LoadRule(scenario.Rule)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}

	result := NewResult()
	compiled, err := h.compiler.Compile(rule)
	if err != nil {
		result.Err = err
	} else {
		result.Compilation = compiled
		seq, err := h.store.Record(ctx, compiled, scenario.Rule)
		if err != nil {
			return nil, fmt.Errorf("failed to record compilation: %w", err)
		}
		result.Seq = seq
		if err := h.verifyStored(ctx, compiled); err != nil {
			result.AddError("%v", err)
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError("%s", msg)
	}

	h.logger.Debug().
		Str("scenario", scenario.Name).
		Bool("pass", result.Pass).
		Int("errors", len(result.Errors)).
		Msg("scenario completed")

	return result, nil
}

// verifyStored checks that the recorded row reproduces the compiled hash.
func (h *Harness) verifyStored(ctx context.Context, compiled *compiler.Result) error {
	stored, ok, err := h.store.Get(ctx, compiled.RunID)
	if err != nil {
		return fmt.Errorf("read back compilation: %w", err)
	}
	if !ok {
		return fmt.Errorf("compilation %s was not recorded", compiled.RunID)
	}
	if stored.Hash != compiled.Hash {
		return fmt.Errorf("stored hash %s does not match compiled hash %s", stored.Hash, compiled.Hash)
	}
	return nil
}
