package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rulecql/internal/elm"
)

// goldenDir holds golden files relative to the calling package.
const goldenDir = "testdata/golden"

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir(goldenDir),
		goldie.WithNameSuffix(".golden"),
	)
}

// AssertLibraryGolden compares the canonical JSON of lib against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertLibraryGolden(t *testing.T, name string, lib *elm.Library) {
	t.Helper()

	data, err := elm.MarshalCanonical(lib)
	if err != nil {
		t.Fatalf("marshal library %s: %v", name, err)
	}
	newGoldie(t).Assert(t, name, data)
}

// AssertExpressionGolden compares the canonical JSON of one expression
// against testdata/golden/{name}.golden.
func AssertExpressionGolden(t *testing.T, name string, e elm.Expression) {
	t.Helper()

	data, err := elm.MarshalCanonical(e)
	if err != nil {
		t.Fatalf("marshal expression %s: %v", name, err)
	}
	newGoldie(t).Assert(t, name, data)
}

// RunWithGolden executes a scenario and compares its library against the
// golden file named after the scenario.
//
// Returns the scenario result; assertion failures are reported on the
// result, golden mismatches through t.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if result.Compilation != nil {
		AssertLibraryGolden(t, scenario.Name, result.Compilation.Library)
	}
	return result, nil
}
