package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rapture/internal/ir"
)

func TestRunWithGolden(t *testing.T) {
	// Regenerate with: go test ./internal/harness -run TestRunWithGolden -update
	for _, name := range []string{"limit_ref", "external_limit", "keyed_chain"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadExample(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestMarshalTrace_Shape(t *testing.T) {
	loc := ir.Location{Path: "a", Line: 2, Column: 3}
	r := NewResult()
	r.AddStepTrace(OpSet, "limit", 1)
	r.AddRaiseTrace([]ir.Issue{ir.NewIssue(ir.IssueTypeRule, "x", &loc, "m", ir.SeverityInfo)}, 2)
	r.AddRaiseTrace(nil, 3)
	r.Issues = nil

	got, err := MarshalTrace("shape", r)
	require.NoError(t, err)

	want := `{"issues":[],"scenario_name":"shape","trace":[` +
		`{"id":"limit","op":"set","seq":1,"type":"step"},` +
		`{"issues":[{"from":"x","location":{"column":3,"line":2,"path":"a"},"message":"m","severity":"info","type":"rule"}],"seq":2,"type":"raise"},` +
		`{"issues":[],"seq":3,"type":"raise"}]}`
	assert.Equal(t, want, string(got))
}
