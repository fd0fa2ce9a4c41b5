package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rapture/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s", event.Seq, eventKey(event))
		for _, issue := range event.Issues {
			fmt.Fprintf(&buf, "\n      %s", issue)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// eventKey names an event the way trace_order spells it.
func eventKey(e TraceEvent) string {
	if e.Type == EventStep {
		return EventStep + ":" + e.Op
	}
	return e.Type
}

func messagesOf(issues []ir.Issue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.Message
	}
	return out
}

// assertIssues checks the final issue messages, in order.
func assertIssues(result *Result, assertion Assertion) error {
	got := messagesOf(result.Issues)
	want := assertion.Messages
	if want == nil {
		want = []string{}
	}

	if slices.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertIssues,
		Expected: fmt.Sprintf("%q", want),
		Actual:   fmt.Sprintf("%q", got),
		Trace:    result.Trace,
	}
}

// assertTraceContains checks that some event of the given type carries an
// issue with the given message.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type != assertion.Event {
			continue
		}
		if slices.Contains(messagesOf(event.Issues), assertion.Message) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s event with issue %q", assertion.Event, assertion.Message),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceCount checks that the event appears exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if eventKey(event) == assertion.Event || event.Type == assertion.Event {
			count++
		}
	}

	if count == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%s appears %d times", assertion.Event, assertion.Count),
		Actual:   fmt.Sprintf("%s appears %d times", assertion.Event, count),
		Trace:    trace,
	}
}

// assertTraceOrder checks that events appear as a subsequence of the
// trace. Intervening events are allowed.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next == len(assertion.Events) {
			break
		}
		if eventKey(event) == assertion.Events[next] {
			next++
		}
	}

	if next == len(assertion.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("events in order: %v", assertion.Events),
		Actual:   fmt.Sprintf("missing %s after position %d", assertion.Events[next], next),
		Trace:    trace,
	}
}

// EvaluateAssertions runs every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertIssues:
			err = assertIssues(result, assertion)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	return errs
}
