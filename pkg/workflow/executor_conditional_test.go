package workflow_test

import (
	"context"
	"testing"

	"github.com/cryptodashboard/reportgen/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_ConditionalRetryLoop(t *testing.T) {
	graph := workflow.New[*trace]()
	graph.AddNode("work", record("work"))
	graph.AddNode("check", record("check"))
	graph.AddNode("done", record("done"))
	graph.SetEntryPoint("work")
	graph.AddEdge("work", "check")
	graph.AddConditionalEdges("check", func(state *trace) string {
		if state.counter < 6 {
			return "retry"
		}

		return "continue"
	}, map[string]string{
		"retry":    "work",
		"continue": "done",
	})
	graph.AddEdge("done", workflow.End)

	require.NoError(t, graph.Validate())

	final, err := graph.Run(context.Background(), &trace{})
	require.NoError(t, err)
	assert.Equal(t, []string{"work", "check", "work", "check", "work", "check", "done"}, final.visited)
}

func TestGraph_ConditionalEndsEarly(t *testing.T) {
	graph := workflow.New[*trace]()
	graph.AddNode("a", record("a"))
	graph.AddNode("b", record("b"))
	graph.SetEntryPoint("a")
	graph.AddConditionalEdges("a", func(*trace) string { return "end" }, map[string]string{
		"continue": "b",
		"end":      workflow.End,
	})
	graph.AddEdge("b", workflow.End)

	final, err := graph.Run(context.Background(), &trace{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, final.visited)
}

func TestGraph_UnmappedRouteLabel(t *testing.T) {
	graph := workflow.New[*trace]()
	graph.AddNode("a", record("a"))
	graph.SetEntryPoint("a")
	graph.AddConditionalEdges("a", func(*trace) string { return "sideways" }, map[string]string{
		"end": workflow.End,
	})

	_, err := graph.Run(context.Background(), &trace{})
	require.ErrorIs(t, err, workflow.ErrNoRoute)
	assert.Contains(t, err.Error(), "sideways")
}

func TestGraph_StepLimitStopsEndlessLoop(t *testing.T) {
	graph := workflow.New[*trace](workflow.WithMaxSteps(5))
	graph.AddNode("a", record("a"))
	graph.SetEntryPoint("a")
	graph.AddEdge("a", "a")

	final, err := graph.Run(context.Background(), &trace{})
	require.ErrorIs(t, err, workflow.ErrStepLimit)
	assert.Equal(t, 5, final.counter)
}
