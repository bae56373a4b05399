package coz

// Label identifies a step of a body. Labels are assigned in declaration
// order while the body is built; the first step is label 0. A frame's
// program counter is a pair of labels: the resume point and the active
// failure-handler entry.
type Label int

// Control labels returned by Block and Catch functions to direct the flow
// after the step.
const (
	// Next transfers to the step that follows in declaration order.
	Next Label = -1

	// Return completes the body. The step is expected to have stored any
	// result into the promise already; no implicit completion signal is
	// delivered on this path.
	Return Label = -2
)

// Program-counter sentinels. A frame is done iff next == labelCompleted;
// a freshly constructed frame is at labelUnstarted, which is not done.
const (
	labelUnstarted Label = -3
	labelCompleted Label = -4
	labelNone      Label = -5
)
