package trainer

// skip draws whether task sits out the current sweep: it is skipped when the draw
// exceeds 1 - SkipProbability, i.e. 1/perplexity of its report statistics.
func (t *Trainer) skip(task *Task) bool {
	u := t.random.Float64()
	return u > 1-task.Report.SkipProbability()
}

// reached reports whether the step ceiling stops the run; 0 runs forever.
func reached(trainSteps, step int) bool {
	return trainSteps > 0 && step >= trainSteps
}
