// Package trainer drives multi-task adversarial training of a sequence-to-sequence model.
// It visits every task once per sweep, letting a task sit out with probability
// 1-1/perplexity so that poorly learned tasks train less often. It accumulates
// gradients over micro-batch groups, runs truncated backpropagation through time with
// task critics coupled to the shared representations, and coordinates the moving
// average, validation and checkpoints around the global step.
package trainer
