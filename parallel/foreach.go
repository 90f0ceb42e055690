// Package parallel contains a bounded parallel ForEach and the step bookkeeping shared by the trainer.
package parallel

import "sync"

// ForEach runs body(i) for every i in [0, length) with at most limit goroutines in flight.
// It returns once every body has returned. Bodies must touch disjoint data.
func ForEach(length, limit int, body func(i int)) {
	if limit <= 0 {
		limit = 1
	}
	if length <= 0 {
		return
	}
	if limit == 1 || length == 1 {
		for i := range length {
			body(i)
		}
		return
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	wg.Add(length)

	for i := range length {
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			body(i)
		}()
	}

	wg.Wait()
}
