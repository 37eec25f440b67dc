// Package crawler implements a bounded breadth-first host crawl.
//
// A crawl starts from a set of seed URLs. The Frontier admits at most one
// location per host, the Pool runs up to MaxWorkers fetches at once, and the
// Aggregator merges each completion back into shared state under a single
// lock. The Orchestrator paces dispatches, stops once MaxPages hosts have
// been visited or nothing is queued or in flight, and then shuts the pool
// down, returning the visited hosts with their round trip times in
// completion order.
//
// Fetching itself is delegated to a Fetcher; see the fetcher packages for
// raw socket, Colly and headless Chrome implementations.
package crawler
