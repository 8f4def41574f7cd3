// Package util provides the supporting data structures for the lbucket
// expiry sweeper: a deadline-ordered heap with key-based access and a
// lock-free MPSC queue for handing deadlines from writers to the sweeper
// goroutine without contending on the kernel's hot path.
package util
