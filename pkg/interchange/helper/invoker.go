package helper

import "sync"

var (
	// Ensure thread safety while creating a new Invoker.
	create = sync.Once{}

	// Global instance to invoke go routines through the application.
	globalInvoker Invoker
)

// Invoker is responsible for handling goroutines.
// This is used so go routines do not leak and are spawned without
// any control. Using the invoker to spawn new routines will
// guarantee that any routine that is not controlled carefully will
// be known when the application finishes.
type Invoker interface {
	// Spawn a new goroutine and manage through the group.
	Spawn(func())

	// Wait blocks until every spawned routine finished.
	Wait()
}

// A singleton struct that implements the Invoker interface.
type SingletonInvoker struct {
	group *sync.WaitGroup
}

// Create a singleton instance for the Invoker struct.
// This is a singleton to ensure that throughout the application
// exists only one single point where go routines are spawned.
func InvokerInstance() Invoker {
	create.Do(func() {
		globalInvoker = &SingletonInvoker{group: &sync.WaitGroup{}}
	})
	return globalInvoker
}

// This method will increase the size of the group count and spawn
// the new go routine. After the routine is done, the group will be
// decreased.
func (c *SingletonInvoker) Spawn(f func()) {
	c.group.Add(1)
	go func() {
		defer c.group.Done()
		f()
	}()
}

// Blocks while waiting for go routines to stop.
func (c *SingletonInvoker) Wait() {
	c.group.Wait()
}
