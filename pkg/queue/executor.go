package queue

// Executor runs tasks on some execution context.
type Executor interface {
	Execute(task func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func())

func (f ExecutorFunc) Execute(task func()) { f(task) }

// GoExecutor runs every task on its own goroutine.
type GoExecutor struct{}

func (GoExecutor) Execute(task func()) { go task() }
