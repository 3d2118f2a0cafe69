package chatui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tOgg1/chatsync/internal/serial"
)

// runMsg carries a function posted to the presentation executor. Update
// runs it, so slice events are applied on the UI goroutine.
type runMsg struct {
	fn func()
}

// sender is the part of *tea.Program the executor needs.
type sender interface {
	Send(msg tea.Msg)
}

// programExecutor is a serial.Executor whose functions run inside the
// bubbletea event loop. Posting never blocks: a queue forwards functions to
// the program in order.
type programExecutor struct {
	queue  *serial.Queue
	target sender
}

func newProgramExecutor() *programExecutor {
	return &programExecutor{queue: serial.NewQueue("chatui")}
}

// bind sets the program. It must be called before anything is posted.
func (e *programExecutor) bind(target sender) {
	e.target = target
}

func (e *programExecutor) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	return e.queue.Post(func() {
		e.target.Send(runMsg{fn: fn})
	})
}

func (e *programExecutor) Close() {
	e.queue.Close()
}

var _ serial.Executor = (*programExecutor)(nil)
