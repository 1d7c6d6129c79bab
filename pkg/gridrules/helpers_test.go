package gridrules

import (
	"errors"
	"sync"

	"github.com/chosenoffset/gridrules/pkg/gridrules/actions"
	"github.com/chosenoffset/gridrules/pkg/gridrules/variables"
)

// recorder is a Dispatcher that keeps every message it accepts.
type recorder struct {
	mu   sync.Mutex
	msgs []actions.Message
	fail error
}

func (r *recorder) Send(m actions.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) messages() []actions.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]actions.Message(nil), r.msgs...)
}

// commands lists "owner:command" for every recorded message.
func (r *recorder) commands() []string {
	var out []string
	for _, m := range r.messages() {
		out = append(out, m.Env().Owner+":"+m.Env().Command)
	}
	return out
}

// panickingOwner is a module whose state read panics.
type panickingOwner struct {
	*Module
}

func (p panickingOwner) Attributes() (map[string]variables.Value, error) {
	panic("sensor bus fault")
}

var errUnreachable = errors.New("no response on bus")
