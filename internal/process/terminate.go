package process

import "os"

// Terminator ends a process using the platform's strategy. Graceful
// termination is cooperative; forceful termination kills the whole process
// tree.
type Terminator interface {
	Terminate(p *os.Process, graceful bool) error
}
