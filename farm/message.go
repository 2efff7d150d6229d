// Package farm implements the master/worker task-farm pipeline: a FIFO
// work queue on the master, net/rpc dispatch to registered workers, the
// prologue/benchmark worker loop, and process-group-aware command
// execution with timeout.
package farm

// MsgType is the logical message type, corresponding to the TYPE field of
// the wire header described in SPEC_FULL.md 6. The farm RPC calls do not
// carry it; the RPC method called implies the message type.
type MsgType int

const (
	MsgWork MsgType = iota
	MsgResult
	MsgStop
)

func (t MsgType) String() string {
	switch t {
	case MsgWork:
		return "WORK"
	case MsgResult:
		return "RESULT"
	case MsgStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Header names the four logical header fields from SPEC_FULL.md 6. The
// RPC argument and reply types in rpc.go do not embed it; they carry UID
// and Seq as fields of their own (gob-encoded), with the same meaning as
// here. Seq identifies one dispatch of a uid to a worker: the
// master stamps a fresh Seq every time a uid is fetched (including a
// heartbeat-timeout reassignment of the same uid), and uses it to tell a
// late report from a reassigned-away worker apart from an ordinary,
// recurring report of the same uid in a later SPSO iteration.
type Header struct {
	Type MsgType
	UID  int64
	Size int64
	Seq  int64
}

// WorkItem is one unit of work: a particle uid, its rendered flags command
// string, and the dispatch sequence number the master stamped it with when
// it was handed to a worker.
type WorkItem struct {
	UID     int
	Command string
	Seq     int64
}

// WorkerState is the master's view of one registered worker.
type WorkerState int

const (
	Waiting WorkerState = iota
	Busy
	Stopped
)

func (s WorkerState) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Busy:
		return "busy"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
