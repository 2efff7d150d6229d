package farm

import (
	"fmt"
	"net/rpc"
)

// RegisterArgs is currently empty; it exists so the RPC signature can grow
// without breaking wire compatibility.
type RegisterArgs struct{}

// RegisterReply carries the worker id assigned by the master.
type RegisterReply struct {
	Worker WorkerID
}

// FetchArgs requests the next work item for a previously registered worker.
type FetchArgs struct {
	Worker WorkerID
}

// FetchReply is the master's answer to a fetch: either a work item (OK
// true, Stop false), a stop instruction (Stop true), or neither (OK false)
// meaning "nothing queued right now, poll again".
type FetchReply struct {
	Item WorkItem
	OK   bool
	Stop bool
}

// ReportArgs carries a completed evaluation back to the master. Seq echoes
// the dispatch generation the work item was fetched with, so the master can
// tell a late report from a reassigned-away worker apart from an ordinary
// report of a uid recurring in a later SPSO iteration.
type ReportArgs struct {
	Worker  WorkerID
	UID     int
	Fitness float64
	Seq     int64
}

// HeartbeatArgs keeps the master's idea of a busy worker's liveness fresh.
type HeartbeatArgs struct {
	Worker WorkerID
	UID    int
}

// farmRPC is the net/rpc-exported face of a Master. Every method just
// forwards onto the dispatcher's channels and waits for its answer,
// mirroring the teacher's cloudlus.RPC forwarding onto Server's channels.
type farmRPC struct {
	m *Master
}

func (r *farmRPC) Register(args RegisterArgs, reply *RegisterReply) error {
	req := registerReq{reply: make(chan WorkerID, 1)}
	r.m.register <- req
	reply.Worker = <-req.reply
	return nil
}

func (r *farmRPC) Fetch(args FetchArgs, reply *FetchReply) error {
	req := fetchReq{worker: args.Worker, reply: make(chan fetchReply, 1)}
	r.m.fetch <- req
	got := <-req.reply
	reply.Item = got.item
	reply.OK = got.ok
	reply.Stop = got.stop
	return nil
}

func (r *farmRPC) Report(args ReportArgs, reply *struct{}) error {
	r.m.report <- reportMsg{worker: args.Worker, uid: args.UID, fitness: args.Fitness, seq: args.Seq}
	return nil
}

func (r *farmRPC) Heartbeat(args HeartbeatArgs, reply *struct{}) error {
	r.m.beat <- beatMsg{worker: args.Worker, uid: args.UID}
	return nil
}

// Client is the worker-side handle to a remote Master.
type Client struct {
	rpc    *rpc.Client
	worker WorkerID
}

// Dial connects to a master at addr and registers a new worker.
func Dial(addr string) (*Client, error) {
	conn, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("farm: dial %s: %w", addr, err)
	}
	var reply RegisterReply
	if err := conn.Call("Farm.Register", RegisterArgs{}, &reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("farm: register: %w", err)
	}
	return &Client{rpc: conn, worker: reply.Worker}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// Fetch polls the master for the next work item.
func (c *Client) Fetch() (item WorkItem, ok bool, stop bool, err error) {
	var reply FetchReply
	if err := c.rpc.Call("Farm.Fetch", FetchArgs{Worker: c.worker}, &reply); err != nil {
		return WorkItem{}, false, false, fmt.Errorf("farm: fetch: %w", err)
	}
	return reply.Item, reply.OK, reply.Stop, nil
}

// Report sends a completed fitness evaluation back to the master. seq must
// be the Seq the work item was fetched with, so the master can recognize a
// report that arrives after its work was reassigned to another worker.
func (c *Client) Report(uid int, fitness float64, seq int64) error {
	var reply struct{}
	if err := c.rpc.Call("Farm.Report", ReportArgs{Worker: c.worker, UID: uid, Fitness: fitness, Seq: seq}, &reply); err != nil {
		return fmt.Errorf("farm: report: %w", err)
	}
	return nil
}

// Heartbeat tells the master this worker is still alive and working on uid.
func (c *Client) Heartbeat(uid int) error {
	var reply struct{}
	if err := c.rpc.Call("Farm.Heartbeat", HeartbeatArgs{Worker: c.worker, UID: uid}, &reply); err != nil {
		return fmt.Errorf("farm: heartbeat: %w", err)
	}
	return nil
}
