package farm

import (
	"fmt"
	"net"
	"net/rpc"
	"time"

	"github.com/google/uuid"
	"github.com/rwcarlsen/gocache"

	"github.com/j-r-jones/optsearch/logging"
)

const (
	mb            = 1 << 20
	beatInterval  = 60 * time.Second
	cacheCapacity = 50 * mb
)

// WorkerID identifies one registered worker.
type WorkerID string

// ResultFunc is invoked by the master's dispatcher whenever a worker
// reports a fitness for a particle. wasCached is always false from the
// farm's own perspective; it is carried through from the Optimiser glue's
// short-circuit path, which calls the same callback directly without going
// through the farm at all.
type ResultFunc func(uid int, fitness float64, wasCached bool)

// CompletedItem is one finished WorkItem as seen by the dispatcher, passed
// to a RecordFunc for diagnostics. It carries strictly more than ResultFunc
// does (the rendered command, the worker, and wall-clock elapsed) since it
// exists for display rather than for feeding the search loop.
type CompletedItem struct {
	UID     int
	Command string
	Fitness float64
	Worker  WorkerID
	Elapsed time.Duration
}

// RecordFunc is invoked by the dispatcher every time a worker reports,
// independent of and in addition to ResultFunc. A Master with no recorder
// set (the default) simply skips the call; it exists only to feed an
// optional dashboard history log.
type RecordFunc func(CompletedItem)

// Master owns the FIFO work queue and the per-worker dispatch state. All
// mutation happens inside the single dispatcher goroutine; every other
// method communicates with it over channels, mirroring the teacher's
// cloudlus.Server.
type Master struct {
	onResult ResultFunc
	recorder RecordFunc

	// history caches the most recently reported fitness per particle uid,
	// grounded on cloudlus/server.go's alljobs *cache.LRUCache. It is a pure
	// read-cache for Result's out-of-band queries; it plays no part in
	// duplicate detection, since a particle uid is reused on every SPSO
	// iteration for the life of a run and a report for it is legitimate
	// every time, not just the first.
	history *cache.LRUCache

	submit   chan WorkItem
	register chan registerReq
	fetch    chan fetchReq
	report   chan reportMsg
	beat     chan beatMsg
	status   chan statusReq
	result   chan resultReq
	stopReq  chan struct{}
	stopDone chan struct{}

	rpcServer *rpc.Server
	listener  net.Listener
}

type registerReq struct {
	reply chan WorkerID
}

type fetchReq struct {
	worker WorkerID
	reply  chan fetchReply
}

type fetchReply struct {
	item WorkItem
	stop bool
	ok   bool
}

type reportMsg struct {
	worker  WorkerID
	uid     int
	fitness float64
	seq     int64
}

type beatMsg struct {
	worker WorkerID
	uid    int
}

type statusReq struct {
	reply chan Status
}

type resultReq struct {
	uid   int
	reply chan resultReply
}

type resultReply struct {
	fitness float64
	ok      bool
}

// WorkerStatus is one worker's state as seen by the dispatcher, for the
// dashboard's worker table.
type WorkerStatus struct {
	ID    WorkerID
	State WorkerState
}

// Status is a point-in-time snapshot of the master's dispatch state,
// purely for diagnostics; nothing in the search loop reads it back.
type Status struct {
	QueueLen int
	Workers  []WorkerStatus
}

// Status returns a snapshot of the current queue depth and worker states.
// Safe to call from any goroutine, including the dashboard's HTTP handler.
func (m *Master) Status() Status {
	req := statusReq{reply: make(chan Status, 1)}
	m.status <- req
	return <-req.reply
}

// Result returns the most recently reported fitness for uid, if the master
// has seen a report for it yet.
func (m *Master) Result(uid int) (fitness float64, ok bool) {
	req := resultReq{uid: uid, reply: make(chan resultReply, 1)}
	m.result <- req
	rep := <-req.reply
	return rep.fitness, rep.ok
}

// SetRecorder installs fn to be called with every completed work item, in
// addition to the ResultFunc given to NewMaster. Intended for an optional
// dashboard history log; a Master with no recorder set simply skips it.
// Must be called before Serve/ListenAndServe starts the dispatcher.
func (m *Master) SetRecorder(fn RecordFunc) {
	m.recorder = fn
}

// NewMaster creates a Master that will invoke onResult for every fitness
// reported by a worker.
func NewMaster(onResult ResultFunc) *Master {
	return &Master{
		onResult: onResult,
		history:  cache.NewLRUCache(cacheCapacity),
		submit:   make(chan WorkItem),
		register: make(chan registerReq),
		fetch:    make(chan fetchReq),
		report:   make(chan reportMsg),
		beat:     make(chan beatMsg),
		status:   make(chan statusReq),
		result:   make(chan resultReq),
		stopReq:  make(chan struct{}),
		stopDone: make(chan struct{}),
	}
}

// Submit enqueues a new WorkItem. Safe to call from any goroutine,
// including from the ResultFunc, which runs on the dispatcher goroutine:
// the hand-off to the dispatcher happens on a goroutine of its own, so
// Submit never blocks. Items submitted in quick succession may therefore
// reach the queue in any order.
func (m *Master) Submit(item WorkItem) {
	go func() { m.submit <- item }()
}

// ListenAndServe starts the RPC listener on addr and runs the dispatcher
// loop until Stop completes. It blocks until the listener is closed.
func (m *Master) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("farm: listen %s: %w", addr, err)
	}
	return m.Serve(ln)
}

// Serve runs the dispatcher loop and accepts RPC connections on an
// already-open listener until Stop completes, then closes ln. Split out
// from ListenAndServe so callers (and tests) that need the bound address
// up front, e.g. when listening on ":0", can do so before serving.
func (m *Master) Serve(ln net.Listener) error {
	m.listener = ln

	m.rpcServer = rpc.NewServer()
	if err := m.rpcServer.RegisterName("Farm", &farmRPC{m}); err != nil {
		return fmt.Errorf("farm: register rpc: %w", err)
	}

	go m.dispatcher()
	go m.rpcServer.Accept(ln)

	<-m.stopDone
	return ln.Close()
}

// Stop gracefully stops the master and returns at once. Waiting workers
// are marked Stopped straight away; every worker receives STOP the next
// time it fetches. Serve returns once every registered worker is Stopped;
// a worker that never checks back in keeps Serve waiting.
func (m *Master) Stop() {
	close(m.stopReq)
}

type workerRecord struct {
	state     WorkerState
	working   *WorkItem
	lastBeat  time.Time
	startedAt time.Time
}

func (m *Master) dispatcher() {
	queue := make([]WorkItem, 0, 64)
	workers := map[WorkerID]*workerRecord{}
	stopping := false
	ticker := time.NewTicker(beatInterval)
	defer ticker.Stop()

	// nextSeq/uidGen implement the dispatch-generation scheme: every fetch
	// (including a re-fetch of a uid the heartbeat ticker reassigned away
	// from a stale worker) stamps the item with a fresh, strictly
	// increasing Seq and records it as that uid's current generation. A
	// report only counts if its Seq still matches the uid's current
	// generation; a report bearing an older Seq came from a worker whose
	// work was already reassigned, and is dropped as a true duplicate
	// rather than an ordinary repeat report from a later SPSO round.
	var nextSeq int64
	uidGen := map[int]int64{}

	allStopped := func() bool {
		if len(workers) == 0 {
			return false
		}
		for _, w := range workers {
			if w.state != Stopped {
				return false
			}
		}
		return true
	}

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			for id, w := range workers {
				if w.state == Busy && now.Sub(w.lastBeat) > 2*beatInterval {
					logging.Warnf("farm: worker %s missed heartbeat, reassigning its work item", id)
					queue = append([]WorkItem{*w.working}, queue...)
					w.working = nil
					w.state = Stopped
				}
			}

		case item := <-m.submit:
			queue = append(queue, item)

		case req := <-m.register:
			id := WorkerID(uuid.NewString())
			workers[id] = &workerRecord{state: Waiting, lastBeat: time.Now()}
			req.reply <- id

		case req := <-m.fetch:
			w, ok := workers[req.worker]
			if !ok {
				req.reply <- fetchReply{ok: false}
				continue
			}
			if stopping {
				w.state = Stopped
				req.reply <- fetchReply{stop: true, ok: true}
				continue
			}
			if len(queue) == 0 {
				w.state = Waiting
				req.reply <- fetchReply{ok: false}
				continue
			}
			item := queue[0]
			queue = queue[1:]
			nextSeq++
			item.Seq = nextSeq
			uidGen[item.UID] = item.Seq
			w.state = Busy
			w.working = &item
			w.lastBeat = time.Now()
			w.startedAt = time.Now()
			req.reply <- fetchReply{item: item, ok: true}

		case msg := <-m.report:
			w, ok := workers[msg.worker]
			var elapsed time.Duration
			var command string
			if ok {
				if w.working != nil {
					command = w.working.Command
					elapsed = time.Since(w.startedAt)
				}
				w.working = nil
				w.state = Waiting
			}

			if gen, known := uidGen[msg.uid]; known && msg.seq != gen {
				logging.Debugf("farm: dropping stale report for particle %d from worker %s (seq %d, current %d)", msg.uid, msg.worker, msg.seq, gen)
			} else {
				m.history.Set(msg.uid, msg.fitness)
				if m.recorder != nil {
					m.recorder(CompletedItem{
						UID:     msg.uid,
						Command: command,
						Fitness: msg.fitness,
						Worker:  msg.worker,
						Elapsed: elapsed,
					})
				}
				m.onResult(msg.uid, msg.fitness, false)
			}

		case msg := <-m.beat:
			if w, ok := workers[msg.worker]; ok {
				w.lastBeat = time.Now()
			}

		case req := <-m.status:
			snap := Status{QueueLen: len(queue), Workers: make([]WorkerStatus, 0, len(workers))}
			for id, w := range workers {
				snap.Workers = append(snap.Workers, WorkerStatus{ID: id, State: w.state})
			}
			req.reply <- snap

		case req := <-m.result:
			v, ok := m.history.Get(req.uid)
			rep := resultReply{ok: ok}
			if ok {
				rep.fitness = v.(float64)
			}
			req.reply <- rep

		case <-m.stopReq:
			stopping = true
			for id, w := range workers {
				if w.state == Waiting {
					w.state = Stopped
				}
				_ = id
			}
		}

		if stopping && allStopped() {
			close(m.stopDone)
			return
		}
	}
}
