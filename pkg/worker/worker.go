package worker

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/wavecast/broadcast-gateway/pkg/logger"
)

type WorkerHandler = func(workerIndex int, job interface{})

// WorkerManager is a goroutine pool fed by a buffered channel. The
// gateway uses it for the inbound-event ingestion path, where bursts of
// protocol events must not block the channel session's event loop.
type WorkerManager struct {
	bufferSize     int
	jobChannel     chan interface{}
	numberOfWorker int
	sigTerm        chan os.Signal
	do             WorkerHandler
	waiter         *sync.WaitGroup
}

// NewWorkerManager builds a pool of numberOfWorkers goroutines draining
// jobChannel. If jobChannel is nil an internal buffered channel is
// created. The job channel is never closed by the manager because it
// may be externally owned; Exit() stops the workers instead.
func NewWorkerManager(bufferSize, numberOfWorkers int, jobChannel chan interface{}) *WorkerManager {
	if jobChannel == nil {
		jobChannel = make(chan interface{}, bufferSize)
	}
	// Buffer size = numberOfWorkers so no stop signal is lost when
	// signals arrive before all workers are running.
	var sigChan = make(chan os.Signal, numberOfWorkers)
	signal.Notify(sigChan, syscall.SIGTERM)

	return &WorkerManager{
		bufferSize:     bufferSize,
		numberOfWorker: numberOfWorkers,
		jobChannel:     jobChannel,
		sigTerm:        sigChan,
		waiter:         &sync.WaitGroup{},
	}
}

func (w *WorkerManager) GetUnreadCount() int64 {
	if w.jobChannel == nil {
		return 0
	}
	return int64(len(w.jobChannel))
}

func (w *WorkerManager) SetWorker(worker WorkerHandler) {
	w.do = worker
}

// Enqueue publishes one job onto the channel; blocks when full.
func (w *WorkerManager) Enqueue(val interface{}) {
	w.jobChannel <- val
}

// Start runs the workers and blocks until they are terminated.
func (w *WorkerManager) Start() error {
	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			for {
				select {
				case job := <-w.jobChannel:
					w.do(index, job)
				case <-w.sigTerm:
					w.waiter.Done()
					return
				}
			}
		}(i)
	}
	w.waiter.Wait()

	return errors.New("workers terminated")
}

// Exit stops all workers; queued jobs left on the channel are dropped.
func (w *WorkerManager) Exit() {
	logger.Info("Exit() is called and worker manager is going to be shutdown")
	for i := 0; i < w.numberOfWorker; i++ {
		w.sigTerm <- syscall.SIGSTOP
	}
}
