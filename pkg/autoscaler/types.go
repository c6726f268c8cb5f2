package autoscaler

import "context"

// WorkerKey identifies a worker to the provisioning backend. It is stable for the
// lifetime of the worker and is the only handle used to launch or terminate it.
type WorkerKey string

// Worker identifies a worker as the grid sees it
type Worker struct {
	Id            string
	Name          string
	RemoteAddress string `json:",omitempty"`
	RemotePort    int    `json:",omitempty"`
}

type WorkerState struct {
	Worker
	Busy bool
	// epoch millis, nil if the worker has never been idle
	LastIdleTime *int64 `json:",omitempty"`
	Terminating  bool
}

type GridState struct {
	WorkerStates []WorkerState
	QueueEmpty   bool
	CPUDebt      float64
	// epoch millis - all elapsed time arithmetic is relative to this value
	CurrentTime int64
}

type LaunchRequest struct {
	NumInstances int
	Hint         interface{} `json:",omitempty"`
}

type WorkerInstance struct {
	InstanceId string
	WorkerKey  WorkerKey
}

type LaunchingWorker struct {
	WorkerKey     WorkerKey
	InstanceId    string
	LaunchingTime int64
}

type LaunchedWorker struct {
	Id               string
	WorkerKey        WorkerKey
	InstanceId       string
	LaunchingTime    int64
	LaunchedTime     int64
	LaunchDurationMS int64
}

type TerminatingWorker struct {
	Id         string
	WorkerKey  WorkerKey
	InstanceId string
}

// Grid is the pool of workers being scaled
type Grid interface {
	GetCurrentState(ctx context.Context) (*GridState, error)
	// DisableWorkers is called before termination so the grid stops dispatching to the workers
	DisableWorkers(ctx context.Context, workerIds []string) error
	SetWorkersTerminating(ctx context.Context, workerIds []string) error
}

// Implementation is the provisioning backend that launches and terminates workers
type Implementation interface {
	// TranslateToWorkerKeys returns one key per input worker, in the same order
	TranslateToWorkerKeys(ctx context.Context, workers []Worker) ([]WorkerKey, error)
	EstimateWorkersLaunchRequest(ctx context.Context, state *GridState) (LaunchRequest, error)
	// LaunchInstances may return fewer instances than requested
	LaunchInstances(ctx context.Context, req LaunchRequest) ([]WorkerInstance, error)
	// TerminateInstances may return a subset of the keys
	TerminateInstances(ctx context.Context, workerKeys []WorkerKey) ([]WorkerInstance, error)
	ConfigUrl(ctx context.Context) (string, error)
}

func workerIds(workers []Worker) []string {
	ids := make([]string, len(workers))
	for i, w := range workers {
		ids[i] = w.Id
	}
	return ids
}

func workersFromStates(states []WorkerState) []Worker {
	workers := make([]Worker, len(states))
	for i, ws := range states {
		workers[i] = ws.Worker
	}
	return workers
}
