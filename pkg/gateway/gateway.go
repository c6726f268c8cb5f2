package gateway

import (
	"encoding/json"
	"fmt"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"github.com/coopernurse/gridscaler/pkg/db"
	log "github.com/mgutz/logxi/v1"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"strconv"
)

const maxBodyBytes = 1 << 20

// NewGateway returns the admin HTTP API for scaler. journal may be nil, in which case
// the events endpoint responds with 404.
func NewGateway(scaler *autoscaler.Autoscaler, grid autoscaler.Grid, journal db.Db) *Gateway {
	g := &Gateway{
		scaler:  scaler,
		grid:    grid,
		journal: journal,
		mux:     http.NewServeMux(),
	}
	g.mux.HandleFunc("/v1/autoscaler", g.method(http.MethodGet, g.getStatus))
	g.mux.HandleFunc("/v1/autoscaler/options", g.method(http.MethodPut, g.putOptions))
	g.mux.HandleFunc("/v1/autoscaler/launch", g.method(http.MethodPost, g.launch))
	g.mux.HandleFunc("/v1/autoscaler/terminate", g.method(http.MethodPost, g.terminate))
	g.mux.HandleFunc("/v1/autoscaler/terminate-launching", g.method(http.MethodPost, g.terminateLaunching))
	g.mux.HandleFunc("/v1/autoscaler/config-url", g.method(http.MethodGet, g.configUrl))
	g.mux.HandleFunc("/v1/grid/state", g.method(http.MethodGet, g.gridState))
	g.mux.HandleFunc("/v1/events", g.method(http.MethodGet, g.listEvents))
	g.mux.Handle("/metrics", promhttp.Handler())
	g.mux.HandleFunc("/_health", g.method(http.MethodGet, g.health))
	return g
}

type Gateway struct {
	scaler  *autoscaler.Autoscaler
	grid    autoscaler.Grid
	journal db.Db
	mux     *http.ServeMux
}

func (g *Gateway) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if log.IsDebug() {
		log.Debug("gateway: request", "method", req.Method, "path", req.URL.Path)
	}
	g.mux.ServeHTTP(rw, req)
}

func (g *Gateway) method(method string, fx http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			rw.Header().Set("Allow", method)
			respondErr(rw, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", req.Method))
			return
		}
		fx(rw, req)
	}
}

func (g *Gateway) getStatus(rw http.ResponseWriter, req *http.Request) {
	respondJSON(rw, http.StatusOK, g.scaler.Status())
}

func (g *Gateway) putOptions(rw http.ResponseWriter, req *http.Request) {
	var patch OptionsPatch
	if !readJSON(rw, req, &patch) {
		return
	}
	if patch.RemoveMaxWorkersCap && patch.MaxWorkersCap != nil {
		respondErr(rw, http.StatusBadRequest, fmt.Errorf("MaxWorkersCap and RemoveMaxWorkersCap are exclusive"))
		return
	}
	if patch.RemoveMinWorkersCap && patch.MinWorkersCap != nil {
		respondErr(rw, http.StatusBadRequest, fmt.Errorf("MinWorkersCap and RemoveMinWorkersCap are exclusive"))
		return
	}
	changed := applyPatch(g.scaler, patch)
	log.Info("gateway: options updated", "changed", changed)
	respondJSON(rw, http.StatusOK, g.scaler.Status())
}

func applyPatch(scaler *autoscaler.Autoscaler, patch OptionsPatch) bool {
	changed := false
	if patch.Enabled != nil {
		changed = scaler.SetEnabled(*patch.Enabled) || changed
	}
	if patch.RemoveMaxWorkersCap {
		changed = scaler.SetMaxWorkersCap(nil) || changed
	} else if patch.MaxWorkersCap != nil {
		changed = scaler.SetMaxWorkersCap(patch.MaxWorkersCap) || changed
	}
	if patch.RemoveMinWorkersCap {
		changed = scaler.SetMinWorkersCap(nil) || changed
	} else if patch.MinWorkersCap != nil {
		changed = scaler.SetMinWorkersCap(patch.MinWorkersCap) || changed
	}
	if patch.LaunchingTimeoutMinutes != nil {
		changed = scaler.SetLaunchingTimeoutMinutes(*patch.LaunchingTimeoutMinutes) || changed
	}
	if patch.PollingIntervalMS != nil {
		changed = scaler.SetPollingIntervalMS(*patch.PollingIntervalMS) || changed
	}
	if patch.TerminateWorkerAfterMinutesIdle != nil {
		changed = scaler.SetTerminateWorkerAfterMinutesIdle(*patch.TerminateWorkerAfterMinutesIdle) || changed
	}
	if patch.RampUpSpeedRatio != nil {
		changed = scaler.SetRampUpSpeedRatio(*patch.RampUpSpeedRatio) || changed
	}
	return changed
}

func (g *Gateway) launch(rw http.ResponseWriter, req *http.Request) {
	var input autoscaler.LaunchRequest
	if !readJSON(rw, req, &input) {
		return
	}
	if input.NumInstances <= 0 {
		respondErr(rw, http.StatusBadRequest, fmt.Errorf("NumInstances must be > 0"))
		return
	}
	launching, err := g.scaler.LaunchWorkers(req.Context(), input)
	if err != nil {
		respondErr(rw, http.StatusInternalServerError, err)
		return
	}
	respondJSON(rw, http.StatusOK, LaunchOutput{LaunchingWorkers: emptyIfNil(launching)})
}

func (g *Gateway) terminate(rw http.ResponseWriter, req *http.Request) {
	var input TerminateInput
	if !readJSON(rw, req, &input) {
		return
	}
	workers := input.Workers
	if len(input.WorkerIds) > 0 {
		resolved, err := g.resolveWorkers(req, input.WorkerIds)
		if err != nil {
			respondErr(rw, http.StatusBadRequest, err)
			return
		}
		workers = append(workers, resolved...)
	}
	terminating, err := g.scaler.TerminateWorkers(req.Context(), workers)
	if err != nil {
		respondErr(rw, http.StatusInternalServerError, err)
		return
	}
	if terminating == nil {
		terminating = []autoscaler.TerminatingWorker{}
	}
	respondJSON(rw, http.StatusOK, TerminateOutput{TerminatingWorkers: terminating})
}

func (g *Gateway) resolveWorkers(req *http.Request, workerIds []string) ([]autoscaler.Worker, error) {
	state, err := g.grid.GetCurrentState(req.Context())
	if err != nil {
		return nil, fmt.Errorf("unable to load grid state - %v", err)
	}
	if state == nil {
		return nil, fmt.Errorf("grid returned no state")
	}
	byId := make(map[string]autoscaler.Worker, len(state.WorkerStates))
	for _, ws := range state.WorkerStates {
		byId[ws.Id] = ws.Worker
	}
	workers := make([]autoscaler.Worker, 0, len(workerIds))
	for _, id := range workerIds {
		w, ok := byId[id]
		if !ok {
			return nil, fmt.Errorf("worker not found in grid: %s", id)
		}
		workers = append(workers, w)
	}
	return workers, nil
}

func (g *Gateway) terminateLaunching(rw http.ResponseWriter, req *http.Request) {
	var input TerminateLaunchingInput
	if !readJSON(rw, req, &input) {
		return
	}
	terminated, err := g.scaler.TerminateLaunchingWorkers(req.Context(), input.WorkerKeys)
	if err != nil {
		respondErr(rw, http.StatusInternalServerError, err)
		return
	}
	respondJSON(rw, http.StatusOK, TerminateLaunchingOutput{LaunchingWorkers: emptyIfNil(terminated)})
}

func (g *Gateway) configUrl(rw http.ResponseWriter, req *http.Request) {
	url, err := g.scaler.ConfigUrl(req.Context())
	if err != nil {
		respondErr(rw, http.StatusInternalServerError, err)
		return
	}
	respondJSON(rw, http.StatusOK, ConfigUrlOutput{ConfigUrl: url})
}

func (g *Gateway) gridState(rw http.ResponseWriter, req *http.Request) {
	state, err := g.grid.GetCurrentState(req.Context())
	if err == nil && state == nil {
		err = fmt.Errorf("grid returned no state")
	}
	if err != nil {
		respondErr(rw, http.StatusBadGateway, err)
		return
	}
	respondJSON(rw, http.StatusOK, state)
}

func (g *Gateway) listEvents(rw http.ResponseWriter, req *http.Request) {
	if g.journal == nil {
		respondErr(rw, http.StatusNotFound, fmt.Errorf("event journal is not enabled"))
		return
	}
	query := req.URL.Query()
	input := db.ListEventsInput{
		Type:      query.Get("type"),
		NextToken: query.Get("nextToken"),
	}
	if s := query.Get("limit"); s != "" {
		limit, err := strconv.ParseInt(s, 10, 64)
		if err != nil || limit < 0 {
			respondErr(rw, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", s))
			return
		}
		input.Limit = limit
	}
	out, err := g.journal.ListEvents(input)
	if err != nil {
		respondErr(rw, http.StatusInternalServerError, err)
		return
	}
	if out.Events == nil {
		out.Events = []db.EventRecord{}
	}
	respondJSON(rw, http.StatusOK, out)
}

func (g *Gateway) health(rw http.ResponseWriter, req *http.Request) {
	respondJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

func emptyIfNil(workers []autoscaler.LaunchingWorker) []autoscaler.LaunchingWorker {
	if workers == nil {
		return []autoscaler.LaunchingWorker{}
	}
	return workers
}

func readJSON(rw http.ResponseWriter, req *http.Request, target interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(rw, req.Body, maxBodyBytes))
	if err := dec.Decode(target); err != nil {
		respondErr(rw, http.StatusBadRequest, fmt.Errorf("invalid JSON body - %v", err))
		return false
	}
	return true
}

func respondErr(rw http.ResponseWriter, status int, err error) {
	if status >= 500 {
		log.Error("gateway: request failed", "status", status, "err", err)
	}
	respondJSON(rw, status, ErrorOutput{Error: err.Error()})
}

func respondJSON(rw http.ResponseWriter, status int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Error("gateway: json.Marshal failed", "err", err)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_, err = rw.Write(data)
	if err != nil {
		log.Warn("gateway: error writing response", "err", err)
	}
}
