// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/luxfi/dap-aggregator/api"
	"github.com/luxfi/dap-aggregator/api/health"
	"github.com/luxfi/dap-aggregator/dapabort"
	"github.com/luxfi/dap-aggregator/messages"
	"github.com/luxfi/dap-aggregator/workengine"
)

var errNoActiveConfig = errors.New("transport: no active hpke receiver config registered")

// Routes builds the net/http.ServeMux serving spec §6's seven endpoints,
// following the teacher's plain-net/http dispatch style (no router
// framework; see DESIGN.md). Each handler is a thin decode/dispatch/encode
// shim around deps' collaborators.
func Routes(deps *Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tasks/{task_id}/reports", deps.handleUploadReport)
	mux.HandleFunc("PUT /tasks/{task_id}/aggregation_jobs/{agg_job_id}", deps.handleAggregationJobInit)
	mux.HandleFunc("POST /tasks/{task_id}/aggregation_jobs/{agg_job_id}", deps.handleAggregationJobContinue)
	mux.HandleFunc("PUT /tasks/{task_id}/collection_jobs/{coll_job_id}", deps.handleCollectPut)
	mux.HandleFunc("POST /tasks/{task_id}/collection_jobs/{coll_job_id}", deps.handleCollectPoll)
	mux.HandleFunc("POST /tasks/{task_id}/aggregate_shares", deps.handleAggregateShares)
	mux.HandleFunc("GET /hpke_config", deps.handleHpkeConfig)
	mux.HandleFunc("GET /health", deps.handleHealth)
	return mux
}

func (d *Deps) taskAndAuth(w http.ResponseWriter, r *http.Request) (messages.TaskID, bool) {
	taskID, err := parseTaskID(r.PathValue("task_id"))
	if err != nil {
		writeError(w, d.Logger, err)
		return messages.TaskID{}, false
	}
	if err := d.Auth.Authorize(taskID, r.Header.Get("Authorization")); err != nil {
		writeError(w, d.Logger, err)
		return messages.TaskID{}, false
	}
	return taskID, true
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// handleUploadReport is POST /tasks/{task_id}/reports (spec §6).
func (d *Deps) handleUploadReport(w http.ResponseWriter, r *http.Request) {
	taskID, ok := d.taskAndAuth(w, r)
	if !ok {
		return
	}
	cfg, ok := d.Tasks.Task(taskID)
	if !ok {
		writeError(w, d.Logger, dapabort.New(dapabort.UnrecognizedTask, "task not configured").WithTask(taskID[:]))
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "could not read request body"))
		return
	}
	report, err := messages.DecodeReport(cfg.Version, body)
	if err != nil {
		d.rejectReport("malformed")
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "malformed report"))
		return
	}
	if report.TaskID != taskID {
		d.rejectReport("task_id_mismatch")
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "report task_id does not match path").WithTask(taskID[:]))
		return
	}
	if !cfg.ReportTimeValid(report.Metadata.Time, d.Now()) {
		d.rejectReport("stale_or_future_time")
		writeError(w, d.Logger, dapabort.New(dapabort.ReportRejected, "report time outside validity window").WithTask(taskID[:]))
		return
	}
	if err := d.Engine.PutReport(report); err != nil {
		writeError(w, d.Logger, err)
		return
	}
	if d.Metrics != nil {
		d.Metrics.ReportsUploaded.Inc()
	}
	w.WriteHeader(http.StatusOK)
}

func (d *Deps) rejectReport(reason string) {
	if d.Metrics != nil {
		d.Metrics.ReportsRejected.WithLabelValues(reason).Inc()
	}
}

// handleAggregationJobInit is PUT /tasks/{task_id}/aggregation_jobs/{agg_job_id}
// (spec §6): the Helper's entry point for a Leader-initiated job.
func (d *Deps) handleAggregationJobInit(w http.ResponseWriter, r *http.Request) {
	taskID, ok := d.taskAndAuth(w, r)
	if !ok {
		return
	}
	cfg, ok := d.Tasks.Task(taskID)
	if !ok {
		writeError(w, d.Logger, dapabort.New(dapabort.UnrecognizedTask, "task not configured").WithTask(taskID[:]))
		return
	}
	aggJobID, err := parseAggJobID(r.PathValue("agg_job_id"))
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "could not read request body"))
		return
	}
	req, err := messages.DecodeAggregationJobInitReq(body)
	if err != nil {
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "malformed aggregation job init request"))
		return
	}
	if req.TaskID != taskID || req.AggJobID != aggJobID {
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "request body ids do not match path").WithTask(taskID[:]))
		return
	}
	resp, err := d.Helper.HandleInitReq(r.Context(), cfg, d.Now(), req.PartBatchSel, req)
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}
	writeBinary(w, MediaTypeAggregationJobResp, resp.Encode())
}

// handleAggregationJobContinue is POST .../aggregation_jobs/{agg_job_id}
// (spec §6): the Helper's next-round continuation of an init'd job.
func (d *Deps) handleAggregationJobContinue(w http.ResponseWriter, r *http.Request) {
	taskID, ok := d.taskAndAuth(w, r)
	if !ok {
		return
	}
	aggJobID, err := parseAggJobID(r.PathValue("agg_job_id"))
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "could not read request body"))
		return
	}
	req, err := messages.DecodeAggregationJobContinueReq(body)
	if err != nil {
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "malformed aggregation job continue request"))
		return
	}
	if req.TaskID != taskID || req.AggJobID != aggJobID {
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "request body ids do not match path").WithTask(taskID[:]))
		return
	}
	resp, err := d.Helper.HandleContinueReq(r.Context(), req)
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}
	writeBinary(w, MediaTypeAggregationJobResp, resp.Encode())
}

// handleCollectPut is PUT /tasks/{task_id}/collection_jobs/{coll_job_id}
// (spec §6): a collector starting a new collection job.
func (d *Deps) handleCollectPut(w http.ResponseWriter, r *http.Request) {
	taskID, ok := d.taskAndAuth(w, r)
	if !ok {
		return
	}
	cfg, ok := d.Tasks.Task(taskID)
	if !ok {
		writeError(w, d.Logger, dapabort.New(dapabort.UnrecognizedTask, "task not configured").WithTask(taskID[:]))
		return
	}
	collJobID, err := parseCollJobID(r.PathValue("coll_job_id"))
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "could not read request body"))
		return
	}
	req, err := messages.DecodeCollectReq(body)
	if err != nil {
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "malformed collect request"))
		return
	}
	if req.TaskID != taskID {
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "request body task_id does not match path").WithTask(taskID[:]))
		return
	}
	if !cfg.IntervalValid(req.Interval) {
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "interval is not valid for this task's time_precision").WithTask(taskID[:]))
		return
	}
	sel := messages.BatchSelector{Kind: messages.BatchTimeInterval, Interval: req.Interval}
	if err := d.Engine.InitCollectJob(taskID, collJobID, sel, req.AggParam); err != nil {
		writeError(w, d.Logger, err)
		return
	}
	w.Header().Set("Location", r.URL.String())
	w.WriteHeader(http.StatusCreated)
}

// handleCollectPoll is POST /tasks/{task_id}/collection_jobs/{coll_job_id}
// (spec §6): a collector polling for the finished Collection.
func (d *Deps) handleCollectPoll(w http.ResponseWriter, r *http.Request) {
	taskID, ok := d.taskAndAuth(w, r)
	if !ok {
		return
	}
	collJobID, err := parseCollJobID(r.PathValue("coll_job_id"))
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}
	job, found, err := d.Engine.CollectionJobStatus(taskID, collJobID)
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}
	if !found {
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "unknown collection job id").WithTask(taskID[:]))
		return
	}
	if job.Status != workengine.CollectionDone {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeBinary(w, MediaTypeCollectResp, job.Collection.Encode())
}

// handleAggregateShares is POST /tasks/{task_id}/aggregate_shares (spec
// §6): the Leader asking the Helper for its half of a batch span.
func (d *Deps) handleAggregateShares(w http.ResponseWriter, r *http.Request) {
	taskID, ok := d.taskAndAuth(w, r)
	if !ok {
		return
	}
	cfg, ok := d.Tasks.Task(taskID)
	if !ok {
		writeError(w, d.Logger, dapabort.New(dapabort.UnrecognizedTask, "task not configured").WithTask(taskID[:]))
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "could not read request body"))
		return
	}
	req, err := messages.DecodeAggregateShareReq(body)
	if err != nil {
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "malformed aggregate share request"))
		return
	}
	if req.TaskID != taskID {
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "request body task_id does not match path").WithTask(taskID[:]))
		return
	}
	if !cfg.IntervalValid(req.Interval) {
		writeError(w, d.Logger, dapabort.New(dapabort.BadRequest, "interval is not valid for this task's time_precision").WithTask(taskID[:]))
		return
	}

	resp, err := d.Helper.HandleAggregateShareReq(r.Context(), cfg, req)
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}
	writeBinary(w, MediaTypeAggregateShareResp, resp.Encode())
}

// handleHpkeConfig is GET /hpke_config?task_id=... (spec §6).
func (d *Deps) handleHpkeConfig(w http.ResponseWriter, r *http.Request) {
	taskIDStr := r.URL.Query().Get("task_id")
	if taskIDStr == "" {
		writeError(w, d.Logger, dapabort.New(dapabort.MissingTaskID, "task_id query parameter is required"))
		return
	}
	taskID, err := parseTaskID(taskIDStr)
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}
	if _, ok := d.Tasks.Task(taskID); !ok {
		writeError(w, d.Logger, dapabort.New(dapabort.UnrecognizedTask, "task not configured").WithTask(taskID[:]))
		return
	}
	hc, ok := d.HpkeReg.ActiveConfig()
	if !ok {
		writeError(w, d.Logger, dapabort.Fatal("no active hpke config registered", errNoActiveConfig))
		return
	}
	writeBinary(w, MediaTypeHpkeConfig, hc.Encode())
}

// healthProbeKey is a key that is never written by any handler, used only
// to probe that the store answers reads without error.
var healthProbeKey = []byte("transport/health-probe")

// HealthCheck implements health.Checker: it reports whether this process's
// storage backend and HPKE registry are in a servable state, independent
// of any particular task.
func (d *Deps) HealthCheck(ctx context.Context) (interface{}, error) {
	start := time.Now()
	checks := []health.Check{d.checkStore(ctx), d.checkHpkeConfig()}

	healthy := true
	for _, c := range checks {
		if !c.Healthy {
			healthy = false
		}
	}
	return health.Report{Healthy: healthy, Checks: checks, Duration: time.Since(start)}, nil
}

func (d *Deps) checkStore(ctx context.Context) health.Check {
	start := time.Now()
	check := health.Check{Name: "store"}
	if _, _, err := d.Store.Get(ctx, healthProbeKey); err != nil {
		check.Error = err.Error()
	} else {
		check.Healthy = true
	}
	check.Duration = time.Since(start)
	return check
}

func (d *Deps) checkHpkeConfig() health.Check {
	start := time.Now()
	check := health.Check{Name: "hpke_config"}
	if _, ok := d.HpkeReg.ActiveConfig(); ok {
		check.Healthy = true
	} else {
		check.Error = errNoActiveConfig.Error()
	}
	check.Duration = time.Since(start)
	return check
}

// handleHealth is GET /health: a liveness/readiness probe independent of
// any single task, used by load balancers and orchestrators rather than
// collectors or peer aggregators.
func (d *Deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	report, _ := d.HealthCheck(r.Context())
	status := http.StatusOK
	if rep, ok := report.(health.Report); ok && !rep.Healthy {
		status = http.StatusServiceUnavailable
	}
	_ = api.WriteJSON(w, status, report)
}

func writeBinary(w http.ResponseWriter, mediaType string, body []byte) {
	w.Header().Set("Content-Type", mediaType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
