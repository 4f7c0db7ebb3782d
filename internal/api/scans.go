package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/newthinker/valscreen/internal/api/job"
	"github.com/newthinker/valscreen/internal/api/response"
	"github.com/newthinker/valscreen/internal/core"
	"github.com/newthinker/valscreen/internal/report"
	"github.com/newthinker/valscreen/internal/storage/archive"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// ScanRequest starts a scan.
type ScanRequest struct {
	Index   string `json:"index"`
	Limit   uint   `json:"limit"`
	Archive bool   `json:"archive"`
}

// scanView is a job plus summary statistics once the result is in.
type scanView struct {
	*job.Job
	Summary *report.Summary `json:"summary,omitempty"`
}

func invalid(format string, args ...any) error {
	return core.WrapError(core.ErrInvalidRequest, fmt.Errorf(format, args...))
}

func (s *Server) handleIndices(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, s.screener.Indices())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	t, err := s.screener.LatestSnapshot(r.Context(), r.PathValue("key"))
	if errors.Is(err, archive.ErrNotFound) {
		response.Error(w, http.StatusNotFound, core.WrapError(core.ErrIndexNotFound, err))
		return
	}
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		response.Fail(w, invalid("decoding body: %v", err))
		return
	}

	d, ok := s.screener.Index(req.Index)
	if !ok {
		response.Fail(w, core.WrapError(core.ErrIndexNotFound, fmt.Errorf("%q", req.Index)))
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = s.screener.DefaultLimit()
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	j := s.jobs.Create(d.Key, limit, cancel)

	s.logger.Info("scan queued",
		zap.String("job_id", j.ID),
		zap.String("index", d.Key),
		zap.Uint("limit", limit))

	go func() {
		defer cancel()
		s.runScan(ctx, j.ID, d.Key, limit, req.Archive)
	}()

	w.Header().Set("Location", "/api/v1/scans/"+j.ID)
	response.JSON(w, http.StatusAccepted, j)
}

// runScan drives one job to a terminal state.
func (s *Server) runScan(ctx context.Context, id, indexKey string, limit uint, archiveResult bool) {
	s.jobs.Update(id, func(j *job.Job) { j.Status = job.StatusRunning })

	sel, err := s.screener.ResolveAndRank(ctx, indexKey, limit)
	if err != nil {
		s.logger.Warn("scan failed", zap.String("job_id", id), zap.Error(err))
		s.jobs.Update(id, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = err.Error()
		})
		return
	}
	s.jobs.Update(id, func(j *job.Job) { j.SetProgress(0, sel.Len()) })

	table := s.screener.RunBatch(ctx, sel, func(completed, total int) {
		s.jobs.Update(id, func(j *job.Job) { j.SetProgress(completed, total) })
	})

	status := job.StatusComplete
	if table.Cancelled {
		status = job.StatusCancelled
	}
	if archiveResult && !table.Cancelled {
		if _, err := s.screener.Archive(context.WithoutCancel(ctx), table); err != nil {
			s.logger.Warn("archiving scan failed", zap.String("job_id", id), zap.Error(err))
		}
	}

	s.jobs.Update(id, func(j *job.Job) {
		j.Status = status
		j.Result = table
	})
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.List()
	for i := range jobs {
		jobs[i].Result = nil
	}
	response.JSON(w, http.StatusOK, jobs)
}

// handleGetScan returns the job. Records can be ordered with
// ?sort=<key>&desc=true; the default is cheapest premium first.
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	j, err := s.jobs.Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	q := r.URL.Query()
	key, err := report.ParseSortKey(q.Get("sort"))
	if err != nil {
		response.Fail(w, invalid("%v", err))
		return
	}
	desc := false
	if v := q.Get("desc"); v != "" {
		if desc, err = strconv.ParseBool(v); err != nil {
			response.Fail(w, invalid("desc: %v", err))
			return
		}
	}

	view := scanView{Job: j}
	if j.Result != nil {
		sorted := *j.Result
		sorted.Records = report.SortRecords(j.Result.Records, key, desc)
		view.Job.Result = &sorted

		summary := report.Summarize(&sorted)
		view.Summary = &summary
	}
	response.JSON(w, http.StatusOK, view)
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	j, err := s.jobs.Cancel(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	s.logger.Info("scan cancel requested", zap.String("job_id", j.ID))
	response.JSON(w, http.StatusAccepted, j)
}

func (s *Server) handleTreemap(w http.ResponseWriter, r *http.Request) {
	j, err := s.jobs.Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	if j.Result == nil {
		response.Fail(w, core.WrapError(core.ErrScanPending, fmt.Errorf("%s is %s", j.ID, j.Status)))
		return
	}

	root := j.Index
	if d, ok := s.screener.Index(j.Index); ok && d.Name != "" {
		root = d.Name
	}
	response.JSON(w, http.StatusOK, report.Treemap(j.Result, root))
}
