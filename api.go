package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof" // register handlers
	"regexp"
	"strconv"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wardenbot/warden/modlog"
	"github.com/wardenbot/warden/platform"
)

func (w *Warden) api(ctx context.Context, listen string, mux *http.ServeMux, metrics []prometheus.Collector) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(
		collectors.WithGoCollectorMemStatsMetricsDisabled(),
		collectors.WithGoCollectorRuntimeMetrics(
			collectors.GoRuntimeMetricsRule{
				Matcher: regexp.MustCompile(`^(/gc/gogc:percent|/gc/gomemlimit:bytes|/gc/heap/allocs:bytes|/gc/heap/allocs:objects|/gc/heap/goal:bytes|/memory/classes/heap/released:bytes|/memory/classes/heap/stacks:bytes|/memory/classes/total:bytes|/sched/gomaxprocs:threads|/sched/goroutines:goroutines|/sched/latencies:seconds)$`),
			},
		),
	))
	reg.MustRegister(metrics...)
	opts := promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, opts))
	mux.HandleFunc("GET /debug/pprof/", pprof.Index)
	mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("GET /api/cases/{community}", w.apiCases)
	mux.HandleFunc("GET /api/cases/{community}/{n}", w.apiCase)
	l, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("couldn't start API server: %w", err)
	}
	srv := http.Server{
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}
	go func() {
		slog.InfoContext(ctx, "HTTP API server", slog.Any("addr", l.Addr()))
		err := srv.Serve(l)
		if err == http.ErrServerClosed {
			return
		}
		slog.ErrorContext(ctx, "HTTP API server closed", slog.Any("err", err))
	}()
	<-ctx.Done()
	// The context is now done, so it is obviously the wrong choice for
	// managing the shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func jsonerror(w http.ResponseWriter, status int, msg string) {
	v := struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}{
		Error:  msg,
		Status: status,
	}
	b, err := json.Marshal(&v)
	if err != nil {
		panic(err)
	}
	w.WriteHeader(status)
	w.Write(b)
}

type apiCase struct {
	Case      int      `json:"case"`
	Action    string   `json:"action"`
	Created   string   `json:"created"`
	Modified  string   `json:"modified,omitzero"`
	Channel   string   `json:"channel,omitzero"`
	User      apiUser  `json:"user"`
	Moderator *apiUser `json:"moderator,omitzero"`
	AmendedBy *apiUser `json:"amended_by,omitzero"`
	Reason    string   `json:"reason,omitzero"`
	Message   string   `json:"message,omitzero"`
	Until     string   `json:"until,omitzero"`
}

type apiUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func caseOf(c *modlog.Case) apiCase {
	u := apiCase{
		Case:    c.Seq,
		Action:  c.Action.String(),
		Created: c.Created.Format(time.RFC3339),
		Channel: c.Channel,
		User:    apiUser{ID: c.User.ID, Name: c.User.Name},
		Reason:  c.Reason,
		Message: c.MessageID,
	}
	if !c.Modified.IsZero() {
		u.Modified = c.Modified.Format(time.RFC3339)
	}
	if !c.Until.IsZero() {
		u.Until = c.Until.Format(time.RFC3339)
	}
	user := func(p *platform.User) *apiUser {
		if p == nil {
			return nil
		}
		return &apiUser{ID: p.ID, Name: p.Name}
	}
	u.Moderator = user(c.Moderator)
	u.AmendedBy = user(c.AmendedBy)
	return u
}

func (w *Warden) apiCases(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "cases"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	rw.Header().Set("Content-Type", "application/json")
	community := r.PathValue("community")
	cs := w.ledger.Cases(community)
	if len(cs) == 0 {
		log.WarnContext(ctx, "no cases", slog.String("community", community))
		jsonerror(rw, http.StatusNotFound, "no cases for community")
		return
	}
	u := struct {
		Data   []apiCase `json:"data"`
		Status int       `json:"status"`
	}{
		Data:   make([]apiCase, len(cs)),
		Status: http.StatusOK,
	}
	for i, c := range cs {
		u.Data[i] = caseOf(c)
	}
	b, err := json.Marshal(&u)
	if err != nil {
		panic(err)
	}
	if _, err := rw.Write(b); err != nil {
		log.ErrorContext(ctx, "write response failed", slog.Any("err", err))
	}
}

func (w *Warden) apiCase(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "case"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	rw.Header().Set("Content-Type", "application/json")
	community := r.PathValue("community")
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n <= 0 {
		log.WarnContext(ctx, "bad request", slog.String("n", r.PathValue("n")), slog.Any("err", err))
		jsonerror(rw, http.StatusBadRequest, "invalid case number")
		return
	}
	c, ok := w.ledger.Case(community, n)
	if !ok {
		log.WarnContext(ctx, "no case", slog.String("community", community), slog.Int("n", n))
		jsonerror(rw, http.StatusNotFound, "no such case")
		return
	}
	u := struct {
		Data   apiCase `json:"data"`
		Status int     `json:"status"`
	}{
		Data:   caseOf(c),
		Status: http.StatusOK,
	}
	b, err := json.Marshal(&u)
	if err != nil {
		panic(err)
	}
	if _, err := rw.Write(b); err != nil {
		log.ErrorContext(ctx, "write response failed", slog.Any("err", err))
	}
}
