// Package server provides a small HTTP server reporting the progress of a
// long running indexer.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/facebookgo/httpdown"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mjordan/bagit-indexer/indexer"
	"github.com/mjordan/bagit-indexer/registry"
)

// StatsSource gives the current counters of an indexer.
type StatsSource interface {
	Stats() indexer.Stats
}

// StatusServer reports counters, prometheus metrics and registry records.
//
// Set the public fields and then call Start. Do not change any fields after
// calling Start.
type StatusServer struct {
	// Addr to listen on, e.g. ":14001"
	Addr  string
	Stats StatsSource
	// Registry may be nil, in which case every /bag lookup is a miss.
	Registry registry.Registry

	server httpdown.Server // used to close our listening socket
}

// Start listens on Addr and serves requests in the background.
func (s *StatusServer) Start() error {
	logrus.WithField("addr", s.Addr).Info("starting status server")
	h := httpdown.HTTP{
		StopTimeout: 5 * time.Second,
		KillTimeout: 5 * time.Second,
	}
	var err error
	s.server, err = h.ListenAndServe(&http.Server{
		Addr:    s.Addr,
		Handler: s.Handler(),
	})
	return err
}

// Stop closes the listening socket and waits for requests in progress.
func (s *StatusServer) Stop() error {
	if s.server == nil {
		return nil
	}
	return s.server.Stop()
}

// Handler returns the routes of the server.
func (s *StatusServer) Handler() http.Handler {
	var routes = []struct {
		method  string
		route   string
		handler httprouter.Handle
	}{
		{"GET", "/", WelcomeHandler},
		{"GET", "/stats", s.StatsHandler},
		{"GET", "/bag/:id", s.BagHandler},
		{"GET", "/metrics", wrap(promhttp.Handler())},
	}

	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.method, route.route, logWrapper(route.handler))
	}
	return r
}

// StatsHandler returns the indexer counters as JSON.
func (s *StatusServer) StatsHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var stats indexer.Stats
	if s.Stats != nil {
		stats = s.Stats.Stats()
	}
	writeJSON(w, stats)
}

// BagHandler returns the registry record for a bag.
func (s *StatusServer) BagHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if s.Registry == nil {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, "no registry")
		return
	}
	rec, ok, err := s.Registry.Lookup(id)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, err.Error())
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, "bag not found")
		return
	}
	writeJSON(w, rec)
}

func writeJSON(w http.ResponseWriter, val interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(val)
}

// wrap adapts a http.Handler to the httprouter three parameter handler.
func wrap(h http.Handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.ServeHTTP(w, r)
	}
}

// logWrapper takes a handler and returns a handler which does the same thing,
// after first logging the request URL.
func logWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		logrus.WithFields(logrus.Fields{"method": r.Method, "url": r.URL.String()}).Debug("status request")
		handler(w, r, ps)
	}
}
