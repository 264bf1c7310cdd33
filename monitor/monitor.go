// Package monitor serves the state of the frequency policy over HTTP and lets
// clients change it.
package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/Jon-Bright/cpufreqctl/cpufreq"
	"github.com/Jon-Bright/cpufreqctl/journal"
	"github.com/Jon-Bright/cpufreqctl/policy"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
)

// History is a persistent transition log, e.g. a journal.Journal.
type History interface {
	Recent(limit int) ([]journal.Entry, error)
}

// Monitor is an HTTP front end to a Policy. It is also a cpufreq.Tracer and
// remembers the last transitions it saw.
type Monitor struct {
	policy  *policy.Policy
	table   cpufreq.Table
	history History

	mu     sync.Mutex
	recent []journal.Entry
	keep   int
}

// DefaultKeep is how many transitions a Monitor remembers.
const DefaultKeep = 64

// NewMonitor creates a Monitor for table. It needs a policy before it can
// serve; the policy's driver usually traces into the Monitor, so the two are
// wired up in that order.
func NewMonitor(table cpufreq.Table) *Monitor {
	return &Monitor{table: table, keep: DefaultKeep}
}

// WithPolicy sets the policy the API reads and changes.
func (m *Monitor) WithPolicy(p *policy.Policy) *Monitor {
	m.policy = p
	return m
}

// WithHistory makes /api/history answer from h.
func (m *Monitor) WithHistory(h History) *Monitor {
	m.history = h
	return m
}

func (m *Monitor) StartTransition(t *cpufreq.Transition) {}

func (m *Monitor) EnterState(t *cpufreq.Transition, s cpufreq.State) {}

func (m *Monitor) EndTransition(t *cpufreq.Transition) {
	e := journal.NewEntry(t)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent = append(m.recent, e)
	if len(m.recent) > m.keep {
		m.recent = m.recent[len(m.recent)-m.keep:]
	}
}

// Handler returns the API router.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/freq", m.freq).Methods(http.MethodGet)
	r.HandleFunc("/api/table", m.listTable).Methods(http.MethodGet)
	r.HandleFunc("/api/policy", m.info).Methods(http.MethodGet)
	r.HandleFunc("/api/target/{khz:[0-9]+}", m.target).Methods(http.MethodPost)
	r.HandleFunc("/api/index/{index:[0-9]+}", m.targetIndex).Methods(http.MethodPost)
	r.HandleFunc("/api/boost/{state:on|off}", m.boost).Methods(http.MethodPost)
	r.HandleFunc("/api/limits/{min:[0-9]+}/{max:[0-9]+}", m.limits).Methods(http.MethodPost)
	r.HandleFunc("/api/transitions", m.transitions).Methods(http.MethodGet)
	r.HandleFunc("/api/history", m.listHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	return r
}

// StartServer listens on addr and serves the API in the background. It
// returns the address actually listened on.
func (m *Monitor) StartServer(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("couldn't listen on %s: %v", addr, err)
	}

	fmt.Fprintf(os.Stderr, "Monitoring CPU frequency on http://%s\n", listener.Addr())

	go func() {
		err := http.Serve(listener, m.Handler())
		if err != nil {
			log.Printf("Monitor server stopped: %v", err)
		}
	}()
	return listener.Addr(), nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		log.Printf("Couldn't write response: %v", err)
	}
}

type errorRsp struct {
	Error string `json:"error"`
}

// writeError maps hardware failures to 5xx. Anything else is the request's
// fault.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusBadRequest
	switch {
	case errors.Is(err, cpufreq.ErrRegisterAccess):
		code = http.StatusInternalServerError
	case errors.Is(err, cpufreq.ErrHardwareTimeout):
		code = http.StatusGatewayTimeout
	}
	writeStatus(w, code, err)
}

func (m *Monitor) freq(w http.ResponseWriter, _ *http.Request) {
	st, err := m.policy.Status()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, st)
}

type pointRsp struct {
	Index     int    `json:"index"`
	KHz       uint32 `json:"khz"`
	VCOHz     uint64 `json:"vco_hz"`
	Boost     bool   `json:"boost"`
	VCONumer  uint32 `json:"vco_numer"`
	VCODenom  uint32 `json:"vco_denom"`
	MPUDiv    uint32 `json:"mpu_div"`
	MainDiv   uint32 `json:"main_div"`
	DbgDiv    uint32 `json:"dbg_div"`
	PeriphDiv uint32 `json:"periph_div"`
}

func (m *Monitor) listTable(w http.ResponseWriter, _ *http.Request) {
	rsp := make([]pointRsp, 0, len(m.table))
	for i, op := range m.table {
		c := op.Config
		rsp = append(rsp, pointRsp{
			Index:     i,
			KHz:       op.KHz,
			VCOHz:     c.VCOHz(),
			Boost:     op.Boost,
			VCONumer:  c.VCONumer,
			VCODenom:  c.VCODenom,
			MPUDiv:    c.MPUDiv,
			MainDiv:   c.MainDiv,
			DbgDiv:    c.DbgDiv,
			PeriphDiv: c.PeriphDiv,
		})
	}
	writeJSON(w, rsp)
}

func (m *Monitor) info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.policy.Info())
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad number %q: %v", s, err)
	}
	return uint32(v), nil
}

func writeStatus(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorRsp{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, err error) {
	writeStatus(w, http.StatusBadRequest, err)
}

func serverError(w http.ResponseWriter, err error) {
	writeStatus(w, http.StatusInternalServerError, err)
}

type targetRsp struct {
	KHz uint32 `json:"khz"`
}

func (m *Monitor) target(w http.ResponseWriter, r *http.Request) {
	khz, err := parseUint32(mux.Vars(r)["khz"])
	if err != nil {
		badRequest(w, err)
		return
	}
	rel := policy.RelationL
	if s := r.URL.Query().Get("relation"); s != "" {
		rel, err = policy.ParseRelation(s)
		if err != nil {
			badRequest(w, err)
			return
		}
	}
	got, err := m.policy.Target(khz, rel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, targetRsp{KHz: got})
}

func (m *Monitor) targetIndex(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		badRequest(w, err)
		return
	}
	err = m.policy.TargetIndex(i)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, targetRsp{KHz: m.policy.Info().Cur})
}

func (m *Monitor) boost(w http.ResponseWriter, r *http.Request) {
	err := m.policy.SetBoost(mux.Vars(r)["state"] == "on")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, m.policy.Info())
}

func (m *Monitor) limits(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	min, err := parseUint32(vars["min"])
	if err != nil {
		badRequest(w, err)
		return
	}
	max, err := parseUint32(vars["max"])
	if err != nil {
		badRequest(w, err)
		return
	}
	err = m.policy.SetLimits(min, max)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, m.policy.Info())
}

// transitions lists the remembered transitions, newest first.
func (m *Monitor) transitions(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	rsp := make([]journal.Entry, 0, len(m.recent))
	for i := len(m.recent) - 1; i >= 0; i-- {
		rsp = append(rsp, m.recent[i])
	}
	m.mu.Unlock()
	writeJSON(w, rsp)
}

func (m *Monitor) listHistory(w http.ResponseWriter, r *http.Request) {
	if m.history == nil {
		writeStatus(w, http.StatusNotFound, errors.New("no journal configured"))
		return
	}
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		var err error
		limit, err = strconv.Atoi(s)
		if err != nil {
			badRequest(w, err)
			return
		}
	}
	entries, err := m.history.Recent(limit)
	if err != nil {
		serverError(w, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, entries)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		serverError(w, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		serverError(w, err)
		return
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		serverError(w, err)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memInfo.RSS,
	})
}

var _ cpufreq.Tracer = (*Monitor)(nil)
