// Package server puts an Engine behind a small HTTP API, the same operations the CLI
// exposes, so a device can be driven from somewhere else.
package server

import (
	c "i2cflash/internal"
	"i2cflash/internal/xfer"

	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// Device is the part of *xfer.Engine the server drives.
type Device interface {
	Status() error
	Kind() xfer.Kind
	Pointer() uint32
	SetPointer(page uint32) error
	Erase() error
	Write(data []byte, pages uint32) error
	Read(dst []byte, pages uint32) (int, error)
	Stats() xfer.Stats
}

type Server struct {
	log		*slog.Logger
	dev		Device
	router	*mux.Router
}

type statusView struct {
	Ready	bool	`json:"ready"`
	State	string	`json:"state"`
	Error	string	`json:"error,omitempty"`
}

type pointerView struct {
	Page	uint32	`json:"page"`
}

type statsView struct {
	Requests	uint64	`json:"requests"`
	Pages		uint64	`json:"pages"`
	Attempts	uint64	`json:"attempts"`
	Retries		uint64	`json:"retries"`
	Faults		uint64	`json:"faults"`
}

func New(dev Device, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		log:	log.With("src", "Server"),
		dev:	dev,
		router:	mux.NewRouter(),
	}

	// flat on the root router so a wrong method gets 405 rather than 404
	r := s.router
	r.HandleFunc("/api/status", s.status).Methods(http.MethodGet)
	r.HandleFunc("/api/pointer", s.pointer).Methods(http.MethodGet)
	r.HandleFunc("/api/pointer/{page}", s.setPointer).Methods(http.MethodPut)
	r.HandleFunc("/api/erase", s.erase).Methods(http.MethodPost)
	r.HandleFunc("/api/write", s.write).Methods(http.MethodPost)
	r.HandleFunc("/api/read", s.read).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.stats).Methods(http.MethodGet)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve answers requests on l until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shut, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shut)
	}()

	s.log.Info("listening", "addr", l.Addr().String())
	err := srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// code maps engine errors onto HTTP statuses.
func code(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, xfer.ErrTryAgain):
		return http.StatusAccepted
	case errors.Is(err, xfer.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, xfer.ErrOutOfRange),
		errors.Is(err, xfer.ErrCopyFault),
		errors.Is(err, xfer.ErrInvalidArg):
		return http.StatusBadRequest
	case errors.Is(err, xfer.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, xfer.ErrHardwareFault):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("reply", "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.reply(w, code(err), map[string]string{"error": err.Error()})
}

// pagesParam reads ?pages=, which must name at most one device worth of pages.
func pagesParam(r *http.Request) (uint32, bool, error) {
	raw := r.URL.Query().Get("pages")
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || n > c.PAGE_COUNT {
		return 0, true, xfer.ErrInvalidArg
	}
	return uint32(n), true, nil
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	err := s.dev.Status()
	v := statusView{Ready: err == nil, State: s.dev.Kind().String()}
	if err != nil && !errors.Is(err, xfer.ErrBusy) {
		v.Error = err.Error()
		s.reply(w, code(err), v)
		return
	}
	s.reply(w, http.StatusOK, v)
}

func (s *Server) pointer(w http.ResponseWriter, _ *http.Request) {
	s.reply(w, http.StatusOK, pointerView{Page: s.dev.Pointer()})
}

func (s *Server) setPointer(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.ParseUint(mux.Vars(r)["page"], 0, 32)
	if err != nil {
		s.fail(w, xfer.ErrInvalidArg)
		return
	}
	if err := s.dev.SetPointer(uint32(page)); err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusOK, pointerView{Page: s.dev.Pointer()})
}

func (s *Server) erase(w http.ResponseWriter, _ *http.Request) {
	if err := s.dev.Erase(); err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info("erase accepted")
	w.WriteHeader(http.StatusAccepted)
}

// write takes the raw body as page data. Without ?pages= the body must be whole pages.
func (s *Server) write(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, c.DEVICE_SIZE+1))
	if err != nil {
		s.fail(w, err)
		return
	}
	if len(body) > c.DEVICE_SIZE {
		s.fail(w, xfer.ErrInvalidArg)
		return
	}

	pages, given, err := pagesParam(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !given {
		if len(body)%c.PAGE_SIZE != 0 {
			s.fail(w, xfer.ErrInvalidArg)
			return
		}
		pages = uint32(len(body) / c.PAGE_SIZE)
	}

	if err := s.dev.Write(body, pages); err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info("write accepted", "pages", pages)
	w.WriteHeader(http.StatusAccepted)
}

// read starts a read, or collects one that has finished. 202 means come back later.
func (s *Server) read(w http.ResponseWriter, r *http.Request) {
	pages, given, err := pagesParam(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !given {
		pages = 1
	}

	dst := make([]byte, c.DEVICE_SIZE)
	n, err := s.dev.Read(dst, pages)
	if err != nil {
		if errors.Is(err, xfer.ErrTryAgain) {
			w.Header().Set("Retry-After", "1")
		}
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(dst[:n])
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	st := s.dev.Stats()
	s.reply(w, http.StatusOK, statsView{
		Requests:	st.Requests,
		Pages:		st.Pages,
		Attempts:	st.Attempts,
		Retries:	st.Retries,
		Faults:		st.Faults,
	})
}
