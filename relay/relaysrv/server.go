// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package relaysrv is an in-memory relay service. It issues session tokens,
// correlates bump reports from two sessions, simulates a second device
// scanning a session's code, and serves matched profiles.
package relaysrv

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/internal/log"
	"github.com/alexweingart/nektus-sub006/relay"
	"github.com/google/uuid"
)

type (
	// Server implements the relay endpoints as an http.Handler.
	Server struct {
		mux    *http.ServeMux
		window time.Duration
		filter exchange.ProfileFilter
		log    logger

		mu       sync.Mutex
		profiles map[string]*exchange.Profile
		sessions map[string]*session
		tokens   map[string]*session
	}

	session struct {
		id       string
		token    string
		user     string
		category exchange.SharingCategory

		lastHit *relay.HitReport

		scan    relay.ScanStatus
		scanner string
		partner *session
		peer    string
		youAre  exchange.Role
	}
)

// DefaultWindow is the maximum distance between the timestamps of two
// correlated bumps.
const DefaultWindow = time.Second

// New creates an empty relay service.
func New(opt ...Option) *Server {
	var opts Options
	opts.Apply(opt)

	s := &Server{
		mux:      http.NewServeMux(),
		window:   opts.Window,
		filter:   opts.Filter,
		log:      logger{log.Wrap(opts.Logger)},
		profiles: map[string]*exchange.Profile{},
		sessions: map[string]*session{},
		tokens:   map[string]*session{},
	}
	if s.window <= 0 {
		s.window = DefaultWindow
	}
	if s.filter == nil {
		s.filter = exchange.SectionFilter{}
	}

	s.mux.HandleFunc("POST /initiate", s.initiate)
	s.mux.HandleFunc("POST /hit", s.hit)
	s.mux.HandleFunc("GET /status/{sessionId}", s.status)
	s.mux.HandleFunc("GET /pair/{token}", s.pair)
	s.mux.HandleFunc("POST /qr/{token}/scan", s.scan)
	s.mux.HandleFunc("POST /qr/{token}/authenticate", s.authenticate)
	return s
}

// Register associates a profile with a bearer token, standing in for the
// user account behind it.
func (s *Server) Register(authToken string, p exchange.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[authToken] = &p
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, ok := bearer(r); !ok {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func bearer(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return token, ok && token != ""
}

func (s *Server) initiate(w http.ResponseWriter, r *http.Request) {
	var req relay.InitiateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SessionID == "" || !req.SharingCategory.Valid() {
		http.Error(w, "invalid initiate request", http.StatusBadRequest)
		return
	}
	user, _ := bearer(r)

	s.mu.Lock()
	ss, ok := s.sessions[req.SessionID]
	if !ok {
		ss = &session{
			id:       req.SessionID,
			token:    uuid.NewString(),
			user:     user,
			category: req.SharingCategory,
		}
		s.sessions[ss.id] = ss
		s.tokens[ss.token] = ss
	}
	token := ss.token
	s.mu.Unlock()

	s.log.initiated(r.Context(), req.SessionID, token, !ok)
	reply(w, &relay.InitiateResponse{Token: token})
}

func (s *Server) hit(w http.ResponseWriter, r *http.Request) {
	var hit relay.HitReport
	if !decode(w, r, &hit) {
		return
	}

	s.mu.Lock()
	ss, ok := s.sessions[hit.Session]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	res := relay.HitResponse{Success: true}
	if ss.partner == nil {
		if other := s.correlate(ss, &hit); other != nil {
			// The earlier reporter is A.
			s.link(other, ss)
			res.Matched, res.Token, res.YouAre = true, ss.token, ss.youAre
		} else {
			ss.lastHit = &hit
		}
	}
	s.mu.Unlock()

	s.log.hit(r.Context(), &hit, res.Matched)
	reply(w, &res)
}

// Find another unmatched session whose latest bump correlates with hit.
// Must hold s.mu.
func (s *Server) correlate(ss *session, hit *relay.HitReport) *session {
	for _, other := range s.sessions {
		if other == ss || other.partner != nil || other.lastHit == nil {
			continue
		}
		if other.category != hit.SharingCategory {
			continue
		}
		prev := other.lastHit
		if prev.Vector != "" && hit.Vector != "" && prev.Vector != hit.Vector {
			continue
		}
		dt := time.Duration(abs(prev.Timestamp-hit.Timestamp)) * time.Millisecond
		if dt > s.window {
			continue
		}
		return other
	}
	return nil
}

// Must hold s.mu.
func (s *Server) link(a, b *session) {
	a.partner, a.peer, a.youAre = b, b.user, exchange.RoleA
	b.partner, b.peer, b.youAre = a, a.user, exchange.RoleB
	a.lastHit, b.lastHit = nil, nil
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ss, ok := s.sessions[r.PathValue("sessionId")]
	var res relay.StatusResponse
	if ok {
		res = relay.StatusResponse{
			Success:    true,
			HasMatch:   ss.peer != "",
			ScanStatus: ss.scan,
		}
		if res.HasMatch {
			res.Match = &relay.Match{Token: ss.token, YouAre: ss.youAre}
		}
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	reply(w, &res)
}

func (s *Server) pair(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ss, ok := s.tokens[r.PathValue("token")]
	var (
		profile  *exchange.Profile
		category exchange.SharingCategory
	)
	if ok && ss.peer != "" {
		profile = s.profiles[ss.peer]
		category = ss.category
		if ss.partner != nil {
			category = ss.partner.category
		}
	}
	s.mu.Unlock()

	switch {
	case !ok:
		http.Error(w, "unknown token", http.StatusNotFound)
	case profile == nil:
		http.Error(w, "no matched profile", http.StatusNotFound)
	default:
		filtered := s.filter.Filter(*profile, category)
		reply(w, &relay.PairResponse{Success: true, Profile: &filtered})
	}
}

// A second device scanned the session's code; its user still has to sign in.
func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	scanner, _ := bearer(r)

	s.mu.Lock()
	ss, ok := s.tokens[r.PathValue("token")]
	conflict := ok && ss.peer != ""
	if ok && !conflict {
		ss.scan, ss.scanner = relay.ScanPendingAuth, scanner
	}
	s.mu.Unlock()

	switch {
	case !ok:
		http.Error(w, "unknown token", http.StatusNotFound)
	case conflict:
		http.Error(w, "session already matched", http.StatusConflict)
	default:
		s.log.scanned(r.Context(), ss.id)
		reply(w, &struct {
			Success    bool             `json:"success"`
			ScanStatus relay.ScanStatus `json:"scanStatus"`
		}{true, relay.ScanPendingAuth})
	}
}

// The scanning device signed in; the session is matched with its user, and
// the session owner's profile is returned to the scanner.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) {
	scanner, _ := bearer(r)

	s.mu.Lock()
	ss, ok := s.tokens[r.PathValue("token")]
	conflict := ok && ss.peer != ""
	var owner *exchange.Profile
	if ok && !conflict {
		ss.scan, ss.scanner, ss.peer = relay.ScanCompleted, scanner, scanner
		ss.youAre = exchange.RoleA
		owner = s.profiles[ss.user]
	}
	category := exchange.Personal
	if ok {
		category = ss.category
	}
	s.mu.Unlock()

	switch {
	case !ok:
		http.Error(w, "unknown token", http.StatusNotFound)
	case conflict:
		http.Error(w, "session already matched", http.StatusConflict)
	default:
		s.log.authenticated(r.Context(), ss.id)
		res := relay.PairResponse{Success: true}
		if owner != nil {
			filtered := s.filter.Filter(*owner, category)
			res.Profile = &filtered
		}
		reply(w, &res)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

type logger struct{ log.Logger }

func (l *logger) initiated(ctx context.Context, id, token string, created bool) {
	l.Log(ctx, slog.LevelInfo, "session initiated",
		slog.String("session_id", id),
		slog.String("token", token),
		slog.Bool("created", created),
	)
}

func (l *logger) hit(ctx context.Context, hit *relay.HitReport, matched bool) {
	l.Log(ctx, slog.LevelDebug, "hit received",
		slog.String("session_id", hit.Session),
		slog.Int("hit_number", hit.HitNumber),
		slog.String("vector", hit.Vector),
		slog.Bool("matched", matched),
	)
}

func (l *logger) scanned(ctx context.Context, id string) {
	l.Log(ctx, slog.LevelInfo, "session code scanned",
		slog.String("session_id", id),
	)
}

func (l *logger) authenticated(ctx context.Context, id string) {
	l.Log(ctx, slog.LevelInfo, "scanner authenticated",
		slog.String("session_id", id),
	)
}
