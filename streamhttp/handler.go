package streamhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/symstream"
	"github.com/ggoodman/symstream/auth"
	"github.com/ggoodman/symstream/broker"
	"github.com/ggoodman/symstream/internal/logctx"
	"github.com/ggoodman/symstream/internal/sessiontoken"
	"github.com/ggoodman/symstream/internal/wellknown"
	"github.com/ggoodman/symstream/sessions"
	"github.com/google/uuid"
)

var (
	_ http.Handler = (*Handler)(nil)
)

var (
	ErrSessionHeaderMissing = errors.New("missing symstream-session header")
	ErrInvalidSession       = errors.New("invalid symstream session")
)

var (
	jsonMediaType   = contenttype.NewMediaType("application/json")
	octetMediaType  = contenttype.NewMediaType("application/octet-stream")
	textMediaType   = contenttype.NewMediaType("text/plain")
	streamMediaType = []contenttype.MediaType{octetMediaType, textMediaType}
)

const (
	SessionHeader    = "Symstream-Session"
	NextOffsetHeader = "Symstream-Next-Offset"

	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"

	anonymousUser = "anonymous"

	defaultMaxCapacity  = 1 << 20
	defaultSessionTTL   = time.Hour
	defaultReapInterval = time.Minute
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections.
// Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger        *slog.Logger
	authenticator auth.Authenticator
	realm         string
	sessionTTL    time.Duration
	sessionKey    []byte
	maxCapacity   int
	reapInterval  time.Duration
	authServers   []string
	scopes        []string
	broker        broker.Broker
}

// WithLogger sets the slog logger used by the handler. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) { c.logger = l }
}

// WithAuthenticator requires a bearer token on every request and binds
// sessions to the authenticated user.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(c *newConfig) { c.authenticator = a }
}

// WithAuthorizationServers advertises the issuers trusted by the
// authenticator, and optionally the scopes they grant, in a protected
// resource metadata document served under /.well-known. Challenges then
// carry a resource_metadata parameter pointing at it.
func WithAuthorizationServers(issuers []string, scopes ...string) Option {
	return func(c *newConfig) {
		c.authServers = append([]string(nil), issuers...)
		c.scopes = append([]string(nil), scopes...)
	}
}

// WithBroker publishes session deletions to b and evicts sessions deleted
// by other nodes from this node's cache as the notifications arrive.
// Without it, other nodes notice on the next read or reap.
func WithBroker(b broker.Broker) Option {
	return func(c *newConfig) { c.broker = b }
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges.
// Defaults to the device name.
func WithRealm(realm string) Option {
	return func(c *newConfig) { c.realm = strings.TrimSpace(realm) }
}

// WithSessionTTL sets the sliding idle lifetime of sessions. Zero disables
// expiry.
func WithSessionTTL(d time.Duration) Option {
	return func(c *newConfig) { c.sessionTTL = d }
}

// WithSessionKey sets the 32-byte seed of the key that signs session
// handles. Without it a random key is generated and handles are only valid
// on this process.
func WithSessionKey(seed []byte) Option {
	return func(c *newConfig) { c.sessionKey = append([]byte(nil), seed...) }
}

// WithMaxCapacity bounds the bytes served by a single GET. Larger requests
// are served up to the bound; the client continues at Symstream-Next-Offset.
func WithMaxCapacity(n int) Option {
	return func(c *newConfig) {
		if n > 0 {
			c.maxCapacity = n
		}
	}
}

// WithReapInterval sets how often cached sessions are checked against the
// sessions.Host for expiry.
func WithReapInterval(d time.Duration) Option {
	return func(c *newConfig) {
		if d > 0 {
			c.reapInterval = d
		}
	}
}

// Handler implements the HTTP stream transport for one device.
type Handler struct {
	mux  *http.ServeMux
	log  *slog.Logger
	url  *url.URL
	dev  *symstream.Device
	host sessions.Host
	keys *sessiontoken.Keyring
	bus  broker.Broker

	auth        auth.Authenticator
	realm       string
	prm         *wellknown.ProtectedResourceMetadata
	prmURL      string
	ttl         time.Duration
	maxCapacity int

	mu     sync.Mutex
	cache  map[string]*symstream.Session
	closed bool
}

// New constructs a Handler.
//
// Required:
//   - publicEndpoint: externally visible URL of the stream endpoint (scheme, host, path)
//   - dev: the registered device to serve
//   - host: sessions.Host implementation (horizontal-scale ready)
//
// Cached sessions are reaped in the background until ctx is done, at which
// point they are detached.
func New(ctx context.Context, publicEndpoint string, dev *symstream.Device, host sessions.Host, opts ...Option) (*Handler, error) {
	if dev == nil {
		return nil, fmt.Errorf("device is required")
	}
	if host == nil {
		return nil, fmt.Errorf("sessions.Host is required")
	}

	u, err := url.Parse(publicEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL %q: %w", publicEndpoint, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("endpoint URL must use HTTP or HTTPS scheme, got %q", u.Scheme)
	}

	cfg := &newConfig{
		logger:       slog.Default(),
		realm:        dev.Name(),
		sessionTTL:   defaultSessionTTL,
		maxCapacity:  defaultMaxCapacity,
		reapInterval: defaultReapInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	keys, err := sessiontoken.NewFromSeed(cfg.sessionKey)
	if err != nil {
		return nil, err
	}

	h := &Handler{
		log:         slog.New(logctx.Handler{Handler: cfg.logger.Handler()}),
		url:         u,
		dev:         dev,
		host:        host,
		keys:        keys,
		bus:         cfg.broker,
		auth:        cfg.authenticator,
		realm:       cfg.realm,
		ttl:         cfg.sessionTTL,
		maxCapacity: cfg.maxCapacity,
		cache:       make(map[string]*symstream.Session),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("POST %s", pathOnly(u)), h.handlePost)
	mux.HandleFunc(fmt.Sprintf("GET %s", pathOnly(u)), h.handleGet)
	mux.HandleFunc(fmt.Sprintf("DELETE %s", pathOnly(u)), h.handleDelete)
	if h.auth != nil && len(cfg.authServers) > 0 {
		md := wellknown.NewProtectedResourceMetadata(u, dev.Name(), cfg.authServers, cfg.scopes)
		mdURL := wellknown.MetadataURL(u)
		h.prm = &md
		h.prmURL = mdURL.String()
		mux.HandleFunc(fmt.Sprintf("GET %s", mdURL.Path), h.handleGetProtectedResourceMetadata)
	}
	h.mux = mux

	if h.bus != nil {
		revocations, err := h.bus.Subscribe(ctx, h.revocationTopic())
		if err != nil {
			return nil, fmt.Errorf("subscribe to session revocations: %w", err)
		}
		go h.watchRevocations(ctx, revocations)
	}

	go h.reap(ctx, cfg.reapInterval)

	return h, nil
}

// pathOnly returns just the URL path or "/" if empty.
func pathOnly(u *url.URL) string {
	if u == nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

type openResponse struct {
	Session string `json:"session"`
	Device  string `json:"device"`
	Symbol  string `json:"symbol"`
	Width   int    `json:"width"`
	Mode    string `json:"mode"`
	Supply  uint64 `json:"supply,omitempty"`
}

// handlePost opens a session and hands the client a signed session handle.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	userID, ok := h.checkAuthentication(ctx, r, w)
	if !ok {
		return
	}

	if h.dev.Perm()&0o444 == 0 {
		h.log.WarnContext(ctx, "http.open.denied", slog.String("perm", h.dev.Perm().String()))
		writeJSONError(w, http.StatusForbidden, "device is not readable")
		return
	}

	sess, err := h.dev.Open(ctx)
	if err != nil {
		h.log.ErrorContext(ctx, "http.open.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID(), UserID: userID, Device: h.dev.Name(), Mode: h.dev.Mode().String()})

	meta := &sessions.SessionMetadata{
		SessionID: sess.ID(),
		UserID:    userID,
		Device:    h.dev.Name(),
		Mode:      h.dev.Mode().String(),
		TTL:       h.ttl,
	}
	if err := h.host.CreateSession(ctx, meta); err != nil {
		h.log.ErrorContext(ctx, "http.open.persist.fail", slog.String("err", err.Error()))
		if cerr := sess.Close(ctx); cerr != nil {
			h.log.ErrorContext(ctx, "http.open.rollback.fail", slog.String("err", cerr.Error()))
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to persist session")
		return
	}

	tok, err := h.keys.Issue(sessiontoken.Claims{SessionID: sess.ID(), UserID: userID, Device: h.dev.Name()})
	if err != nil {
		h.log.ErrorContext(ctx, "http.open.sign.fail", slog.String("err", err.Error()))
		h.discard(ctx, sess)
		writeJSONError(w, http.StatusInternalServerError, "failed to issue session handle")
		return
	}

	if !h.remember(sess) {
		h.discard(ctx, sess)
		writeJSONError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}

	res := openResponse{
		Session: tok,
		Device:  h.dev.Name(),
		Symbol:  h.dev.Symbol().String(),
		Width:   h.dev.Symbol().Width(),
		Mode:    h.dev.Mode().String(),
	}
	if h.dev.Mode().Bounded() {
		res.Supply = h.dev.InitialSupply()
	}

	w.Header().Set(SessionHeader, tok)
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		h.log.WarnContext(ctx, "http.open.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "http.open.ok", slog.Duration("dur", time.Since(start)))
}

// handleGet serves exactly one read at the offset and capacity the client
// submits.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	userID, ok := h.checkAuthentication(ctx, r, w)
	if !ok {
		return
	}

	mt, _, err := contenttype.GetAcceptableMediaType(r, streamMediaType)
	if err != nil {
		h.log.WarnContext(ctx, "http.read.unacceptable", slog.String("accept", r.Header.Get("Accept")))
		writeJSONError(w, http.StatusNotAcceptable, "acceptable media types: application/octet-stream, text/plain")
		return
	}

	offset, capacity, err := h.parseReadParams(r.URL.Query())
	if err != nil {
		h.log.InfoContext(ctx, "http.read.bad_request", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, sess, ok := h.loadSession(ctx, w, r, userID)
	if !ok {
		return
	}

	buf := make([]byte, capacity)
	n, err := sess.ReadOffset(ctx, buf, offset)
	if err != nil {
		switch {
		case errors.Is(err, symstream.ErrOffsetOverflow):
			writeJSONError(w, http.StatusRequestedRangeNotSatisfiable, err.Error())
		case errors.Is(err, symstream.ErrInvalidCapacity):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, symstream.ErrSessionClosed):
			writeJSONError(w, http.StatusNotFound, ErrInvalidSession.Error())
		default:
			writeJSONError(w, http.StatusInternalServerError, "read failed")
		}
		h.log.ErrorContext(ctx, "http.read.fail", slog.String("err", err.Error()))
		return
	}

	if err := h.host.TouchSession(ctx, sess.ID()); err != nil {
		h.log.WarnContext(ctx, "http.read.touch.fail", slog.String("err", err.Error()))
	}

	switch {
	case mt.Subtype != textMediaType.Subtype:
		w.Header().Set("Content-Type", octetMediaType.String())
	case utf8.Valid(buf[:n]):
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	default:
		// A straddled or non-UTF-8 symbol; claim no charset.
		w.Header().Set("Content-Type", textMediaType.String())
	}
	w.Header().Set(NextOffsetHeader, strconv.FormatUint(offset+uint64(n), 10))
	w.Header().Set("Content-Length", strconv.Itoa(n))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf[:n]); err != nil {
		h.log.WarnContext(ctx, "http.read.write.fail", slog.String("err", err.Error()))
		return
	}

	if n == 0 && capacity > 0 {
		h.log.InfoContext(ctx, "http.read.eof", slog.Uint64("offset", offset))
		return
	}
	h.log.DebugContext(ctx, "http.read.ok",
		slog.Uint64("offset", offset),
		slog.Int("capacity", capacity),
		slog.Int("n", n),
		slog.Duration("dur", time.Since(start)),
	)
}

// handleGetProtectedResourceMetadata serves the document built at
// construction time.
func (h *Handler) handleGetProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	if err := json.NewEncoder(w).Encode(h.prm); err != nil {
		h.log.WarnContext(r.Context(), "http.prm.write.fail", slog.String("err", err.Error()))
	}
}

// handleDelete terminates a session. The supply is released on this node;
// other nodes drop their cached handle on the next read or reap.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.checkAuthentication(ctx, r, w)
	if !ok {
		return
	}

	ctx, sess, ok := h.loadSession(ctx, w, r, userID)
	if !ok {
		return
	}

	if err := h.host.DeleteSession(ctx, sess.ID()); err != nil && !errors.Is(err, sessions.ErrSessionNotFound) {
		h.log.ErrorContext(ctx, "http.delete.host.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	h.forget(sess.ID())
	if err := sess.Close(ctx); err != nil && !errors.Is(err, symstream.ErrSessionClosed) {
		h.log.ErrorContext(ctx, "http.delete.close.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to release session supply")
		return
	}
	h.publishRevocation(ctx, sess.ID())

	w.WriteHeader(http.StatusNoContent)
	h.log.InfoContext(ctx, "http.delete.ok")
}

func (h *Handler) parseReadParams(q url.Values) (uint64, int, error) {
	var offset uint64
	if v := q.Get("offset"); v != "" {
		o, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid offset %q", v)
		}
		offset = o
	}

	v := q.Get("capacity")
	if v == "" {
		return 0, 0, errors.New("capacity is required")
	}
	capacity, err := strconv.Atoi(v)
	if err != nil || capacity < 0 {
		return 0, 0, fmt.Errorf("invalid capacity %q", v)
	}
	if capacity > h.maxCapacity {
		capacity = h.maxCapacity
	}
	return offset, capacity, nil
}

// loadSession resolves the session handle on r into a live session owned by
// userID. On failure a response has been written.
func (h *Handler) loadSession(ctx context.Context, w http.ResponseWriter, r *http.Request, userID string) (context.Context, *symstream.Session, bool) {
	tok := r.Header.Get(SessionHeader)
	if tok == "" {
		h.log.InfoContext(ctx, "session.id.missing")
		writeJSONError(w, http.StatusBadRequest, ErrSessionHeaderMissing.Error())
		return ctx, nil, false
	}

	claims, err := h.keys.Parse(tok)
	if err != nil {
		h.log.InfoContext(ctx, "session.handle.invalid", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusNotFound, ErrInvalidSession.Error())
		return ctx, nil, false
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: claims.SessionID, UserID: userID, Device: h.dev.Name(), Mode: h.dev.Mode().String()})

	if claims.Device != h.dev.Name() || claims.UserID != userID {
		h.log.WarnContext(ctx, "session.handle.foreign", slog.String("handle_user", claims.UserID), slog.String("handle_device", claims.Device))
		writeJSONError(w, http.StatusNotFound, ErrInvalidSession.Error())
		return ctx, nil, false
	}

	meta, err := h.host.GetSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			h.log.InfoContext(ctx, "session.load.miss")
			h.evict(ctx, claims.SessionID)
			writeJSONError(w, http.StatusNotFound, ErrInvalidSession.Error())
			return ctx, nil, false
		}
		h.log.ErrorContext(ctx, "session.load.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to load session")
		return ctx, nil, false
	}
	if meta.UserID != userID || meta.Device != h.dev.Name() {
		h.log.WarnContext(ctx, "session.owner.mismatch")
		writeJSONError(w, http.StatusNotFound, ErrInvalidSession.Error())
		return ctx, nil, false
	}

	sess, err := h.session(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, symstream.ErrSessionNotFound) {
			h.log.InfoContext(ctx, "session.supply.miss")
			writeJSONError(w, http.StatusNotFound, ErrInvalidSession.Error())
			return ctx, nil, false
		}
		h.log.ErrorContext(ctx, "session.resume.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to resume session")
		return ctx, nil, false
	}
	return ctx, sess, true
}

// session returns the cached session for id, resuming it from the supply
// store when this process has not seen it yet.
func (h *Handler) session(ctx context.Context, id string) (*symstream.Session, error) {
	h.mu.Lock()
	sess, ok := h.cache[id]
	h.mu.Unlock()
	if ok {
		return sess, nil
	}

	resumed, err := h.dev.Resume(ctx, id)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if existing, ok := h.cache[id]; ok {
		h.mu.Unlock()
		_ = resumed.Detach(ctx)
		return existing, nil
	}
	if h.closed {
		h.mu.Unlock()
		_ = resumed.Detach(ctx)
		return nil, symstream.ErrDeviceClosed
	}
	h.cache[id] = resumed
	h.mu.Unlock()
	return resumed, nil
}

func (h *Handler) remember(sess *symstream.Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.cache[sess.ID()] = sess
	return true
}

func (h *Handler) forget(id string) *symstream.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess := h.cache[id]
	delete(h.cache, id)
	return sess
}

// evict closes a cached session whose metadata is gone.
func (h *Handler) evict(ctx context.Context, id string) {
	sess := h.forget(id)
	if sess == nil {
		return
	}
	if err := sess.Close(ctx); err != nil && !errors.Is(err, symstream.ErrSessionClosed) {
		h.log.WarnContext(ctx, "session.evict.fail", slog.String("err", err.Error()))
	}
}

// discard rolls back a freshly opened session.
func (h *Handler) discard(ctx context.Context, sess *symstream.Session) {
	if err := h.host.DeleteSession(ctx, sess.ID()); err != nil && !errors.Is(err, sessions.ErrSessionNotFound) {
		h.log.ErrorContext(ctx, "http.open.rollback.fail", slog.String("err", err.Error()))
	}
	if err := sess.Close(ctx); err != nil {
		h.log.ErrorContext(ctx, "http.open.rollback.fail", slog.String("err", err.Error()))
	}
}

// reap periodically closes cached sessions that expired in the host and
// detaches everything once ctx is done.
func (h *Handler) reap(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.detachAll(context.WithoutCancel(ctx))
			return
		case <-t.C:
			h.reapOnce(ctx)
		}
	}
}

func (h *Handler) reapOnce(ctx context.Context) {
	h.mu.Lock()
	ids := make([]string, 0, len(h.cache))
	for id := range h.cache {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		_, err := h.host.GetSession(ctx, id)
		switch {
		case errors.Is(err, sessions.ErrSessionNotFound):
			h.log.InfoContext(ctx, "session.reap.expired", slog.String("session", id))
			h.evict(ctx, id)
		case err != nil:
			h.log.WarnContext(ctx, "session.reap.fail", slog.String("session", id), slog.String("err", err.Error()))
		}
	}
}

func (h *Handler) revocationTopic() string {
	return "revoked:" + h.dev.Name()
}

func (h *Handler) publishRevocation(ctx context.Context, id string) {
	if h.bus == nil {
		return
	}
	if _, err := h.bus.Publish(ctx, h.revocationTopic(), []byte(id)); err != nil {
		h.log.WarnContext(ctx, "session.revoke.publish.fail", slog.String("err", err.Error()))
	}
}

// watchRevocations evicts sessions deleted on other nodes until ctx is done.
func (h *Handler) watchRevocations(ctx context.Context, s broker.Stream) {
	defer s.Close()
	for {
		env, err := s.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, broker.ErrClosed) {
				return
			}
			h.log.WarnContext(ctx, "session.revoke.watch.fail", slog.String("err", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		id := string(env.Data)
		if h.cached(id) {
			h.log.InfoContext(ctx, "session.revoke.ok", slog.String("session", id))
			h.evict(ctx, id)
		}
	}
}

func (h *Handler) cached(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.cache[id]
	return ok
}

func (h *Handler) detachAll(ctx context.Context) {
	h.mu.Lock()
	h.closed = true
	cached := h.cache
	h.cache = make(map[string]*symstream.Session)
	h.mu.Unlock()

	for _, sess := range cached {
		if err := sess.Detach(ctx); err != nil && !errors.Is(err, symstream.ErrSessionClosed) {
			h.log.WarnContext(ctx, "session.detach.fail", slog.String("session", sess.ID()), slog.String("err", err.Error()))
		}
	}
}

// checkAuthentication resolves the caller's user id. On failure a challenge
// has been written.
func (h *Handler) checkAuthentication(ctx context.Context, r *http.Request, w http.ResponseWriter) (string, bool) {
	if h.auth == nil {
		return anonymousUser, true
	}

	authHeader := r.Header.Get(authorizationHeader)
	if authHeader == "" {
		h.log.InfoContext(ctx, "auth.check.missing", slog.String("err", "no authorization header"))
		h.writeChallenge(w, auth.NewAuthenticationRequired(h.realm), "authentication required")
		return "", false
	}

	const bearerPrefix = "Bearer "
	if len(authHeader) <= len(bearerPrefix) || !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		h.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "malformed bearer authorization header"))
		h.writeChallenge(w, auth.NewInvalidAuthorizationHeader(h.realm), "malformed bearer authorization header")
		return "", false
	}
	tok := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if tok == "" {
		h.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "empty bearer token"))
		h.writeChallenge(w, auth.NewInvalidAuthorizationHeader(h.realm), "empty bearer token")
		return "", false
	}

	userInfo, err := h.auth.CheckAuthentication(ctx, tok)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) || errors.Is(err, auth.ErrInsufficientScope) {
			h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
			c := auth.ChallengeFor(h.realm, err)
			h.writeChallenge(w, c, http.StatusText(c.Status))
			return "", false
		}
		h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "authentication failed")
		return "", false
	}
	return userInfo.UserID(), true
}

func (h *Handler) writeChallenge(w http.ResponseWriter, c auth.Challenge, msg string) {
	c = c.WithResourceMetadata(h.prmURL)
	w.Header().Add(wwwAuthenticateHeader, c.WWWAuthenticate)
	writeJSONError(w, c.Status, msg)
}
