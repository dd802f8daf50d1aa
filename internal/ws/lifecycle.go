package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"messaging-service/internal/access"
	"messaging-service/internal/auth"
	"messaging-service/internal/errs"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/telemetry"
)

// MessageService is the message lifecycle the commands drive.
type MessageService interface {
	SendMessage(ctx context.Context, chatID, senderID, content string) (models.Message, models.Chat, error)
	EditMessage(ctx context.Context, messageID, senderID, content string) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID, senderID string) (models.Message, error)
	MarkRead(ctx context.Context, chatID, readerID string) ([]models.Message, models.Chat, error)
	InboxRow(ctx context.Context, userID, chatID string) (models.InboxRow, error)
	ChatIDsOf(ctx context.Context, userID string) ([]string, error)
}

// ChatAccess authorizes chat level commands and room joins.
type ChatAccess interface {
	RoomAccess
	CanAccessChat(ctx context.Context, userID, chatID string) (models.Chat, access.Denial, error)
}

type Deps struct {
	Verifier   auth.Verifier
	Store      MessageService
	Access     ChatAccess
	Presence   *presence.Registry
	Hub        *Hub
	Dispatcher *Dispatcher
	Audit      *telemetry.AuditEmitter
	Logger     *zap.Logger
}

type Options struct {
	// MaxInflight bounds concurrently running commands per connection.
	MaxInflight int
}

// Lifecycle authenticates connections, tracks their presence and runs their
// commands.
type Lifecycle struct {
	Deps
	opts     Options
	validate *validator.Validate
	commands map[string]command

	// announceMu orders presence broadcasts against the registry state
	// they describe.
	announceMu sync.Mutex
}

func NewLifecycle(deps Deps, opts Options) *Lifecycle {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 8
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.Named("ws")
	l := &Lifecycle{Deps: deps, opts: opts, validate: newValidator()}
	l.commands = l.commandTable()
	return l
}

// Authenticate verifies the handshake credential. No state is kept for a
// rejected handshake.
func (l *Lifecycle) Authenticate(ctx context.Context, r *http.Request) (auth.Identity, auth.Source, error) {
	token, source, ok := auth.ExtractCredential(r)
	if !ok {
		return auth.Identity{}, "", errs.Unauthenticated("missing credential")
	}
	identity, err := l.Verifier.Verify(ctx, token)
	if err != nil {
		return auth.Identity{}, source, errs.Unauthenticated("invalid token")
	}
	return identity, source, nil
}

// announce broadcasts the user's presence to the rooms of their chats. The
// chat lookup hits storage, so the registry may change meanwhile; current
// is re-checked under announceMu and a stale announcement is dropped.
func (l *Lifecycle) announce(ctx context.Context, userID string, current func() bool, online bool) {
	chatIDs, err := l.Store.ChatIDsOf(ctx, userID)
	if err != nil {
		l.Logger.Warn("could not list chats for presence", zap.String("user_id", userID), zap.Error(err))
		return
	}

	l.announceMu.Lock()
	defer l.announceMu.Unlock()
	if !current() {
		l.Logger.Debug("presence changed during lookup, skipping announcement",
			zap.String("user_id", userID), zap.Bool("online", online))
		return
	}
	l.Dispatcher.BroadcastPresence(userID, online, chatIDs)
}

type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unauthenticated"
	}
}

// Session is one authenticated connection.
type Session struct {
	l        *Lifecycle
	conn     Conn
	info     ConnInfo
	ctx      context.Context
	state    atomic.Int32
	sem      chan struct{}
	inflight sync.WaitGroup

	seq        atomic.Uint64
	typingMu   sync.Mutex
	lastTyping uint64
}

// Open registers an authenticated connection and announces the user to the
// rooms of their chats. Commands run on a context detached from ctx so a
// disconnect never cancels a write in progress.
func (l *Lifecycle) Open(ctx context.Context, conn Conn, info ConnInfo) *Session {
	base := telemetry.WithRequestID(context.WithoutCancel(ctx), info.RequestID)
	s := &Session{
		l:    l,
		conn: conn,
		info: info,
		ctx:  base,
		sem:  make(chan struct{}, l.opts.MaxInflight),
	}
	s.state.Store(int32(StateAuthenticated))

	l.Hub.Add(conn)
	cameOnline := l.Presence.Register(info.UserID, conn.ID())
	observability.IncWSActive()
	observability.IncWSEvent("in", telemetry.EventWSConnect)
	observability.SetOnlineUsers(len(l.Presence.OnlineUserIDs()))

	l.announce(base, info.UserID, func() bool { return l.Presence.Has(info.UserID, conn.ID()) }, true)

	l.Logger.Info("connection opened",
		zap.String("conn_id", conn.ID()),
		zap.String("user_id", info.UserID),
		zap.Bool("came_online", cameOnline),
		zap.String("credential", string(info.Source)),
	)
	l.Audit.EmitEvent(base, telemetry.EventWSConnect, info.UserID, info.auditPayload(telemetry.EventWSConnect, ""))
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) UserID() string {
	return s.info.UserID
}

func (s *Session) ConnID() string {
	return s.conn.ID()
}

// Handle decodes one frame and runs its command in its own goroutine.
// It blocks while MaxInflight commands are already running.
func (s *Session) Handle(raw []byte) {
	if s.State() != StateAuthenticated {
		return
	}

	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil || in.Event == "" {
		s.reply(failure("", errs.Invalid("malformed frame")))
		return
	}

	in.seq = s.seq.Add(1)

	s.sem <- struct{}{}
	s.inflight.Add(1)
	go func() {
		defer func() {
			<-s.sem
			s.inflight.Done()
		}()
		s.execute(in)
	}()
}

// relayTyping runs deliver unless a typing frame that arrived later on this
// connection has already been relayed. Commands run concurrently, so
// without this a sendTyping could land after the sendStopTyping behind it.
func (s *Session) relayTyping(seq uint64, deliver func()) {
	s.typingMu.Lock()
	defer s.typingMu.Unlock()
	if seq <= s.lastTyping {
		return
	}
	s.lastTyping = seq
	deliver()
}

// Wait blocks until every running command has finished.
func (s *Session) Wait() {
	s.inflight.Wait()
}

func (s *Session) execute(in Inbound) {
	observability.IncWSEvent("in", in.Event)

	cmd, ok := s.l.commands[in.Event]
	if !ok {
		s.fail(in, errs.Invalid("unknown event "+in.Event))
		return
	}

	ctx, span := otel.Tracer("messaging-service/ws").Start(s.ctx, "ws."+in.Event)
	span.SetAttributes(attribute.String("user.id", s.info.UserID), attribute.String("ws.conn_id", s.conn.ID()))
	defer span.End()

	data, err := cmd(ctx, s, in)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.fail(in, err)
		return
	}
	if data != nil || in.ID != "" {
		s.reply(ack(in, data))
	}
}

// fail answers with an error frame. The connection stays open.
func (s *Session) fail(in Inbound, err error) {
	kind := errs.KindOf(err)
	observability.IncWSCommandError(in.Event, string(kind))
	if kind == errs.KindInternal {
		s.l.Logger.Error("command failed",
			zap.String("event", in.Event),
			zap.String("conn_id", s.conn.ID()),
			zap.String("user_id", s.info.UserID),
			zap.Error(err),
		)
	}
	s.reply(failure(in.ID, err))
}

func (s *Session) reply(ev Outbound) {
	s.l.Dispatcher.Reply(s.conn, ev)
}

// Close unregisters the connection and, when it was the user's last one,
// announces the user as offline. Only the first call has an effect.
func (s *Session) Close(reason string) bool {
	if !s.state.CompareAndSwap(int32(StateAuthenticated), int32(StateClosed)) {
		return false
	}
	l := s.l

	l.Hub.Remove(s.conn.ID())
	wentOffline := l.Presence.Unregister(s.info.UserID, s.conn.ID())
	observability.DecWSActive()
	observability.IncWSEvent("in", telemetry.EventWSDisconnect)
	observability.SetOnlineUsers(len(l.Presence.OnlineUserIDs()))

	if wentOffline {
		l.announce(s.ctx, s.info.UserID, func() bool { return !l.Presence.IsOnline(s.info.UserID) }, false)
	}

	l.Logger.Info("connection closed",
		zap.String("conn_id", s.conn.ID()),
		zap.String("user_id", s.info.UserID),
		zap.Bool("went_offline", wentOffline),
		zap.String("reason", reason),
	)
	l.Audit.EmitEvent(s.ctx, telemetry.EventWSDisconnect, s.info.UserID, s.info.auditPayload(telemetry.EventWSDisconnect, reason))
	return true
}
