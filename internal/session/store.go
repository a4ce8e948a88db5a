// Package session はWeb UI側のログイン状態（セッション）を保持するストアを提供する。
//
// Storeは Loading → Authenticated / Unauthenticated の3状態のいずれか1つを常に持つ。
// identity照会は1エポックにつき1回だけ行い、ログアウトで Loading に戻すと
// 新しいエポックとして照会をやり直す。
package session

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/fiturae/fiturae/internal/metrics"
)

// State はセッションの状態を表す。
type State int

const (
	// Loading はidentity照会の結果待ち。identityはアクセス判定に使えない。
	Loading State = iota
	// Authenticated はidentity照会で利用者が特定できた状態。
	Authenticated
	// Unauthenticated は未ログイン、または照会に失敗した状態。
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Identity はログイン中の利用者を表す。GET /api/auth/me のレスポンスと同じ形。
type Identity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

// Snapshot はある時点のセッション状態。値としてコピーして渡す。
type Snapshot struct {
	State    State
	Identity *Identity
	// Err は照会が失敗した場合の原因。ガードの判定には使わず、診断用に保持する。
	Err error
}

// Loading は照会の結果待ちかを返す。
func (s Snapshot) Loading() bool {
	return s.State == Loading
}

// LookupFailed は照会自体が失敗して未認証扱いになったかを返す。
func (s Snapshot) LookupFailed() bool {
	return s.State == Unauthenticated && s.Err != nil
}

// Lookup はidentity照会のインターフェース。
// 未ログインの場合は nil, nil を返し、通信やサーバーの失敗はエラーを返す。
type Lookup interface {
	Me(ctx context.Context) (*Identity, error)
}

// LookupFunc は関数をLookupとして扱うためのアダプター。
type LookupFunc func(ctx context.Context) (*Identity, error)

// Me はf(ctx)を呼び出す。
func (f LookupFunc) Me(ctx context.Context) (*Identity, error) {
	return f(ctx)
}

// Options はStoreの任意設定。
type Options struct {
	Metrics metrics.MetricsCollector
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

// Store はセッション状態の唯一の所有者。
// 状態の変更は照会結果の反映とLogoutからのみ行われる。
type Store struct {
	lookup  Lookup
	metrics metrics.MetricsCollector
	clock   clockwork.Clock
	logger  *slog.Logger

	// ctx はStoreの生存期間。Closeでキャンセルし、実行中の照会を中断する。
	ctx    context.Context
	cancel context.CancelFunc

	group singleflight.Group

	mu     sync.Mutex
	snap   Snapshot
	epoch  uint64
	closed bool
}

// NewStore は Loading 状態のStoreを生成する。照会はResolveかLogoutで始まる。
func NewStore(lookup Lookup, opts Options) *Store {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		lookup:  lookup,
		metrics: opts.Metrics,
		clock:   opts.Clock,
		logger:  opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
		snap:    Snapshot{State: Loading},
	}
}

// Snapshot は現在の状態を返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Resolve は現在のエポックの照会結果を待って返す。
// 照会済みなら照会せずにそのまま返し、照会中なら実行中の照会に相乗りする。
// ctxが先に終了した場合は待つのをやめ、その時点の（Loadingの）状態を返す。
func (s *Store) Resolve(ctx context.Context) Snapshot {
	s.mu.Lock()
	if s.closed || s.snap.State != Loading {
		snap := s.snap
		s.mu.Unlock()
		return snap
	}
	epoch := s.epoch
	s.mu.Unlock()
	return s.await(ctx, epoch)
}

// await はepochの照会結果を待つ。待っている間にLogoutで次のエポックへ
// 進んでいた場合は、そのエポックの照会に相乗りし直す。
func (s *Store) await(ctx context.Context, epoch uint64) Snapshot {
	for {
		select {
		case res := <-s.start(epoch):
			if snap := res.Val.(Snapshot); !snap.Loading() {
				return snap
			}
		case <-ctx.Done():
			return s.Snapshot()
		}

		s.mu.Lock()
		if s.closed || s.snap.State != Loading {
			snap := s.snap
			s.mu.Unlock()
			return snap
		}
		epoch = s.epoch
		s.mu.Unlock()
	}
}

// Logout は状態を Loading に戻し、新しいエポックの照会を1回だけ開始する。
// すでに Loading の場合やClose後は何もしない。
func (s *Store) Logout() {
	s.mu.Lock()
	if s.closed || s.snap.State == Loading {
		s.mu.Unlock()
		return
	}
	s.epoch++
	epoch := s.epoch
	s.snap = Snapshot{State: Loading}
	s.mu.Unlock()

	s.logger.Debug("session reset by logout", slog.Uint64("epoch", epoch))
	s.start(epoch)
}

// Close は実行中の照会をキャンセルし、以後に届いた結果を破棄する。
// 解決済みのStoreに対しては何も起きない。複数回呼んでもよい。
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

// start はエポックごとに1回だけ照会を走らせる。
func (s *Store) start(epoch uint64) <-chan singleflight.Result {
	return s.group.DoChan(strconv.FormatUint(epoch, 10), func() (any, error) {
		return s.resolve(epoch), nil
	})
}

func (s *Store) resolve(epoch uint64) Snapshot {
	s.mu.Lock()
	if s.closed || s.epoch != epoch || s.snap.State != Loading {
		snap := s.snap
		s.mu.Unlock()
		return snap
	}
	s.mu.Unlock()

	started := s.clock.Now()
	identity, err := s.lookup.Me(s.ctx)
	elapsed := s.clock.Since(started)

	next := Snapshot{State: Unauthenticated, Err: err}
	outcome := metrics.OutcomeUnauthenticated
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailed
	case identity != nil && identity.ID != "":
		next = Snapshot{State: Authenticated, Identity: identity}
		outcome = metrics.OutcomeAuthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.epoch != epoch {
		s.logger.Debug("discarding stale identity lookup result",
			slog.Uint64("epoch", epoch),
			slog.Bool("closed", s.closed),
		)
		return s.snap
	}
	s.snap = next
	s.metrics.RecordSessionResolution(outcome, elapsed)

	if err != nil {
		s.logger.Warn("identity lookup failed, treating as unauthenticated",
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Debug("session resolved", slog.String("state", next.State.String()))
	}
	return next
}
