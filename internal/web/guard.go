package web

import (
	"context"
	"net/http"

	"github.com/fiturae/fiturae/internal/middleware"
	"github.com/fiturae/fiturae/internal/session"
)

// LoginPath はログイン画面のパス。未ログインの利用者はここへリダイレクトされる。
const LoginPath = "/login"

// Outcome はガードの判定結果。
type Outcome int

const (
	// RenderNothing は照会の結果待ち。何も描画しない。
	RenderNothing Outcome = iota
	// RenderProtected は保護された画面をidentity付きで描画する。
	RenderProtected
	// RedirectToLogin はログイン画面へリダイレクトする。
	RedirectToLogin
)

// Decision はセッション状態に対するガードの判定。
type Decision struct {
	Outcome  Outcome
	Identity *session.Identity
}

// Decide はセッション状態から描画内容を決める。
// 照会失敗は未ログインと同じ扱いで、ログイン画面へ誘導する。
func Decide(snap session.Snapshot) Decision {
	switch {
	case snap.Loading():
		return Decision{Outcome: RenderNothing}
	case snap.Identity != nil:
		return Decision{Outcome: RenderProtected, Identity: snap.Identity}
	default:
		return Decision{Outcome: RedirectToLogin}
	}
}

// Viewer は保護された画面に渡される利用者情報とログアウトのコールバック。
type Viewer struct {
	Identity session.Identity
	store    *session.Store
}

// Logout はセッションを Loading に戻し、identityの照会を1回だけやり直させる。
func (v *Viewer) Logout() {
	v.store.Logout()
}

// Redecide はセッションの最新の状態でガードの判定をやり直す。
func (v *Viewer) Redecide(ctx context.Context) Decision {
	return Decide(v.store.Resolve(ctx))
}

type viewerContextKey struct{}

// ViewerFromContext はガードが設定したViewerを返す。ガードの外ではnilを返す。
func ViewerFromContext(ctx context.Context) *Viewer {
	v, _ := ctx.Value(viewerContextKey{}).(*Viewer)
	return v
}

// ContextWithViewer はViewerをcontextに設定する。
func ContextWithViewer(ctx context.Context, v *Viewer) context.Context {
	return context.WithValue(ctx, viewerContextKey{}, v)
}

// LookupFactory はリクエストごとにidentity照会の手段を返す。
type LookupFactory func(r *http.Request) session.Lookup

// NewGuard はリクエストごとにセッションストアを作り、判定に応じて
// 何も描画しない・保護された画面を描画する・ログイン画面へリダイレクトする、のいずれかを行う。
func NewGuard(lookups LookupFactory, opts session.Options) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := session.NewStore(lookups(r), opts)
			defer store.Close()

			decision := Decide(store.Resolve(r.Context()))
			if decision.Outcome != RenderProtected {
				writeDecision(w, r, decision)
				return
			}

			viewer := &Viewer{Identity: *decision.Identity, store: store}
			ctx := middleware.ContextWithUserID(ContextWithViewer(r.Context(), viewer), viewer.Identity.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeDecision は保護された画面以外の判定結果を書き込む。
// 保護された画面の判定は/homeへのリダイレクトとして扱う。
func writeDecision(w http.ResponseWriter, r *http.Request, d Decision) {
	switch d.Outcome {
	case RenderNothing:
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
	case RedirectToLogin:
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
	default:
		http.Redirect(w, r, HomePath, http.StatusSeeOther)
	}
}
