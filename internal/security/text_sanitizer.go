// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はワークアウト名・説明・種目名などの自由入力テキストから
// HTMLマークアップを取り除く。保存される値は常にプレーンテキストで、
// 表示時のエスケープはテンプレート側が行う。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は自由入力テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizerService interface {
	// Sanitize はタグと属性を全て除去し、前後の空白を取り除いたプレーンテキストを返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// maxSanitizePasses は多重にエンコードされた入力を展開する回数の上限。
const maxSanitizePasses = 8

// Sanitize はタグを除去したプレーンテキストを返す。
// 文字実体参照で書かれたマークアップも展開してから除去し、結果が変わらなくなるまで繰り返す。
// 上限回数で収束しない場合はエスケープしたままのテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	cur := raw
	for range maxSanitizePasses {
		next := html.UnescapeString(s.policy.Sanitize(html.UnescapeString(cur)))
		if next == cur {
			return strings.TrimSpace(cur)
		}
		cur = next
	}
	return strings.TrimSpace(s.policy.Sanitize(cur))
}
