package repository

import "github.com/google/uuid"

// isUUID はidがUUIDとして解釈できるかを返す。
// uuid型のカラムに不正な文字列を渡すとPostgreSQLがエラーを返すため、
// クエリ前に弾いて「見つからない」として扱う。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
