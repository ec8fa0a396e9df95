package common

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
)

const (
	ENABLED  = "enabled"
	DISABLED = "disabled"
)

var (
	idNode     *snowflake.Node
	idNodeOnce sync.Once
)

// UUIDint64 returns a cluster-unique int64 identifier.
func UUIDint64() int64 {
	idNodeOnce.Do(func() {
		var err error
		idNode, err = snowflake.NewNode(1)
		if err != nil {
			panic(err)
		}
	})
	return idNode.Generate().Int64()
}

// GetSecretSalt returns the password salt, overridable via environment.
func GetSecretSalt() string {
	if v := os.Getenv("CHATGATE_SECRET_SALT"); v != "" {
		return v
	}
	return "chatgate-0x9e8f"
}

// Sha256HashWithSalt hashes src with the given salt.
func Sha256HashWithSalt(src string, salt string) string {
	h := sha256.New()
	h.Write([]byte(src + salt))
	return hex.EncodeToString(h.Sum(nil))
}

// IsEmptyOrNA reports whether the value is blank or a bare placeholder.
func IsEmptyOrNA(val string) bool {
	v := strings.TrimSpace(val)
	return v == "" || v == "-" || strings.EqualFold(v, "n/a") || strings.EqualFold(v, "unknown")
}
