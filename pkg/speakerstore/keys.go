package speakerstore

import (
	"fmt"
	"strconv"

	"github.com/haivivi/automuter/pkg/kv"
)

// Key layout, one logical database per user:
//
//	u:{user}:meta                       → schema version
//	u:{user}:seq                        → id counter (speakers and sources)
//	u:{user}:spk:{id}                   → msgpack Speaker
//	u:{user}:name:{name}                → speaker id
//	u:{user}:src:{speaker id}:{src id}  → msgpack Source
//
// IDs are zero-padded to 10 digits so lexicographic order is insertion
// order.

func userPrefix(user string) kv.Key { return kv.Key{"u", user} }

func metaKey(user string) kv.Key { return userPrefix(user).Append("meta") }

func seqKey(user string) kv.Key { return userPrefix(user).Append("seq") }

func speakerPrefix(user string) kv.Key { return userPrefix(user).Append("spk") }

func speakerKey(user string, id uint64) kv.Key {
	return speakerPrefix(user).Append(formatID(id))
}

func nameKey(user, name string) kv.Key { return userPrefix(user).Append("name", name) }

func sourcePrefix(user string) kv.Key { return userPrefix(user).Append("src") }

func speakerSourcePrefix(user string, speakerID uint64) kv.Key {
	return sourcePrefix(user).Append(formatID(speakerID))
}

func sourceKey(user string, speakerID, sourceID uint64) kv.Key {
	return speakerSourcePrefix(user, speakerID).Append(formatID(sourceID))
}

func formatID(id uint64) string { return fmt.Sprintf("%010d", id) }

func parseID(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) }
