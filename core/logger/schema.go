package logger

// defaultKeyOrder puts correlation fields first, then the webhook and
// conversation fields, then the outbound send fields. Keys not listed follow
// in alphabetical order.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"sender",
	"message_sid",
	"handler",
	"method",
	"path",
	"http_code",
	"stage",
	"next_stage",
	"outcome",
	"duration_ms",
	"question",
	"answer",
	"job_id",
	"action",
	"to",
	"elapsed_ms",
	"err_kind",
	"err",
	"cause",
	"listen",
	"store",
	"db",
	"host",
	"port",
}

// labelKeys hold short enumerations; their values are written in lower case.
var labelKeys = map[string]struct{}{
	"status":   {},
	"outcome":  {},
	"err_kind": {},
}

func keyRanks(order []string) map[string]int {
	ranks := make(map[string]int, len(order))
	for i, k := range order {
		if _, dup := ranks[k]; !dup {
			ranks[k] = i
		}
	}
	return ranks
}
