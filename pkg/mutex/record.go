package mutex

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// one lock record value
// on disk it is the decimal form of seconds * 10^10, which is unix nanos
// followed by one extra digit; that digit is random and breaks ties between
// claims written in the same nanosecond
type stamp struct {
	nanos int64
	tie   uint8
}

func newStamp(now time.Time) stamp {
	return stamp{
		nanos: now.UnixNano(),
		tie:   uint8(rand.Intn(10)),
	}
}

func (s stamp) String() string {
	return strconv.FormatInt(s.nanos, 10) + strconv.Itoa(int(s.tie))
}

func (s stamp) Time() time.Time {
	return time.Unix(0, s.nanos)
}

// parses a record, ok is false for anything that is not a valid stamp
func parseStamp(raw string) (stamp, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 {
		return stamp{}, false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return stamp{}, false
		}
	}

	nanos, err := strconv.ParseInt(raw[:len(raw)-1], 10, 64)
	if err != nil {
		return stamp{}, false
	}

	return stamp{
		nanos: nanos,
		tie:   raw[len(raw)-1] - '0',
	}, true
}
