package conversation

import (
	"strconv"
	"strings"
	"time"
)

// Clock returns the current instant.
type Clock func() time.Time

// stampSource hands out the numeric stamps used to build folder and
// conversation ids. Stamps follow the wall clock in milliseconds but never
// repeat, even when the clock stalls or steps back.
type stampSource struct {
	clock Clock
	last  int64
}

func (s *stampSource) now() time.Time {
	return s.clock().UTC().Truncate(time.Millisecond)
}

func (s *stampSource) next(t time.Time) int64 {
	ms := t.UnixMilli()
	if ms <= s.last {
		ms = s.last + 1
	}
	s.last = ms
	return ms
}

// observe advances the source past the stamp embedded in a loaded id.
func (s *stampSource) observe(id string) {
	if i := strings.LastIndexByte(id, '-'); i >= 0 {
		id = id[i+1:]
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return
	}
	if n > s.last {
		s.last = n
	}
}

func (s *stampSource) observeSnapshot(snap Snapshot) {
	for _, f := range snap.Folders {
		s.observe(f.ID)
		for _, c := range f.Conversations {
			s.observe(c.ID)
		}
	}
}

func folderID(stamp int64) string {
	return strconv.FormatInt(stamp, 10)
}

func conversationID(folderID string, stamp int64) string {
	return folderID + "-" + strconv.FormatInt(stamp, 10)
}
