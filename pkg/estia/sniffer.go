package estia

// Sniffer reconstructs frames from a streaming byte sequence. rx holds
// bytes read from the wire but not yet claimed by a candidate frame;
// cur is the in-progress candidate. Bytes arrive via Feed; Split then
// advances the reassembly. Split never performs I/O itself; the caller
// (Engine.runSniffer) owns reading from the UART and feeding the result in.
type Sniffer struct {
	rx    []byte
	cur   []byte
	done  [][]byte
	limit int
}

// NewSniffer returns an empty sniffer whose completed-frame deque is
// capped at framesLimit entries (oldest dropped first on overflow).
func NewSniffer(framesLimit int) *Sniffer {
	return &Sniffer{limit: framesLimit}
}

// Feed appends newly read bytes to the pending input.
func (s *Sniffer) Feed(b []byte) {
	s.rx = append(s.rx, b...)
}

// Pending reports whether unconsumed input remains.
func (s *Sniffer) Pending() bool { return len(s.rx) > 0 }

// HasFrames reports whether any completed candidate frames are queued.
func (s *Sniffer) HasFrames() bool { return len(s.done) > 0 }

// TakeFrame pops the oldest completed candidate frame.
func (s *Sniffer) TakeFrame() ([]byte, bool) {
	if len(s.done) == 0 {
		return nil, false
	}
	f := s.done[0]
	s.done = s.done[1:]
	return f, true
}

// Split drains rx into cur, splitting on frame boundaries using the
// begin-sentinel plus declared-length heuristic. ignoreMinLen lets the
// caller force a split attempt even when rx holds fewer than MinLen
// bytes — used right after new bytes arrive or on read timeout.
//
// ran reports whether Split actually attempted reassembly (false only
// when ignoreMinLen was false and rx was shorter than MinLen, in which
// case nothing was touched). needMore is part of the same signature the
// caller (Engine.runSniffer) already retries on, but Split never actually
// needs it: once a fresh sentinel is visible at the front of rx, rx by
// construction already holds the two bytes that proved it, so Split
// always has enough in hand to either close cur out or glue onward —
// it never has to stop and wait.
func (s *Sniffer) Split(ignoreMinLen bool) (ran bool, needMore bool) {
	if !ignoreMinLen && len(s.rx) < MinLen {
		return false, false
	}

	frameSize := 0
	if len(s.cur) >= HeadLen && readUint16(s.cur, 0) == FrameBegin {
		frameSize = int(s.cur[OffsetDataLen]) + HeadAndCRCLen
	}

	for len(s.rx) > 0 {
		if frameSize == 0 && len(s.cur) >= HeadLen && readUint16(s.cur, 0) == FrameBegin {
			frameSize = int(s.cur[OffsetDataLen]) + HeadAndCRCLen
		}

		// cur already reached its declared length and a new frame's
		// sentinel is sitting at the front of rx: close cur out here
		// instead of absorbing the next frame's bytes into it, then keep
		// going so a run of several back-to-back frames all complete in
		// a single Split call.
		if frameSize != 0 && len(s.cur) >= frameSize && readUint16(s.rx, 0) == FrameBegin {
			s.pushDone(append([]byte(nil), s.cur...))
			s.cur = nil
			frameSize = 0
			continue
		}

		// cur overshot its declared length (it absorbed bytes that
		// belong to the next frame, e.g. because the real frame lost a
		// byte along the way): recover by locating the embedded
		// sentinel and resplitting there, then keep going from the
		// fresh cur.
		if frameSize != 0 && len(s.cur) > frameSize {
			if idx := findFrameBegin(s.cur, 1); idx >= 0 {
				first := append([]byte(nil), s.cur[:idx]...)
				s.cur = append([]byte(nil), s.cur[idx:]...)
				s.pushDone(first)
				frameSize = 0
				continue
			}
		}

		s.cur = append(s.cur, s.rx[0])
		s.rx = s.rx[1:]
	}

	if len(s.cur) > 0 {
		s.pushDone(append([]byte(nil), s.cur...))
		s.cur = nil
	}
	return true, false
}

// Repair applies fn to every completed candidate frame in place,
// without popping it — frames stay available via TakeFrame for the
// host's own raw-traffic access regardless of what fn does with them.
func (s *Sniffer) Repair(fn func(buf []byte) []byte) {
	for i, buf := range s.done {
		s.done[i] = fn(buf)
	}
}

func (s *Sniffer) pushDone(frame []byte) {
	s.done = append(s.done, frame)
	for len(s.done) > s.limit {
		s.done = s.done[1:]
	}
}

func findFrameBegin(buf []byte, from int) int {
	for i := from; i < len(buf); i++ {
		if readUint16(buf, i) == FrameBegin {
			return i
		}
	}
	return -1
}
