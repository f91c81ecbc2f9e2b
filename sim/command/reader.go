package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emergency-sim/edsim/sim"
)

// Handler applies commands. *sim.Engine implements it.
type Handler interface {
	Submit(p sim.Patient) (sim.Patient, error)
	ResizeTriagePool(n int) error
	RequestStatsSnapshot() sim.StatsSnapshot
}

// Result counts what a Reader did with its input.
type Result struct {
	Lines     int
	Submitted int
	Rejected  int
	Invalid   int
	Resizes   int
}

// DefaultMaxLineBytes bounds a single command line.
const DefaultMaxLineBytes = 64 * 1024

var errLineTooLong = errors.New("line too long")

// Reader scans protocol lines and applies them to a Handler.
type Reader struct {
	handler Handler
	log     *logrus.Entry

	// MaxLineBytes bounds one line. Longer lines are skipped as malformed.
	MaxLineBytes int
	// StatsOut, when set, also receives the printed report for STATS.
	StatsOut io.Writer
	// Now supplies the date used to name group patients. Defaults to time.Now.
	Now func() time.Time
}

// NewReader creates a Reader applying commands to h.
func NewReader(h Handler, logger *logrus.Entry) *Reader {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reader{
		handler:      h,
		log:          logger.WithField("component", "command"),
		MaxLineBytes: DefaultMaxLineBytes,
		Now:          time.Now,
	}
}

// Run applies every line of in until EOF, a read error, ctx being done or the
// engine closing its intake. Malformed and oversized lines are logged and
// skipped.
func (r *Reader) Run(ctx context.Context, in io.Reader) (Result, error) {
	var res Result
	limit := r.MaxLineBytes
	if limit <= 0 {
		limit = DefaultMaxLineBytes
	}
	br := bufio.NewReader(in)
	for {
		line, err := readLine(br, limit)
		if err == io.EOF {
			return res, nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return res, cerr
		}
		res.Lines++
		if errors.Is(err, errLineTooLong) {
			res.Invalid++
			r.log.WithFields(logrus.Fields{"event": "invalid_command", "line": res.Lines, "limit": limit}).
				WithError(err).Warn("skipping malformed command")
			continue
		}
		if err != nil {
			return res, fmt.Errorf("reading commands: %w", err)
		}
		if err := r.apply(line, res.Lines, &res); err != nil {
			return res, err
		}
	}
}

// readLine returns the next line without its line ending. A line longer than
// limit is consumed up to its newline and reported as errLineTooLong. io.EOF
// is only returned once no bytes remain.
func readLine(br *bufio.Reader, limit int) (string, error) {
	var (
		buf     []byte
		tooLong bool
		read    bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		read = read || len(chunk) > 0
		if !tooLong {
			buf = append(buf, chunk...)
			if len(bytes.TrimRight(buf, "\r\n")) > limit {
				tooLong, buf = true, nil
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !(errors.Is(err, io.EOF) && read) {
			return "", err
		}
		if tooLong {
			return "", fmt.Errorf("%w: more than %d bytes", errLineTooLong, limit)
		}
		buf = bytes.TrimSuffix(buf, []byte("\n"))
		buf = bytes.TrimSuffix(buf, []byte("\r"))
		return string(buf), nil
	}
}

// apply handles one line. It only returns an error when no further input
// can be accepted.
func (r *Reader) apply(line string, lineNo int, res *Result) error {
	cmd, err := Parse(line)
	if err != nil {
		res.Invalid++
		r.log.WithFields(logrus.Fields{"event": "invalid_command", "line": lineNo}).WithError(err).
			Warn("skipping malformed command")
		return nil
	}

	switch cmd.Kind {
	case KindSkip:
	case KindStats:
		snap := r.handler.RequestStatsSnapshot()
		r.log.WithFields(logrus.Fields{
			"triaged":          snap.Triaged,
			"attended":         snap.Attended,
			"avg_triage_wait":  snap.AvgTriageWait,
			"avg_service_wait": snap.AvgServiceWait,
			"avg_total_time":   snap.AvgTotalTime,
		}).Info("statistics snapshot")
		if r.StatsOut != nil {
			snap.Print(r.StatsOut)
		}
	case KindResize:
		r.log.WithField("target", cmd.Target).Infof("received %s%d command", resizePrefix, cmd.Target)
		if err := r.handler.ResizeTriagePool(cmd.Target); err != nil {
			if errors.Is(err, sim.ErrPoolStopped) {
				return err
			}
			res.Invalid++
			return nil
		}
		res.Resizes++
	case KindPatient, KindGroup:
		for _, p := range cmd.Patients(r.Now()) {
			p, err := r.handler.Submit(p)
			switch {
			case err == nil:
				res.Submitted++
				r.log.WithFields(logrus.Fields{"patient": p.ID, "name": p.Name}).Debug("patient received")
			case errors.Is(err, sim.ErrRejectedFull):
				res.Rejected++
			case errors.Is(err, sim.ErrQueueClosed):
				return err
			default:
				res.Invalid++
				r.log.WithFields(logrus.Fields{"event": "invalid_command", "line": lineNo}).WithError(err).
					Warn("patient not admitted")
			}
		}
	}
	return nil
}
