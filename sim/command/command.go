// Package command parses and applies the line protocol spoken on the
// engine's input stream (stdin, a file or a named pipe).
//
// One command per line:
//
//	TRIAGE=<n>                                      resize the triage pool
//	<name> <triage_ms> <service_ms> <priority>      admit one patient
//	<count> <triage_ms> <service_ms> <priority>     admit count identical patients
//	STATS                                           log a statistics snapshot
//
// Blank lines and lines starting with '#' are ignored. Group patients are
// named <YYYY-MM-DD>-<NNN>, numbered from 1 within the group.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emergency-sim/edsim/sim"
)

// Kind identifies a parsed command.
type Kind int

const (
	KindSkip Kind = iota // blank line or comment
	KindResize
	KindPatient
	KindGroup
	KindStats
)

func (k Kind) String() string {
	switch k {
	case KindSkip:
		return "skip"
	case KindResize:
		return "resize"
	case KindPatient:
		return "patient"
	case KindGroup:
		return "group"
	case KindStats:
		return "stats"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

const (
	resizePrefix = "TRIAGE="
	statsKeyword = "STATS"
)

// ErrInvalidCommand is wrapped by every Parse error.
var ErrInvalidCommand = errors.New("invalid command")

// Command is one parsed protocol line.
type Command struct {
	Kind Kind

	// Target is the requested triage pool size for KindResize.
	Target int

	// Patient is the patient for KindPatient and the template for KindGroup.
	Patient sim.Patient

	// Count is the group size for KindGroup.
	Count int
}

// Parse parses one protocol line. Range checks on the resize target are left
// to the engine; everything else is validated here.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Command{Kind: KindSkip}, nil
	}
	if line == statsKeyword {
		return Command{Kind: KindStats}, nil
	}
	if rest, ok := strings.CutPrefix(line, resizePrefix); ok {
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return Command{}, fmt.Errorf("%w: TRIAGE value %q is not an integer", ErrInvalidCommand, rest)
		}
		return Command{Kind: KindResize, Target: n}, nil
	}

	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Command{}, fmt.Errorf("%w: want 4 fields, got %d", ErrInvalidCommand, len(fields))
	}
	nums := make([]int, 3)
	for i, f := range fields[1:] {
		v, err := strconv.Atoi(f)
		if err != nil {
			return Command{}, fmt.Errorf("%w: field %d (%q) is not an integer", ErrInvalidCommand, i+2, f)
		}
		nums[i] = v
	}

	cmd := Command{Kind: KindPatient}
	name := fields[0]
	if count, err := strconv.Atoi(name); err == nil {
		if count <= 0 {
			return Command{}, fmt.Errorf("%w: group size must be positive, got %d", ErrInvalidCommand, count)
		}
		cmd.Kind = KindGroup
		cmd.Count = count
		name = ""
	}
	p, err := sim.NewPatient(name, nums[0], nums[1], nums[2])
	if err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	cmd.Patient = p
	return cmd, nil
}

// Patients expands the command into the patients it admits, naming group
// members after day.
func (c Command) Patients(day time.Time) []sim.Patient {
	switch c.Kind {
	case KindPatient:
		return []sim.Patient{c.Patient}
	case KindGroup:
		out := make([]sim.Patient, c.Count)
		for i := range out {
			p := c.Patient
			p.Name = GroupName(day, i+1)
			out[i] = p
		}
		return out
	default:
		return nil
	}
}

// GroupName returns the label of the index-th member of a group admitted on day.
func GroupName(day time.Time, index int) string {
	return fmt.Sprintf("%s-%03d", day.Format("2006-01-02"), index)
}

// FormatPatient renders p as a single-patient protocol line.
func FormatPatient(p sim.Patient) string {
	return fmt.Sprintf("%s %d %d %d", p.Name, p.TriageMs, p.ServiceMs, int(p.Priority))
}
