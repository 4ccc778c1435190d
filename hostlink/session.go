package hostlink

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"focdrive/core"
	"focdrive/motor"
)

// Session parses the line-oriented command stream of spec §6 against a
// Controller's motors and exposed scalar table. Fields are
// fixed-count per verb, matching the original firmware's fixed-format
// sscanf parsing — not a shell-style tokenizer, so this deliberately uses
// bufio.Scanner + strings.Fields + strconv rather than a quoting-aware
// splitter like google/shlex.
type Session struct {
	ctrl *motor.Controller
	out  io.Writer
}

// NewSession binds a parser to a controller and a response writer.
func NewSession(ctrl *motor.Controller, out io.Writer) *Session {
	return &Session{ctrl: ctrl, out: out}
}

// Serve reads lines from r until EOF, dispatching each to the matching
// command handler. A malformed or failing line writes a "? <error>"
// response and continues; it does not stop the session.
func (s *Session) Serve(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := s.handleLine(line); err != nil {
			fmt.Fprintf(s.out, "? %v\n", err)
		}
	}
	return scanner.Err()
}

func (s *Session) handleLine(line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "p":
		return s.cmdPosition(fields[1:])
	case "v":
		return s.cmdVelocity(fields[1:])
	case "c":
		return s.cmdCurrent(fields[1:])
	case "g":
		return s.cmdGet(fields[1:])
	case "s":
		return s.cmdSet(fields[1:])
	case "m":
		return s.cmdMonitor(fields[1:])
	case "o":
		return s.cmdOutput(fields[1:])
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

// cmdPosition implements `p <m> <pos> <vel_ff> <cur_ff>`.
func (s *Session) cmdPosition(args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("p: want 4 args, got %d", len(args))
	}
	m, err := s.motorByField(args[0])
	if err != nil {
		return err
	}
	pos, err := parseFloat(args[1])
	if err != nil {
		return err
	}
	velFF, err := parseFloat(args[2])
	if err != nil {
		return err
	}
	curFF, err := parseFloat(args[3])
	if err != nil {
		return err
	}
	m.PosSetpoint = pos
	m.VelSetpoint = velFF
	m.CurrentSetpoint = curFF
	m.Mode = motor.ModePosition
	return nil
}

// cmdVelocity implements `v <m> <vel> <cur_ff>`.
func (s *Session) cmdVelocity(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("v: want 3 args, got %d", len(args))
	}
	m, err := s.motorByField(args[0])
	if err != nil {
		return err
	}
	vel, err := parseFloat(args[1])
	if err != nil {
		return err
	}
	curFF, err := parseFloat(args[2])
	if err != nil {
		return err
	}
	m.VelSetpoint = vel
	m.CurrentSetpoint = curFF
	m.Mode = motor.ModeVelocity
	return nil
}

// cmdCurrent implements `c <m> <cur>`.
func (s *Session) cmdCurrent(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("c: want 2 args, got %d", len(args))
	}
	m, err := s.motorByField(args[0])
	if err != nil {
		return err
	}
	cur, err := parseFloat(args[1])
	if err != nil {
		return err
	}
	m.CurrentSetpoint = cur
	m.Mode = motor.ModeCurrent
	return nil
}

// cmdGet implements `g <type> <index>`.
func (s *Session) cmdGet(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("g: want 2 args, got %d", len(args))
	}
	typ, index, err := parseTypeIndex(args[0], args[1])
	if err != nil {
		return err
	}
	v, err := s.ctrl.Scalars.Get(typ, index)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%g\n", v)
	return nil
}

// cmdSet implements `s <type> <index> <value>`.
func (s *Session) cmdSet(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("s: want 3 args, got %d", len(args))
	}
	typ, index, err := parseTypeIndex(args[0], args[1])
	if err != nil {
		return err
	}
	value, err := parseFloat(args[2])
	if err != nil {
		return err
	}
	return s.ctrl.Scalars.Set(typ, index, value)
}

// cmdMonitor implements `m <type> <index> <slot>`.
func (s *Session) cmdMonitor(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("m: want 3 args, got %d", len(args))
	}
	typ, index, err := parseTypeIndex(args[0], args[1])
	if err != nil {
		return err
	}
	slot, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("bad slot %q: %w", args[2], err)
	}
	return s.ctrl.Scalars.Bind(typ, index, slot)
}

// cmdOutput implements `o <limit>`.
func (s *Session) cmdOutput(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("o: want 1 arg, got %d", len(args))
	}
	limit, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad limit %q: %w", args[0], err)
	}
	fmt.Fprintln(s.out, s.ctrl.Scalars.Emit(limit))
	return nil
}

func (s *Session) motorByField(field string) (*motor.Motor, error) {
	idx, err := strconv.Atoi(field)
	if err != nil {
		return nil, fmt.Errorf("bad motor index %q: %w", field, err)
	}
	for _, m := range s.ctrl.Motors {
		if m.Index == idx {
			return m, nil
		}
	}
	return nil, fmt.Errorf("no motor with index %d", idx)
}

func parseTypeIndex(typField, indexField string) (core.ScalarType, int, error) {
	t, err := strconv.Atoi(typField)
	if err != nil {
		return 0, 0, fmt.Errorf("bad scalar type %q: %w", typField, err)
	}
	index, err := strconv.Atoi(indexField)
	if err != nil {
		return 0, 0, fmt.Errorf("bad scalar index %q: %w", indexField, err)
	}
	return core.ScalarType(t), index, nil
}

func parseFloat(field string) (float64, error) {
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q: %w", field, err)
	}
	return v, nil
}
