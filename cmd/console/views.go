package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"invigilation/internal/allocsession"
	"invigilation/internal/apperrors"
	"invigilation/internal/client"
	"invigilation/internal/duty"
	"invigilation/internal/kiosk"
	"invigilation/internal/model"
)

func (cli *commandLine) manager() *allocsession.Manager {
	return allocsession.New(cli.api, cli.cfg.StatusReset)
}

func (cli *commandLine) alloc(ctx context.Context, args []string) error {
	sub, rest := subcommand(args)
	m := cli.manager()
	switch sub {
	case "generate":
		fs := newFlagSet("alloc generate")
		date := fs.String("date", "", "exam day, YYYY-MM-DD")
		slot := fs.String("slot", string(model.SlotMorning), "time slot")
		perVenue := fs.Int("per-venue", 1, "faculty per venue")
		if err := parse(fs, rest); err != nil {
			return err
		}
		if err := m.Generate(ctx, *date, model.TimeSlot(*slot), *perVenue); err != nil {
			return err
		}
		if n, ok := m.Notice(); ok {
			fmt.Fprintln(cli.out, n.Message)
		}
		return cli.printAllocations(m.List(*date))
	case "list":
		fs := newFlagSet("alloc list")
		date := fs.String("date", model.FilterAll, "day or all")
		if err := parse(fs, rest); err != nil {
			return err
		}
		if err := m.Refresh(ctx); err != nil {
			return err
		}
		return cli.printAllocations(m.List(*date))
	case "export":
		fs := newFlagSet("alloc export")
		date := fs.String("date", model.FilterAll, "day or all")
		out := fs.String("out", "", "destination file (defaults to the suggested name)")
		if err := parse(fs, rest); err != nil {
			return err
		}
		if err := m.Refresh(ctx); err != nil {
			return err
		}
		return cli.writeFile(*out, func(f *os.File) (string, error) { return m.ExportPDF(f, *date) })
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) printAllocations(rows []model.Allocation) error {
	tw := cli.table("ID", "FACULTY", "VENUE", "LOCATION", "DATE", "TIME", "PRESENT")
	for _, a := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", a.ID, a.FacultyName, a.VenueName, a.VenueLocation, a.Date, a.TimeSlot, yesNo(a.IsPresent))
	}
	return tw.Flush()
}

func (cli *commandLine) attendance(ctx context.Context, args []string) error {
	sub, rest := subcommand(args)
	m := cli.manager()
	switch sub {
	case "list":
		fs := newFlagSet("attendance list")
		date := fs.String("date", model.FilterAll, "day or all")
		if err := parse(fs, rest); err != nil {
			return err
		}
		if err := m.RefreshAttendance(ctx, *date); err != nil {
			return err
		}
		rows, _ := m.Attendance()
		return cli.printAttendance(rows)
	case "export":
		fs := newFlagSet("attendance export")
		date := fs.String("date", model.FilterAll, "day or all")
		format := fs.String("format", "excel", "excel or pdf")
		out := fs.String("out", "", "destination file (defaults to the suggested name)")
		if err := parse(fs, rest); err != nil {
			return err
		}
		if *format != "excel" && *format != "pdf" {
			return apperrors.Validation("Export format must be excel or pdf")
		}
		return cli.writeFile(*out, func(f *os.File) (string, error) {
			return m.ExportAttendance(ctx, *date, *format, f)
		})
	case "mark":
		fs := newFlagSet("attendance mark")
		var req model.MarkRequest
		fs.Int64Var(&req.AllocationID, "allocation", 0, "allocation id (manual override)")
		fs.StringVar(&req.RFIDTag, "rfid", "", "10 digit RFID tag")
		fs.StringVar(&req.Date, "date", model.Today(time.Now()), "day, YYYY-MM-DD")
		if err := parse(fs, rest); err != nil {
			return err
		}
		msg, err := m.MarkAttendance(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintln(cli.out, msg)
		rows, _ := m.Attendance()
		return cli.printAttendance(rows)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) printAttendance(rows []model.AttendanceRecord) error {
	tw := cli.table("ALLOCATION", "FACULTY", "RFID", "VENUE", "DATE", "TIME", "STATUS")
	for _, r := range rows {
		status := "Absent"
		if r.IsPresent {
			status = "Present"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", r.AllocationID, r.FacultyName, orDash(r.RFIDTag), r.VenueName, r.Date, r.TimeSlot, status)
	}
	return tw.Flush()
}

// writeFile renders into a temporary file and renames it to path, or to the
// suggested name when path is empty.
func (cli *commandLine) writeFile(path string, render func(f *os.File) (string, error)) error {
	dir := "."
	if path != "" {
		dir = filepath.Dir(path)
	}
	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	name, err := render(tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if path == "" {
		path = name
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Saved %s\n", path)
	return nil
}

func (cli *commandLine) duties(ctx context.Context, args []string) error {
	fs := newFlagSet("duties")
	mark := fs.Int64("mark", 0, "mark yourself present for this ongoing allocation")
	if err := parse(fs, args); err != nil {
		return err
	}
	board := duty.NewBoard(cli.api)
	if err := board.Load(ctx); err != nil {
		return err
	}
	if *mark != 0 {
		msg, err := board.Mark(ctx, *mark)
		if err != nil {
			return err
		}
		fmt.Fprintln(cli.out, msg)
	}

	fmt.Fprintf(cli.out, "Duties of %s\n", board.User().Name)
	tw := cli.table("ID", "VENUE", "LOCATION", "DATE", "TIME", "STATUS", "")
	for _, r := range board.Rows() {
		action := ""
		if r.CanMark {
			action = fmt.Sprintf("duties -mark %d", r.Allocation.ID)
		}
		a := r.Allocation
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", a.ID, a.VenueName, a.VenueLocation, a.Date, a.TimeSlot, r.State, action)
	}
	return tw.Flush()
}

// kiosk reads one RFID tag per line and reports each outcome until stdin
// closes, ctx ends or the session is rejected.
func (cli *commandLine) kiosk(ctx context.Context) error {
	if !cli.sess.Authenticated() {
		return &apperrors.Error{
			Kind:       apperrors.ErrUnauthenticated,
			Message:    "Please log in to continue",
			RedirectTo: cli.sess.Invalidate(),
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	k := kiosk.New(cli.api, kiosk.Options{PollInterval: cli.cfg.PollInterval, StatusReset: cli.cfg.StatusReset})
	defer k.Close()

	var mu sync.Mutex
	last := kiosk.Idle
	k.OnChange(func(s kiosk.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if s.Status == last {
			return
		}
		last = s.Status
		switch s.Status {
		case kiosk.Success:
			fmt.Fprintf(cli.out, "✔ %s\n", s.Message)
		case kiosk.Error:
			fmt.Fprintf(cli.out, "✘ %s\n", s.Message)
		case kiosk.Idle:
			fmt.Fprint(cli.out, "Scan RFID tag: ")
		}
	})

	pollErr := make(chan error, 1)
	go func() { pollErr <- k.Run(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(cli.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(cli.out, "RFID attendance kiosk. Press Ctrl+C to quit.")
	fmt.Fprint(cli.out, "Scan RFID tag: ")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-pollErr:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			k.SetInput(line)
			if err := k.Submit(ctx); err != nil {
				if _, ok := client.IsRedirect(err); ok {
					return err
				}
				if errors.Is(err, kiosk.ErrBusy) {
					fmt.Fprintln(cli.out, "Still processing the previous scan")
				}
			}
			s := k.Snapshot()
			fmt.Fprintf(cli.out, "Present today: %d of %d\n", present(s.Records), len(s.Records))
		}
	}
}

func present(rows []model.AttendanceRecord) int {
	n := 0
	for _, r := range rows {
		if r.IsPresent {
			n++
		}
	}
	return n
}
