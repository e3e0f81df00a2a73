package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"invigilation/internal/apperrors"
	"invigilation/internal/model"
)

// filterFaculty keeps faculty whose name or e-mail contains q
// case-insensitively, or whose mobile number contains q.
func filterFaculty(all []model.Faculty, q string) []model.Faculty {
	q = strings.TrimSpace(q)
	if q == "" {
		return all
	}
	lower := strings.ToLower(q)
	var out []model.Faculty
	for _, f := range all {
		if strings.Contains(strings.ToLower(f.Name), lower) ||
			strings.Contains(strings.ToLower(f.Email), lower) ||
			strings.Contains(f.MobileNumber, q) {
			out = append(out, f)
		}
	}
	return out
}

func (cli *commandLine) faculty(ctx context.Context, args []string) error {
	sub, rest := subcommand(args)
	switch sub {
	case "list":
		fs := newFlagSet("faculty list")
		q := fs.String("q", "", "search by name, e-mail or mobile")
		if err := parse(fs, rest); err != nil {
			return err
		}
		all, err := cli.api.ListFaculty(ctx)
		if err != nil {
			return err
		}
		tw := cli.table("ID", "NAME", "MOBILE", "EMAIL", "RFID", "ADMIN")
		for _, f := range filterFaculty(all, *q) {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", f.ID, f.Name, f.MobileNumber, f.Email, orDash(f.RFIDTag), yesNo(f.IsAdmin))
		}
		return tw.Flush()
	case "add":
		fs := newFlagSet("faculty add")
		var f model.Faculty
		fs.StringVar(&f.Name, "name", "", "full name")
		fs.StringVar(&f.MobileNumber, "mobile", "", "mobile number (used as password)")
		fs.StringVar(&f.Email, "email", "", "e-mail")
		fs.StringVar(&f.RFIDTag, "rfid", "", "10 digit RFID tag")
		fs.BoolVar(&f.IsAdmin, "admin", false, "grant admin rights")
		if err := parse(fs, rest); err != nil {
			return err
		}
		msg, err := cli.api.AddFaculty(ctx, f)
		return cli.done(msg, "Faculty added successfully", err)
	case "delete":
		id, err := idFlag("faculty delete", rest)
		if err != nil {
			return err
		}
		msg, err := cli.api.DeleteFaculty(ctx, id)
		return cli.done(msg, "Faculty deleted successfully", err)
	case "import":
		return cli.bulkImport(ctx, "faculty", rest)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) venues(ctx context.Context, args []string) error {
	sub, rest := subcommand(args)
	switch sub {
	case "list":
		all, err := cli.api.ListVenues(ctx)
		if err != nil {
			return err
		}
		tw := cli.table("ID", "NAME", "LOCATION", "CAPACITY")
		for _, v := range all {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", v.ID, v.Name, v.Location, v.Capacity)
		}
		return tw.Flush()
	case "add":
		fs := newFlagSet("venues add")
		var v model.Venue
		fs.StringVar(&v.Name, "name", "", "venue name")
		fs.StringVar(&v.Location, "location", "", "building or block")
		fs.IntVar(&v.Capacity, "capacity", 0, "seats")
		if err := parse(fs, rest); err != nil {
			return err
		}
		msg, err := cli.api.AddVenue(ctx, v)
		return cli.done(msg, "Venue added successfully", err)
	case "delete":
		id, err := idFlag("venues delete", rest)
		if err != nil {
			return err
		}
		msg, err := cli.api.DeleteVenue(ctx, id)
		return cli.done(msg, "Venue deleted successfully", err)
	case "import":
		return cli.bulkImport(ctx, "venues", rest)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) bulkImport(ctx context.Context, kind string, args []string) error {
	fs := newFlagSet(kind + " import")
	path := fs.String("file", "", "workbook to upload (.xlsx)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *path == "" {
		return apperrors.Validation("-file is required")
	}
	f, err := os.Open(*path)
	if err != nil {
		return apperrors.Validation(fmt.Sprintf("cannot open %s: %v", *path, err))
	}
	defer f.Close()
	msg, err := cli.api.BulkImport(ctx, kind, filepath.Base(*path), f)
	return cli.done(msg, "Import completed", err)
}

func idFlag(name string, args []string) (int64, error) {
	fs := newFlagSet(name)
	id := fs.Int64("id", 0, "record id")
	if err := parse(fs, args); err != nil {
		return 0, err
	}
	if *id <= 0 {
		return 0, apperrors.Validation("-id must be a positive number")
	}
	return *id, nil
}

// done prints the service's message, or fallback when it sent none.
func (cli *commandLine) done(msg, fallback string, err error) error {
	if err != nil {
		return err
	}
	if msg == "" {
		msg = fallback
	}
	fmt.Fprintln(cli.out, msg)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
