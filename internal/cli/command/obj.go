package command

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/vos-go/internal/cli/output"
	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/vos"
)

var (
	oidFlag = &cli.StringFlag{
		Name:     "oid",
		Usage:    "Object ID as hi.mid.lo[.shard] in hex",
		Required: true,
	}
	dkeyFlag = &cli.StringFlag{
		Name:  "dkey",
		Usage: "Distribution key",
	}
	akeyFlag = &cli.StringFlag{
		Name:  "akey",
		Usage: "Attribute key",
	}
	noCommitFlag = &cli.BoolFlag{
		Name:  "no-commit",
		Usage: "Leave the epoch uncommitted",
	}
)

// ObjCommand returns the object subcommand group.
func ObjCommand() *cli.Command {
	return &cli.Command{
		Name:    "obj",
		Aliases: []string{"object"},
		Usage:   "Write, read, punch and list objects",
		Subcommands: []*cli.Command{
			{
				Name:  "put",
				Usage: "Write a record extent (default epoch HCE+1, committed)",
				Flags: []cli.Flag{
					contFlag, cookieFlag, epochFlag, oidFlag, dkeyFlag, akeyFlag, noCommitFlag,
					&cli.Uint64Flag{Name: "index", Usage: "First index of the extent"},
					&cli.Uint64Flag{Name: "size", Value: 1, Usage: "Bytes per index"},
					&cli.StringFlag{Name: "value", Usage: "Value to write"},
					&cli.PathFlag{Name: "file", Usage: "Read the value from a file"},
				},
				Action: objPut,
			},
			{
				Name:  "get",
				Usage: "Read a record or an extent (default epoch HCE)",
				Flags: []cli.Flag{
					contFlag, epochFlag, oidFlag, dkeyFlag, akeyFlag,
					&cli.Uint64Flag{Name: "index", Usage: "First index"},
					&cli.Uint64Flag{Name: "count", Value: 1, Usage: "Number of indices"},
					&cli.BoolFlag{Name: "raw", Usage: "Write the value bytes to stdout"},
				},
				Action: objGet,
			},
			{
				Name:  "punch",
				Usage: "Punch akeys, a dkey or a whole object",
				Flags: []cli.Flag{
					contFlag, cookieFlag, epochFlag, oidFlag, dkeyFlag, noCommitFlag,
					&cli.StringSliceFlag{Name: "akey", Usage: "Attribute keys to punch (needs --dkey)"},
				},
				Action: objPunch,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "Walk objects, keys and extents",
				Flags: []cli.Flag{
					contFlag, dkeyFlag, akeyFlag,
					&cli.StringFlag{Name: "oid", Usage: "Start below this object"},
					&cli.StringFlag{Name: "lo", Usage: "Lowest epoch to match"},
					&cli.StringFlag{Name: "hi", Usage: "Highest epoch to match"},
					&cli.BoolFlag{Name: "shallow", Usage: "Do not descend below the first level"},
				},
				Action: objList,
			},
			{
				Name:   "delete",
				Usage:  "Remove an object and all of its versions",
				Flags:  []cli.Flag{contFlag, oidFlag},
				Action: objDelete,
			},
		},
	}
}

// valueView is the printable form of a fetch.
type valueView struct {
	Epoch   domain.Epoch `json:"epoch,omitempty"`
	Status  string       `json:"status,omitempty"`
	Size    uint64       `json:"size"`
	Holes   uint64       `json:"holes,omitempty" table:"wide"`
	Punched uint64       `json:"punched,omitempty" table:"wide"`
	Cookie  string       `json:"cookie,omitempty" table:"wide"`
	Value   string       `json:"value"`
}

// entryRow is one line of "obj list".
type entryRow struct {
	Level    string       `json:"level"`
	OID      string       `json:"oid"`
	Key      string       `json:"key,omitempty"`
	Recx     string       `json:"recx,omitempty"`
	MinEpoch domain.Epoch `json:"min_epoch"`
	MaxEpoch domain.Epoch `json:"max_epoch"`
	Size     uint64       `json:"size,omitempty" table:"wide"`
	Status   string       `json:"status,omitempty"`
	Cookie   string       `json:"cookie,omitempty" table:"wide"`
}

func parseOID(c *cli.Context) (domain.UnitOID, error) {
	oid, err := domain.ParseUnitOID(c.String("oid"))
	if err != nil {
		return domain.UnitOID{}, fmt.Errorf("--oid: %w", err)
	}
	return oid, nil
}

func readValue(c *cli.Context) ([]byte, error) {
	switch {
	case c.IsSet("file") && c.IsSet("value"):
		return nil, fmt.Errorf("--value and --file are exclusive")
	case c.IsSet("file"):
		return os.ReadFile(c.Path("file"))
	case c.IsSet("value"):
		return []byte(c.String("value")), nil
	default:
		return nil, fmt.Errorf("--value or --file required")
	}
}

// writeEpoch holds the epoch to write at, runs fn and commits unless
// --no-commit is set.
func writeEpoch(c *cli.Context, fn func(ctx context.Context, s *poolSession, coh vos.ContHandle, epoch domain.Epoch) error) error {
	return withCont(c, domain.ModeRW, func(ctx context.Context, s *poolSession, coh vos.ContHandle) error {
		epoch, err := nextEpoch(c, s, coh)
		if err != nil {
			return err
		}
		if _, err := s.engine.EpochHold(coh, epoch); err != nil {
			return err
		}
		if err := fn(ctx, s, coh, epoch); err != nil {
			return err
		}
		if c.Bool("no-commit") {
			_, cookie, err := s.engine.ContUUID(coh)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Epoch %s left uncommitted by cookie %s\n", epoch, cookie)
			return nil
		}
		if _, err := s.engine.EpochCommit(ctx, coh, epoch, nil); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Epoch %s committed\n", epoch)
		return nil
	})
}

func objPut(c *cli.Context) error {
	oid, err := parseOID(c)
	if err != nil {
		return err
	}
	data, err := readValue(c)
	if err != nil {
		return err
	}
	size := c.Uint64("size")
	if size == 0 || uint64(len(data))%size != 0 {
		return fmt.Errorf("value length %d is not a multiple of --size %d", len(data), size)
	}
	iod := vos.IOD{
		DKey: []byte(c.String("dkey")),
		AKey: []byte(c.String("akey")),
		Recx: domain.Recx{Index: c.Uint64("index"), Count: uint64(len(data)) / size},
		Size: size,
	}

	return writeEpoch(c, func(ctx context.Context, s *poolSession, coh vos.ContHandle, epoch domain.Epoch) error {
		if err := s.engine.Update(ctx, coh, epoch, oid, iod, data); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Wrote %s to %s at epoch %s\n", iod.Recx, oid, epoch)
		return nil
	})
}

func objGet(c *cli.Context) error {
	oid, err := parseOID(c)
	if err != nil {
		return err
	}
	dkey, akey := []byte(c.String("dkey")), []byte(c.String("akey"))
	rx := domain.Recx{Index: c.Uint64("index"), Count: c.Uint64("count")}

	return withCont(c, domain.ModeRO, func(ctx context.Context, s *poolSession, coh vos.ContHandle) error {
		st, err := s.engine.EpochQuery(coh)
		if err != nil {
			return err
		}
		epoch, err := epochOr(c, st.HCE)
		if err != nil {
			return err
		}

		var view valueView
		var data []byte
		if rx.Count == 1 {
			res, err := s.engine.Fetch(ctx, coh, epoch, oid, dkey, akey, rx.Index)
			if err != nil {
				return err
			}
			data = res.Data
			view = valueView{
				Epoch:  res.Epoch,
				Status: res.Status.String(),
				Size:   res.Size,
				Cookie: res.Cookie.String(),
			}
		} else {
			res, err := s.engine.FetchExtent(ctx, coh, epoch, oid, dkey, akey, rx)
			if err != nil {
				return err
			}
			data = res.Data
			view = valueView{Size: res.Size, Holes: res.Holes, Punched: res.Punched}
		}

		if c.Bool("raw") {
			_, err := c.App.Writer.Write(data)
			return err
		}
		view.Value = output.FormatKey(data)
		return render(c, view)
	})
}

func objPunch(c *cli.Context) error {
	oid, err := parseOID(c)
	if err != nil {
		return err
	}
	dkey := []byte(c.String("dkey"))
	var akeys [][]byte
	for _, a := range c.StringSlice("akey") {
		akeys = append(akeys, []byte(a))
	}
	if len(akeys) > 0 && len(dkey) == 0 {
		return fmt.Errorf("--akey needs --dkey")
	}

	return writeEpoch(c, func(ctx context.Context, s *poolSession, coh vos.ContHandle, epoch domain.Epoch) error {
		var n int
		var err error
		switch {
		case len(akeys) > 0:
			n, err = s.engine.PunchAKeys(ctx, coh, epoch, oid, dkey, akeys)
		case len(dkey) > 0:
			n, err = s.engine.PunchDKey(ctx, coh, epoch, oid, dkey)
		default:
			n, err = s.engine.PunchObject(ctx, coh, epoch, oid)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Punched %d extents at epoch %s\n", n, epoch)
		return nil
	})
}

// listParam builds the iterator parameters from the list flags.
func listParam(c *cli.Context) (vos.IterParam, error) {
	var p vos.IterParam
	if c.String("oid") != "" {
		oid, err := parseOID(c)
		if err != nil {
			return p, err
		}
		p.OID = oid
		p.Level = vos.LevelDKey
		if p.DKey = []byte(c.String("dkey")); len(p.DKey) > 0 {
			p.Level = vos.LevelAKey
			if p.AKey = []byte(c.String("akey")); len(p.AKey) > 0 {
				p.Level = vos.LevelRecx
			}
		}
	}

	if c.IsSet("lo") || c.IsSet("hi") {
		p.Filter = vos.FilterRange
		p.Epr = domain.EpochRange{Lo: 0, Hi: domain.EpochMax}
		for name, dst := range map[string]*domain.Epoch{"lo": &p.Epr.Lo, "hi": &p.Epr.Hi} {
			if !c.IsSet(name) {
				continue
			}
			e, err := domain.ParseEpoch(c.String(name))
			if err != nil {
				return p, fmt.Errorf("--%s: %w", name, err)
			}
			*dst = e
		}
	}
	return p, nil
}

func objList(c *cli.Context) error {
	param, err := listParam(c)
	if err != nil {
		return err
	}
	shallow := c.Bool("shallow")

	return withCont(c, domain.ModeRO, func(ctx context.Context, s *poolSession, coh vos.ContHandle) error {
		var rows []entryRow
		err := s.engine.Iterate(ctx, coh, param, func(e vos.IterEntry) (vos.Action, error) {
			row := entryRow{
				Level:    e.Level.String(),
				OID:      e.OID.String(),
				MinEpoch: e.MinEpoch,
				MaxEpoch: e.MaxEpoch,
			}
			if e.Level == vos.LevelRecx {
				row.Recx = e.Recx.String()
				row.Size = e.Size
				row.Status = e.Status.String()
				row.Cookie = e.Cookie.String()
			} else if e.Level != vos.LevelObject {
				row.Key = output.FormatKey(e.Key)
			}
			rows = append(rows, row)
			if shallow {
				return vos.SkipChildren, nil
			}
			return vos.Continue, nil
		})
		if err != nil {
			return err
		}
		if len(rows) == 0 && CLIConfig(c).Output == "table" {
			fmt.Fprintln(c.App.Writer, "No entries found.")
			return nil
		}
		return render(c, rows)
	})
}

func objDelete(c *cli.Context) error {
	oid, err := parseOID(c)
	if err != nil {
		return err
	}
	return withCont(c, domain.ModeRW, func(ctx context.Context, s *poolSession, coh vos.ContHandle) error {
		if err := s.engine.ObjectDelete(ctx, coh, oid); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Object %s deleted\n", oid)
		return nil
	})
}
