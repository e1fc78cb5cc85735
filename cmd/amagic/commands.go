package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/funvibe/amagic/internal/classdef"
	"github.com/funvibe/amagic/internal/config"
	"github.com/funvibe/amagic/internal/object"
	"github.com/funvibe/amagic/internal/overload"
	"github.com/funvibe/amagic/internal/store"
	"github.com/funvibe/amagic/pkg/amagic"
)

const defaultSnapshot = "default"

type cli struct {
	out    io.Writer
	errOut io.Writer
	name   string
}

var commands = map[string]func(*cli, []string) error{
	"mro":       cmdMRO,
	"resolve":   cmdResolve,
	"overloads": cmdOverloads,
	"dispatch":  cmdDispatch,
	"save":      cmdSave,
	"load":      cmdLoad,
}

type commonFlags struct {
	manifest string
	verbose  bool
}

func (c *cli) flags(common *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(c.name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	if common != nil {
		fs.StringVar(&common.manifest, "m", "", "manifest `file` (default: search for "+config.ManifestFileName+")")
		fs.BoolVar(&common.verbose, "v", false, "log debug diagnostics")
	}
	return fs
}

func (c *cli) newEngine(verbose bool) *amagic.Engine {
	return amagic.New(
		amagic.WithLogger(log.New(c.errOut, "", 0)),
		amagic.WithVerbose(verbose),
	)
}

// open builds an engine from the manifest named by the flags.
func (c *cli) open(common *commonFlags) (*amagic.Engine, *classdef.Manifest, error) {
	path := common.manifest
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, nil, err
		}
		found, err := classdef.FindManifest(wd)
		if err != nil {
			return nil, nil, err
		}
		if found == "" {
			return nil, nil, fmt.Errorf("no %s found (use -m)", config.ManifestFileName)
		}
		path = found
	}
	m, err := classdef.LoadManifest(path)
	if err != nil {
		return nil, nil, err
	}
	e := c.newEngine(common.verbose)
	c.registerTracers(e, m.BuiltinKeys())
	if err := e.ApplyManifest(m); err != nil {
		return nil, nil, err
	}
	return e, m, nil
}

func (c *cli) registerTracers(e *amagic.Engine, keys []string) {
	for _, key := range keys {
		e.Registry().Register(key, c.tracer(key))
	}
}

// tracer prints its call and returns the first argument, so copy and
// dereference handlers still hand back a reference.
func (c *cli) tracer(key string) object.BuiltinFunction {
	return func(args ...object.Object) (object.Object, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.Inspect()
		}
		fmt.Fprintf(c.out, "  %s %s(%s)\n", paint(ansiDim, "call"), paint(ansiCyan, key), strings.Join(parts, ", "))
		if len(args) == 0 {
			return object.Undef, nil
		}
		return args[0], nil
	}
}

func cmdMRO(c *cli, args []string) error {
	var common commonFlags
	fs := c.flags(&common)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: amagic mro [-m file] <Class>")
	}
	e, _, err := c.open(&common)
	if err != nil {
		return err
	}
	class := fs.Arg(0)
	cls, err := e.Table().Get(class)
	if err != nil {
		return err
	}
	names, err := e.MRO(class)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s (%s)\n", paint(ansiBold, class), cls.MRO())
	for i, n := range names {
		fmt.Fprintf(c.out, "  %2d  %s\n", i, n)
	}
	for _, p := range cls.Parents() {
		if _, ok := e.Table().Lookup(p); !ok {
			fmt.Fprintf(c.out, "  %s %s\n", paint(ansiYellow, "missing"), p)
		}
	}
	return nil
}

func cmdResolve(c *cli, args []string) error {
	var common commonFlags
	fs := c.flags(&common)
	autoload := fs.Bool("autoload", true, "fall back to AUTOLOAD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: amagic resolve [-m file] [-autoload=false] <Class> <method>")
	}
	e, _, err := c.open(&common)
	if err != nil {
		return err
	}
	class, name := fs.Arg(0), fs.Arg(1)
	f, err := e.FetchMethod(class, name, *autoload)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("can't locate object method %q via package %q", name, class)
	}
	via := ""
	if f.Autoload {
		via = paint(ansiYellow, " (via AUTOLOAD)")
	}
	fmt.Fprintf(c.out, "%s -> %s %s%s\n", f.Name, paint(ansiGreen, f.Origin.Name()), f.Value.Inspect(), via)
	return nil
}

func cmdOverloads(c *cli, args []string) error {
	var common commonFlags
	fs := c.flags(&common)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: amagic overloads [-m file] <Class>")
	}
	e, _, err := c.open(&common)
	if err != nil {
		return err
	}
	ot, err := e.GetOverloadTable(fs.Arg(0))
	if err != nil {
		return err
	}
	printTable(c.out, ot)
	return nil
}

func printTable(w io.Writer, ot *overload.Table) {
	fmt.Fprintf(w, "%s  fallback=%s overloaded=%t noderef=%t\n",
		paint(ansiBold, ot.Class()), ot.Fallback(), ot.Amagic(), ot.NoDeref())
	for _, en := range ot.Entries() {
		fmt.Fprintf(w, "  %-8s %s\n", en.Token, en.Handler.Inspect())
	}
}

func cmdDispatch(c *cli, args []string) error {
	var common commonFlags
	fs := c.flags(&common)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 || fs.NArg() > 3 {
		return errors.New("usage: amagic dispatch [-m file] <op> <left> [<right>]")
	}
	e, _, err := c.open(&common)
	if err != nil {
		return err
	}
	left, err := operand(e, fs.Arg(1))
	if err != nil {
		return err
	}
	var right amagic.Object = object.Undef
	if fs.NArg() == 3 {
		if right, err = operand(e, fs.Arg(2)); err != nil {
			return err
		}
	}

	res, err := e.Operate(fs.Arg(0), left, right)
	if err != nil {
		return err
	}
	if !res.Applicable() {
		fmt.Fprintf(c.out, "%s: use the built-in operator\n", paint(ansiYellow, "not overloaded"))
		return nil
	}
	fmt.Fprintf(c.out, "%s %s\n", res.Kind, res.Value.Inspect())
	return nil
}

// operand makes an instance of a declared class or a literal.
func operand(e *amagic.Engine, s string) (amagic.Object, error) {
	if _, ok := e.Table().Lookup(s); ok {
		return e.Bless(s, nil)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return object.Int(i), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return &object.Float{Value: f}, nil
	}
	return object.Str(s), nil
}

func cmdSave(c *cli, args []string) error {
	var common commonFlags
	fs := c.flags(&common)
	db := fs.String("db", "", "snapshot database `file`")
	name := fs.String("name", defaultSnapshot, "snapshot name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *db == "" {
		return errors.New("usage: amagic save [-m file] -db <file> [-name n]")
	}
	e, _, err := c.open(&common)
	if err != nil {
		return err
	}
	info, err := e.Save(context.Background(), *db, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "saved %d classes as %s (%s)\n", info.Classes, info.Name, info.ID)
	return nil
}

func cmdLoad(c *cli, args []string) error {
	fs := c.flags(nil)
	db := fs.String("db", "", "snapshot database `file`")
	name := fs.String("name", defaultSnapshot, "snapshot name")
	list := fs.Bool("list", false, "list snapshots")
	verbose := fs.Bool("v", false, "log debug diagnostics")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *db == "" {
		return errors.New("usage: amagic load -db <file> [-name n | -list]")
	}
	ctx := context.Background()

	st, err := store.Open(ctx, *db)
	if err != nil {
		return err
	}
	if *list {
		defer st.Close()
		infos, err := st.List(ctx)
		if err != nil {
			return err
		}
		for _, info := range infos {
			fmt.Fprintf(c.out, "%-16s %3d classes  %s  %s\n",
				info.Name, info.Classes, info.Created.Format("2006-01-02 15:04:05"), info.ID)
		}
		return nil
	}
	keys, err := st.Keys(ctx, *name)
	st.Close()
	if err != nil {
		return err
	}

	e := c.newEngine(*verbose)
	c.registerTracers(e, keys)
	info, err := e.Load(ctx, *db, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "loaded %s (%s)\n", info.Name, info.ID)
	for _, cn := range e.Table().ClassNames() {
		cls, _ := e.Table().Lookup(cn)
		parents := strings.Join(cls.Parents(), " ")
		if parents != "" {
			parents = " : " + parents
		}
		fmt.Fprintf(c.out, "  %s%s [%s] %d methods\n", cn, parents, cls.MRO(), len(cls.OwnMethodNames()))
	}
	return nil
}
