// Package console is the interactive shell of hlextract: a current folder
// inside an open package and commands to list, inspect, validate and
// extract items. Nested packages are opened on a stack.
package console

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/extract"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/stream"
	"github.com/mogaika/hlpack/vfs"
)

type level struct {
	pkg *pack.Package
	cwd *vfs.Folder
	// owned packages are closed when the level is left
	owned bool
}

type Console struct {
	reg    *pack.Registry
	out    io.Writer
	stack  []*level
	Fs     afero.Fs
	Dest   string
	Prompt bool
	// Extractor settings copied into every extraction.
	Overwrite      bool
	CopyBufferSize int
}

func New(reg *pack.Registry, pkg *pack.Package, out io.Writer) *Console {
	return &Console{
		reg:       reg,
		out:       out,
		stack:     []*level{{pkg: pkg, cwd: pkg.Root()}},
		Fs:        afero.NewOsFs(),
		Dest:      ".",
		Overwrite: true,
	}
}

func (c *Console) top() *level { return c.stack[len(c.stack)-1] }

// Package is the package commands currently operate on.
func (c *Console) Package() *pack.Package { return c.top().pkg }

// Cwd is the current folder.
func (c *Console) Cwd() *vfs.Folder { return c.top().cwd }

type command struct {
	usage string
	help  string
	run   func(c *Console, args []string) error
}

var commands map[string]*command

func init() {
	commands = map[string]*command{
		"dir":      {"dir [pattern]", "list the current folder", (*Console).cmdDir},
		"ls":       {"ls [pattern]", "list the current folder", (*Console).cmdDir},
		"cd":       {"cd <folder>", "change the current folder", (*Console).cmdCd},
		"root":     {"root", "go to the package root", (*Console).cmdRoot},
		"info":     {"info [item]", "show item details and attributes", (*Console).cmdInfo},
		"extract":  {"extract <item> [dest]", "extract an item", (*Console).cmdExtract},
		"validate": {"validate [item]", "validate an item", (*Console).cmdValidate},
		"find":     {"find <pattern>", "find items below the current folder", (*Console).cmdFind},
		"type":     {"type <file>", "print a file", (*Console).cmdType},
		"open":     {"open <file>", "open a nested package", (*Console).cmdOpen},
		"close":    {"close", "close the nested package", (*Console).cmdClose},
		"status":   {"status", "show package summary", (*Console).cmdStatus},
		"help":     {"help", "show this help", (*Console).cmdHelp},
	}
}

// ErrExit is returned by Exec for exit and quit.
var ErrExit = errs.NotFound("[console] exit")

// Exec runs one command line.
func (c *Console) Exec(line string) error {
	args, err := Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	name := strings.ToLower(args[0])
	if name == "exit" || name == "quit" {
		return ErrExit
	}
	cmd, ok := commands[name]
	if !ok {
		return errs.NotFound("[console] unknown command '%s', type help", args[0])
	}
	return cmd.run(c, args[1:])
}

// Run reads commands from in until exit or end of input. Command errors are
// printed and do not stop the loop.
func (c *Console) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		if c.Prompt {
			fmt.Fprintf(c.out, "%s> ", c.prompt())
		}
		if !scanner.Scan() {
			break
		}
		if err := c.Exec(scanner.Text()); err != nil {
			if err == ErrExit {
				break
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
	c.closeAll()
	return scanner.Err()
}

func (c *Console) prompt() string {
	p := vfs.Path(c.Cwd())
	if p == "" {
		return vfs.RootName
	}
	return vfs.RootName + vfs.Separator + p
}

func (c *Console) closeAll() {
	for len(c.stack) > 1 {
		c.cmdClose(nil)
	}
}

func (c *Console) lookup(args []string) (vfs.Node, error) {
	if len(args) == 0 {
		return c.Cwd(), nil
	}
	return c.Cwd().Lookup(args[0])
}

func (c *Console) lookupFile(args []string) (*vfs.File, error) {
	if len(args) == 0 {
		return nil, errs.NotFound("[console] missing file argument")
	}
	n, err := c.Cwd().Lookup(args[0])
	if err != nil {
		return nil, err
	}
	f, ok := n.(*vfs.File)
	if !ok {
		return nil, errs.NotFound("[console] '%s' is a folder", args[0])
	}
	return f, nil
}

func (c *Console) cmdDir(args []string) error {
	pattern := "*"
	if len(args) > 0 {
		pattern = args[0]
	}
	var folders, files int
	for _, n := range c.Cwd().Children() {
		if !vfs.MatchName(pattern, n.Name(), 0) {
			continue
		}
		switch v := n.(type) {
		case *vfs.Folder:
			folders++
			fmt.Fprintf(c.out, "  %-10s %s\n", "<DIR>", v.Name())
		case *vfs.File:
			files++
			fmt.Fprintf(c.out, "  %10d %s\n", v.Size, v.Name())
		}
	}
	fmt.Fprintf(c.out, "%d folders, %d files\n", folders, files)
	return nil
}

func (c *Console) cmdCd(args []string) error {
	if len(args) == 0 {
		return errs.NotFound("[console] missing folder argument")
	}
	n, err := c.Cwd().Lookup(args[0])
	if err != nil {
		return err
	}
	folder, ok := n.(*vfs.Folder)
	if !ok {
		return errs.NotFound("[console] '%s' is not a folder", args[0])
	}
	c.top().cwd = folder
	return nil
}

func (c *Console) cmdRoot(args []string) error {
	c.top().cwd = c.Package().Root()
	return nil
}

func (c *Console) printAttributes(attrs vfs.Attributes) {
	if attrs == nil {
		return
	}
	for _, a := range attrs.Fields() {
		fmt.Fprintf(c.out, "  %s: %s\n", a.Name, a.String())
	}
}

func (c *Console) cmdInfo(args []string) error {
	n, err := c.lookup(args)
	if err != nil {
		return err
	}
	switch v := n.(type) {
	case *vfs.Folder:
		fmt.Fprintf(c.out, "Folder: %s\n", c.displayPath(v))
		fmt.Fprintf(c.out, "  Folders: %d\n  Files: %d\n", v.FolderCount(true), v.FileCount(true))
		fmt.Fprintf(c.out, "  Size: %d\n  Size on disk: %d\n", v.Size(true), v.SizeOnDisk(true))
		if v.Parent() == nil {
			c.printAttributes(c.Package().Attributes())
		}
		c.printAttributes(v.Attributes)
	case *vfs.File:
		fmt.Fprintf(c.out, "File: %s\n", c.displayPath(v))
		fmt.Fprintf(c.out, "  Size: %d\n  Size on disk: %d\n", v.Size, v.SizeOnDisk())
		if v.Compressed() {
			fmt.Fprintf(c.out, "  Compression: %v\n", v.Compression)
		}
		fmt.Fprintf(c.out, "  Fragments: %d\n  Extractable: %v\n", len(v.Fragments), v.Extractable)
		if s := v.Validation(); s != vfs.ValidationUnknown {
			fmt.Fprintf(c.out, "  Validation: %v\n", s)
		}
		c.printAttributes(v.Attributes)
	}
	return nil
}

func (c *Console) displayPath(n vfs.Node) string {
	if p := vfs.Path(n); p != "" {
		return p
	}
	return vfs.RootName
}

func (c *Console) extractor() *extract.Extractor {
	e := extract.New(c.Package(), c.Fs)
	e.Overwrite = c.Overwrite
	if c.CopyBufferSize > 0 {
		e.CopyBufferSize = c.CopyBufferSize
	}
	return e
}

func (c *Console) cmdExtract(args []string) error {
	if len(args) == 0 {
		return errs.NotFound("[console] missing item argument")
	}
	dest := c.Dest
	if len(args) > 1 {
		dest = args[1]
	}

	var report extract.Report
	if strings.ContainsAny(args[0], "*?") {
		report = c.extractor().ExtractPattern(c.Cwd(), args[0], dest)
	} else {
		n, err := c.Cwd().Lookup(args[0])
		if err != nil {
			return err
		}
		report = c.extractor().ExtractItem(n, dest)
	}
	for _, res := range report.Results {
		switch {
		case res.Err != nil:
			fmt.Fprintf(c.out, "  %s: %v\n", res.Item, res.Err)
		case res.Skipped:
			fmt.Fprintf(c.out, "  %s: skipped\n", res.Item)
		}
	}
	fmt.Fprintf(c.out, "%d files extracted, %d failed, %d skipped, %d bytes\n",
		report.Files-report.Failed-report.Skipped, report.Failed, report.Skipped, report.BytesWritten)
	return report.Err()
}

func (c *Console) cmdValidate(args []string) error {
	n, err := c.lookup(args)
	if err != nil {
		return err
	}
	report := c.Package().ValidateItem(n)
	for _, e := range report.Entries {
		if e.Status != vfs.ValidationOk {
			fmt.Fprintf(c.out, "  %s: %v\n", e.Path, e.Status)
		}
	}
	fmt.Fprintf(c.out, "%d files: %v\n", len(report.Entries), report.Status)
	return nil
}

func (c *Console) cmdFind(args []string) error {
	if len(args) == 0 {
		return errs.NotFound("[console] missing pattern argument")
	}
	found := c.Cwd().Find(args[0], vfs.FindDefault)
	for _, n := range found {
		suffix := ""
		if n.IsFolder() {
			suffix = vfs.Separator
		}
		fmt.Fprintf(c.out, "  %s%s\n", vfs.RelPath(c.Cwd(), n), suffix)
	}
	fmt.Fprintf(c.out, "%d items found\n", len(found))
	return nil
}

func (c *Console) cmdType(args []string) error {
	f, err := c.lookupFile(args)
	if err != nil {
		return err
	}
	_, err = c.Package().CopyTo(f, c.out, nil)
	fmt.Fprintln(c.out)
	return err
}

// cmdOpen parses a file of the current package as a package of its own,
// reading it into memory first.
func (c *Console) cmdOpen(args []string) error {
	f, err := c.lookupFile(args)
	if err != nil {
		return err
	}
	data, err := c.Package().ReadFile(f)
	if err != nil {
		return err
	}
	name := path.Join(c.Package().Name(), vfs.Path(f))
	nested, err := pack.Open(c.reg, stream.NewMemory(name, data, false), &pack.ParseContext{Name: name})
	if err != nil {
		return err
	}
	c.stack = append(c.stack, &level{pkg: nested, cwd: nested.Root(), owned: true})
	log.Debugf("[console] opened nested %v package '%s'", nested.Type(), name)
	fmt.Fprintf(c.out, "Opened %s (%s)\n", vfs.Path(f), nested.Type().Description())
	return nil
}

func (c *Console) cmdClose(args []string) error {
	if len(c.stack) == 1 {
		return errs.NotFound("[console] no nested package is open")
	}
	l := c.top()
	c.stack = c.stack[:len(c.stack)-1]
	if l.owned {
		return l.pkg.Close()
	}
	return nil
}

func (c *Console) cmdStatus(args []string) error {
	p := c.Package()
	root := p.Root()
	frag := p.Fragmentation()
	fmt.Fprintf(c.out, "Package: %s\n", p.Name())
	fmt.Fprintf(c.out, "  Type: %s\n", p.Type().Description())
	fmt.Fprintf(c.out, "  Folders: %d\n  Files: %d\n", root.FolderCount(true), root.FileCount(true))
	fmt.Fprintf(c.out, "  Size: %d\n  Volumes: %d\n", root.Size(true), len(p.Volumes()))
	fmt.Fprintf(c.out, "  Fragmented: %d of %d files (%.2f%%)\n", frag.FragmentedFiles, frag.Files, frag.Percent())
	if len(c.stack) > 1 {
		fmt.Fprintf(c.out, "  Nesting depth: %d\n", len(c.stack)-1)
	}
	return nil
}

func (c *Console) cmdHelp(args []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(c.out, "  %-24s %s\n", cmd.usage, cmd.help)
	}
	fmt.Fprintf(c.out, "  %-24s %s\n", "exit", "leave the console")
	return nil
}
