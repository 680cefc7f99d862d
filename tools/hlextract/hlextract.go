package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mogaika/hlpack/config"
	"github.com/mogaika/hlpack/console"
	"github.com/mogaika/hlpack/drivers"
	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/extract"
	"github.com/mogaika/hlpack/pack"
	"github.com/mogaika/hlpack/status"
	"github.com/mogaika/hlpack/vfs"
	"github.com/mogaika/hlpack/web"
)

const (
	exitOk    = 0
	exitError = 1
	exitUsage = 2
)

type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

// listFlag is set by a bare -l (stdout) or -l=file.
type listFlag struct {
	set  bool
	file string
}

func (l *listFlag) String() string   { return l.file }
func (l *listFlag) IsBoolFlag() bool { return true }
func (l *listFlag) Set(v string) error {
	l.set = true
	if v != "true" {
		l.file = v
	}
	return nil
}

type flags struct {
	packagePath   string
	dest          string
	extractItems  stringList
	validateItems stringList
	list          listFlag
	listDirs      bool
	listFiles     bool
	defragment    bool
	force         bool
	console       bool
	commands      stringList
	silent        bool
	mapping       bool
	quickMapping  bool
	volatile      bool
	noOverwrite   bool
	ncfRoot       string
	serve         string
	configPath    string
	encoding      string
	encodings     bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var f flags
	flag.StringVar(&f.packagePath, "p", "", "Package to load")
	flag.StringVar(&f.dest, "d", ".", "Destination directory")
	flag.Var(&f.extractItems, "e", "Item to extract (repeatable)")
	flag.Var(&f.validateItems, "t", "Item to validate (repeatable)")
	flag.Var(&f.list, "l", "List the package contents, to a file with -l=file")
	flag.BoolVar(&f.listDirs, "list-dirs", false, "List folders only")
	flag.BoolVar(&f.listFiles, "list-files", false, "List files only")
	flag.BoolVar(&f.defragment, "f", false, "Defragment the package")
	flag.BoolVar(&f.force, "r", false, "Force defragmenting of unfragmented packages")
	flag.BoolVar(&f.console, "c", false, "Interactive console")
	flag.Var(&f.commands, "x", "Console command to execute (repeatable)")
	flag.BoolVar(&f.silent, "s", false, "Silent mode")
	flag.BoolVar(&f.mapping, "m", false, "Use file mapping")
	flag.BoolVar(&f.quickMapping, "q", false, "Use quick file mapping (map the whole file)")
	flag.BoolVar(&f.volatile, "v", false, "Allow the package to change while open")
	flag.BoolVar(&f.noOverwrite, "o", false, "Don't overwrite existing files")
	flag.StringVar(&f.ncfRoot, "n", "", "NCF file root directory")
	flag.StringVar(&f.serve, "serve", "", "Browse the package over http on this address")
	flag.StringVar(&f.configPath, "config", config.DefaultConfigFile, "Config file")
	flag.StringVar(&f.encoding, "encoding", "", "Name encoding")
	flag.BoolVar(&f.encodings, "encodings", false, "List name encodings")
	flag.Parse()

	if f.encodings {
		for _, name := range config.ListEncodings() {
			fmt.Println(name)
		}
		return exitOk
	}
	if f.packagePath == "" || flag.NArg() != 0 {
		flag.PrintDefaults()
		return exitUsage
	}

	opts, err := config.Load(f.configPath)
	if err != nil {
		log.Error(err)
		return exitUsage
	}
	f.apply(&opts)
	if err := opts.SetupLogging(); err != nil {
		log.Error(err)
		return exitUsage
	}
	enc, err := opts.GetEncoding()
	if err != nil {
		log.Error(err)
		return exitUsage
	}

	fs := afero.NewOsFs()
	reg := drivers.NewRegistry()

	if f.defragment || f.force {
		done, err := extract.DefragmentFile(reg, fs, f.packagePath, extract.DefragmentOptions{
			Force: f.force,
			Progress: func(path string, done, total int) {
				status.Counter(done, total, "defragmenting %s", path)
			},
		})
		if err != nil {
			log.Errorf("[hlextract] Defragmenting '%s': %v", f.packagePath, err)
			return exitError
		}
		if done {
			f.printf("%s defragmented.\n", f.packagePath)
		} else {
			f.printf("%s is not fragmented.\n", f.packagePath)
		}
	}

	pkg, err := pack.OpenFile(reg, f.packagePath, &pack.ParseContext{
		Fs:       fs,
		Mode:     opts.StreamMode(),
		ViewSize: opts.ViewSize,
		NCFRoot:  opts.NCFRoot,
		Encoding: enc,
	})
	if err != nil {
		log.Errorf("[hlextract] Opening '%s': %v", f.packagePath, err)
		return exitError
	}
	defer pkg.Close()
	f.printf("%s opened as %s.\n", f.packagePath, pkg.Type().Description())

	code := exitOk
	if f.list.set || f.listDirs || f.listFiles {
		if err := list(pkg, &f); err != nil {
			log.Error(err)
			code = exitError
		}
	}

	for _, item := range f.validateItems {
		if err := validate(pkg, item, opts.Workers, &f); err != nil {
			log.Error(err)
			code = exitError
		}
	}

	if len(f.extractItems) != 0 {
		e := extract.New(pkg, fs)
		e.Overwrite = opts.Overwrite
		e.StopOnError = opts.StopOnError
		e.CopyBufferSize = opts.CopyBufferSize
		e.Progress = func(res extract.Result, done, total int) {
			status.Counter(done, total, "extracting %s", res.Item)
			if res.Err == nil && !res.Skipped {
				f.printf("  %s\n", res.Item)
			}
		}
		for _, item := range f.extractItems {
			n, err := pkg.Lookup(item)
			if err != nil {
				log.Error(err)
				code = exitError
				continue
			}
			f.printf("Extracting %s...\n", displayPath(n))
			report := e.ExtractItem(n, f.dest)
			f.printf("%d files, %d failed, %d skipped, %d bytes.\n",
				report.Files, report.Failed, report.Skipped, report.BytesWritten)
			if report.Failed != 0 {
				code = exitError
				if opts.StopOnError {
					break
				}
			}
		}
	}

	if len(f.commands) != 0 || f.console {
		c := console.New(reg, pkg, os.Stdout)
		c.Fs = fs
		c.Dest = f.dest
		c.Overwrite = opts.Overwrite
		c.CopyBufferSize = opts.CopyBufferSize
		for _, cmd := range f.commands {
			if err := c.Exec(cmd); err != nil {
				if err == console.ErrExit {
					break
				}
				log.Error(err)
				code = exitError
			}
		}
		if f.console {
			c.Prompt = true
			if err := c.Run(os.Stdin); err != nil {
				log.Error(err)
				code = exitError
			}
		}
	}

	if f.serve != "" {
		if err := web.StartServer(f.serve, pkg); err != nil {
			log.Error(err)
			return exitError
		}
	}
	return code
}

// apply overrides config values with the flags that were given.
func (f *flags) apply(opts *config.Options) {
	if f.silent {
		opts.LogLevel = "error"
	}
	if f.mapping {
		opts.FileMapping = true
	}
	if f.quickMapping {
		opts.FileMapping = true
		opts.QuickFileMapping = true
	}
	if f.volatile {
		opts.Volatile = true
	}
	if f.noOverwrite {
		opts.Overwrite = false
	}
	if f.ncfRoot != "" {
		opts.NCFRoot = f.ncfRoot
	}
	if f.encoding != "" {
		opts.Encoding = f.encoding
	}
}

func (f *flags) printf(format string, a ...interface{}) {
	if !f.silent {
		fmt.Printf(format, a...)
	}
}

func displayPath(n vfs.Node) string {
	if p := vfs.Path(n); p != "" {
		return p
	}
	return vfs.RootName
}

func list(pkg *pack.Package, f *flags) error {
	var out io.Writer = os.Stdout
	if f.list.file != "" {
		file, err := os.Create(f.list.file)
		if err != nil {
			return errs.WrapIO(err, "[hlextract] Cannot create '%s'", f.list.file)
		}
		defer file.Close()
		out = file
	}
	dirs, files := f.listDirs, f.listFiles
	if !dirs && !files {
		dirs, files = true, true
	}
	return pkg.Root().Walk(func(n vfs.Node) error {
		p := vfs.Path(n)
		if p == "" {
			return nil
		}
		if (n.IsFolder() && dirs) || (!n.IsFolder() && files) {
			_, err := fmt.Fprintln(out, p)
			return err
		}
		return nil
	})
}

func validate(pkg *pack.Package, item string, workers int, f *flags) error {
	n, err := pkg.Lookup(item)
	if err != nil {
		return err
	}
	var files []*vfs.File
	switch v := n.(type) {
	case *vfs.File:
		files = []*vfs.File{v}
	case *vfs.Folder:
		files = v.Files()
	}
	f.printf("Validating %s...\n", displayPath(n))
	results, err := pkg.ValidateParallel(context.Background(), files, workers)
	if err != nil {
		return err
	}
	worst := vfs.ValidationOk
	for i, r := range results {
		worst = vfs.MaxValidation(worst, r)
		if r != vfs.ValidationOk {
			f.printf("  %s: %v\n", vfs.Path(files[i]), r)
		}
	}
	f.printf("%d files: %v\n", len(files), worst)
	status.Info("validated %s: %v", displayPath(n), worst)
	return nil
}
